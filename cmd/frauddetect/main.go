// frauddetect - Real-time fraud scoring with per-feature explanations.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Saimudragada/fraud-detection-system/internal/api"
	"github.com/Saimudragada/fraud-detection-system/internal/bus"
	"github.com/Saimudragada/fraud-detection-system/internal/cache"
	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
	"github.com/Saimudragada/fraud-detection-system/internal/monitor"
	"github.com/Saimudragada/fraud-detection-system/internal/pipeline"
	"github.com/Saimudragada/fraud-detection-system/internal/policy"
	"github.com/Saimudragada/fraud-detection-system/internal/repository"
	"github.com/Saimudragada/fraud-detection-system/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("FRAUDDETECT_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting frauddetect",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FRAUDDETECT_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if dir := os.Getenv("FRAUDDETECT_MODEL_DIR"); dir != "" {
		cfg.Scoring.ArtifactDir = dir
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_dir", cfg.Scoring.ArtifactDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load the model bundle. The service cannot score without one, so a
	// missing or invalid artifact is fatal.
	store, err := model.NewStore(cfg.Scoring.ArtifactDir)
	if err != nil {
		slog.Error("failed to load model bundle", "error", err, "dir", cfg.Scoring.ArtifactDir)
		os.Exit(1)
	}
	bundle := store.Active()
	slog.Info("model bundle loaded",
		"model_version", bundle.Version,
		"features", len(bundle.Layout.Names),
		"forest_trees", len(bundle.IsolationForest.Trees),
		"classifier_trees", len(bundle.Classifier.Trees),
	)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize the override rule engine and load persisted rules.
	overrides, err := policy.NewEngine()
	if err != nil {
		slog.Error("failed to initialize override engine", "error", err)
		os.Exit(1)
	}
	if err := loadOverrideRules(ctx, repo, overrides); err != nil {
		slog.Error("failed to load override rules", "error", err)
		os.Exit(1)
	}
	slog.Info("override engine initialized", "rules_count", overrides.RulesCount())

	// Drift monitoring against the training-time score distribution.
	collector := monitor.NewCollector(bundle.ScoreReference)
	slog.Info("metrics collector initialized")

	orch, err := pipeline.New(store, cfg.Scoring,
		pipeline.WithOverrides(overrides),
		pipeline.WithObserver(collector),
	)
	if err != nil {
		slog.Error("failed to initialize scoring pipeline", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring pipeline initialized",
		"anomaly_weight", cfg.Scoring.AnomalyWeight,
		"classifier_weight", cfg.Scoring.ClassifierWeight,
		"threshold", cfg.Scoring.Threshold,
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("FRAUDDETECT_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, orch)

		tenantIDs := []string{}
		if envTenants := os.Getenv("FRAUDDETECT_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, cfg.Scoring, repo, cacheImpl, busImpl, orch, overrides, store, collector, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("frauddetect is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version, bundle.Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("frauddetect shutdown complete")
}

// GlobalTenantID is used for override rules that apply to all tenants.
const GlobalTenantID = "*"

// loadOverrideRules loads persisted override rules into the engine.
// All rules are configured via POST /rules - no hardcoded defaults.
func loadOverrideRules(ctx context.Context, repo domain.Repository, engine *policy.Engine) error {
	dbRules, err := repo.ListOverrideRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list override rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading override rules from database", "count", len(dbRules))
		return engine.ReloadRules(dbRules)
	}

	slog.Info("no override rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version, modelVersion string) {
	fmt.Println()
	fmt.Println("  frauddetect - real-time fraud scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Model:    %s\n", modelVersion)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict           - Score a transaction")
	fmt.Println("    POST /predict/batch     - Score a batch of transactions")
	fmt.Println("    GET  /scorings/{id}     - Get a scoring result by ID")
	fmt.Println("    GET  /transactions/{id} - Get a transaction by ID")
	fmt.Println("    GET  /models            - Active model bundle info")
	fmt.Println("    POST /models/reload     - Hot-swap the model bundle")
	fmt.Println("    GET  /rules             - List override rules")
	fmt.Println("    POST /rules             - Create an override rule")
	fmt.Println("    POST /rules/reload      - Hot-reload rules from database")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
