package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
	"github.com/Saimudragada/fraud-detection-system/internal/monitor"
	"github.com/Saimudragada/fraud-detection-system/internal/pipeline"
	"github.com/Saimudragada/fraud-detection-system/internal/policy"
	"github.com/Saimudragada/fraud-detection-system/internal/repository"
)

// GlobalTenantID is used for override rules that apply to all tenants.
const GlobalTenantID = "*"

// resultCacheTTL is how long scoring results stay in the read cache.
const resultCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	orchestrator *pipeline.Orchestrator
	overrides    *policy.Engine
	store        *model.Store
	metrics      *monitor.Collector
	cfg          domain.ScoringConfig
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, orchestrator *pipeline.Orchestrator, overrides *policy.Engine, store *model.Store, metrics *monitor.Collector, cfg domain.ScoringConfig, version string) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		orchestrator: orchestrator,
		overrides:    overrides,
		store:        store,
		metrics:      metrics,
		cfg:          cfg,
		version:      version,
	}
}

// PredictRequest is the request body for POST /predict.
type PredictRequest struct {
	domain.ScoreRequest

	// Explain requests a feature attribution regardless of the decision.
	Explain bool `json:"explain,omitempty"`
}

// ModelScores is the per-model score breakdown of one prediction.
type ModelScores struct {
	IsolationForest float64 `json:"isolationForest"`
	Classifier      float64 `json:"classifier"`
	Ensemble        float64 `json:"ensemble"`
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	ScoringID        string              `json:"scoringId"`
	TxID             string              `json:"txId"`
	IsFraud          bool                `json:"isFraud"`
	FraudProbability float64             `json:"fraudProbability"`
	RiskLevel        domain.RiskTier     `json:"riskLevel"`
	Action           domain.Action       `json:"action"`
	Reasons          []string            `json:"reasons,omitempty"`
	ModelScores      ModelScores         `json:"modelScores"`
	Attribution      *domain.Attribution `json:"attribution,omitempty"`
	Amount           float64             `json:"amount"`
	ModelVersion     string              `json:"modelVersion"`
	ProcessingTimeMs float64             `json:"processingTimeMs"`
	Timestamp        time.Time           `json:"timestamp"`
}

func toPredictResponse(res *domain.ScoringResult, amount float64) PredictResponse {
	resp := PredictResponse{
		ScoringID:        res.ID,
		TxID:             res.TxID,
		IsFraud:          res.Decision.Flagged(),
		FraudProbability: res.Score.Value,
		RiskLevel:        res.Decision.Tier,
		Action:           res.Decision.Action,
		Reasons:          res.Decision.Reasons,
		Attribution:      res.Attribution,
		Amount:           amount,
		ModelVersion:     res.ModelVersion,
		ProcessingTimeMs: float64(res.Timings.TotalUs) / 1000.0,
		Timestamp:        res.Timestamp,
	}
	resp.ModelScores.Ensemble = res.Score.Value
	for _, c := range res.Score.Components {
		switch c.Scorer {
		case domain.ScorerAnomaly:
			resp.ModelScores.IsolationForest = c.Value
		case domain.ScorerClassifier:
			resp.ModelScores.Classifier = c.Value
		}
	}
	return resp
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx := req.ToTransaction(tenantID)
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	// Persist the input before scoring so a failed scoring still leaves a
	// record of what arrived.
	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
	}

	res, err := h.orchestrator.ScoreOne(ctx, tx, req.Explain)
	if err != nil {
		writeScoringError(w, err)
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScoringResult(ctx, tenantID, res); err != nil {
			slog.Error("failed to save scoring result", "scoring_id", res.ID, "error", err)
		}
	}
	if h.cache != nil {
		_ = h.cache.SetScoringResult(ctx, tenantID, res.ID, res, resultCacheTTL)
	}

	h.publishResult(r, tenantID, res)

	writeJSON(w, http.StatusOK, toPredictResponse(res, tx.Amount))
}

// publishResult emits the scoring-completed event, plus a fraud alert for
// flagged decisions.
func (h *Handler) publishResult(r *http.Request, tenantID string, res *domain.ScoringResult) {
	if h.bus == nil {
		return
	}
	ctx := r.Context()
	payload, _ := json.Marshal(res)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicScoringCompleted, payload); err != nil {
		slog.Error("failed to publish scoring result", "scoring_id", res.ID, "error", err)
	}
	if res.Decision.Flagged() {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicFraudAlert, payload); err != nil {
			slog.Error("failed to publish fraud alert", "scoring_id", res.ID, "error", err)
		}
	}
}

// BatchRequest is the request body for POST /predict/batch.
type BatchRequest struct {
	Transactions []domain.ScoreRequest `json:"transactions"`
	Explain      bool                  `json:"explain,omitempty"`
}

// BatchItemResponse is one entry of a batch response. Failed items carry
// an error instead of a prediction; siblings are unaffected.
type BatchItemResponse struct {
	Index  int              `json:"index"`
	Result *PredictResponse `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// BatchResponse is the response for POST /predict/batch.
type BatchResponse struct {
	TotalTransactions     int                 `json:"totalTransactions"`
	FraudDetected         int                 `json:"fraudDetected"`
	Failed                int                 `json:"failed"`
	TotalProcessingTimeMs float64             `json:"totalProcessingTimeMs"`
	AvgProcessingTimeMs   float64             `json:"avgProcessingTimeMs"`
	Results               []BatchItemResponse `json:"results"`
}

// PredictBatch handles POST /predict/batch requests.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}
	if h.cfg.BatchMaxSize > 0 && len(req.Transactions) > h.cfg.BatchMaxSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error":   "batch exceeds maximum size",
			"maxSize": h.cfg.BatchMaxSize,
		})
		return
	}

	txs := make([]*domain.Transaction, len(req.Transactions))
	for i := range req.Transactions {
		tx := req.Transactions[i].ToTransaction(tenantID)
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		txs[i] = tx
	}

	items := h.orchestrator.ScoreBatch(ctx, txs, req.Explain)

	resp := BatchResponse{
		TotalTransactions: len(items),
		Results:           make([]BatchItemResponse, len(items)),
	}
	for i, item := range items {
		out := BatchItemResponse{Index: item.Index}
		if item.Err != nil {
			out.Error = item.Err.Error()
			resp.Failed++
		} else {
			pr := toPredictResponse(item.Result, txs[item.Index].Amount)
			out.Result = &pr
			if pr.IsFraud {
				resp.FraudDetected++
			}
			if h.repo != nil {
				if err := h.repo.SaveScoringResult(ctx, tenantID, item.Result); err != nil {
					slog.Error("failed to save scoring result", "scoring_id", item.Result.ID, "error", err)
				}
			}
		}
		resp.Results[i] = out
	}

	totalMs := float64(time.Since(start).Microseconds()) / 1000.0
	resp.TotalProcessingTimeMs = totalMs
	resp.AvgProcessingTimeMs = totalMs / float64(len(items))

	writeJSON(w, http.StatusOK, resp)
}

// GetScoring retrieves a scoring result by ID.
func (h *Handler) GetScoring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scoringID := chi.URLParam(r, "id")

	if scoringID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scoring id is required",
		})
		return
	}

	// Cache first, repository on miss.
	if h.cache != nil {
		if res, err := h.cache.GetScoringResult(ctx, tenantID, scoringID); err == nil && res != nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	res, err := h.repo.GetScoringResult(ctx, tenantID, scoringID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "scoring result not found",
			})
			return
		}
		slog.Error("failed to get scoring result", "id", scoringID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get scoring result",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetScoringResult(ctx, tenantID, scoringID, res, resultCacheTTL)
	}

	writeJSON(w, http.StatusOK, res)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetModels returns the active model bundle info.
func (h *Handler) GetModels(w http.ResponseWriter, r *http.Request) {
	b := h.store.Active()

	info := map[string]any{
		"version":       b.Version,
		"layoutVersion": b.Layout.Version,
		"featureCount":  b.Layout.Len(),
		"isolationForest": map[string]any{
			"trees":      len(b.IsolationForest.Trees),
			"maxSamples": b.IsolationForest.MaxSamples,
		},
		"classifier": map[string]any{
			"trees":     len(b.Classifier.Trees),
			"baseScore": b.Classifier.BaseScore,
		},
		"ensemble": map[string]any{
			"anomalyWeight":    h.cfg.AnomalyWeight,
			"classifierWeight": h.cfg.ClassifierWeight,
			"threshold":        h.cfg.Threshold,
			"reviewBand":       h.cfg.ReviewBand,
		},
	}

	if h.metrics != nil {
		info["drift"] = map[string]any{
			"psi":     h.metrics.PSI(),
			"samples": h.metrics.DriftSamples(),
		}
	}

	writeJSON(w, http.StatusOK, info)
}

// ReloadModels hot-swaps the artifact bundle from the artifact directory.
// On failure the previous bundle stays active.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.Reload()
	if err != nil {
		slog.Error("model reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model reload failed: " + err.Error(),
		})
		return
	}

	slog.Info("model bundle reloaded", "version", b.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "model bundle reloaded",
		"version": b.Version,
	})
}

// ListRules returns all loaded override rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.overrides.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves an override rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.overrides.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating an override rule.
type CreateRuleRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Tier        domain.RiskTier `json:"tier"`
	Action      domain.Action   `json:"action"`
	Reason      string          `json:"reason,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// CreateRule creates a new override rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.OverrideRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1",
		Expression:  req.Expression,
		Tier:        req.Tier,
		Action:      req.Action,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Compile-check the CEL expression before anything is persisted.
	if err := h.overrides.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid override rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveOverrideRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save override rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("override rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes an override rule and auto-reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteOverrideRule(ctx, GlobalTenantID, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete override rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	// Auto-reload the engine after delete
	dbRules, err := h.repo.ListOverrideRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	} else if err := h.overrides.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	}

	slog.Info("override rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all override rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListOverrideRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.overrides.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("override rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":       status,
		"version":      h.version,
		"modelVersion": h.orchestrator.ModelVersion(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeScoringError maps pipeline errors to HTTP status codes.
func writeScoringError(w http.ResponseWriter, err error) {
	var (
		validationErr  *domain.ValidationError
		unavailableErr *domain.ScoringUnavailableError
		timeoutErr     *domain.TimeoutError
		attribErr      *domain.AttributionError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &timeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error": timeoutErr.Error(),
			"stage": timeoutErr.Stage,
		})
	case errors.As(err, &unavailableErr):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":  unavailableErr.Error(),
			"scorer": unavailableErr.Scorer,
		})
	case errors.As(err, &attribErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": attribErr.Error(),
		})
	default:
		slog.Error("scoring failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
