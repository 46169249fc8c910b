// Package worker provides async message processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/pipeline"
)

// Worker scores transactions asynchronously from the EventBus.
type Worker struct {
	bus          domain.EventBus
	repo         domain.Repository
	orchestrator *pipeline.Orchestrator

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, orchestrator *pipeline.Orchestrator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		repo:         repo,
		orchestrator: orchestrator,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.scoreTransaction(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.scoreTransaction(ctx, msg.TenantID, msg)
}

// TransactionMessage is the message payload for async scoring.
type TransactionMessage struct {
	TxID        string         `json:"txId"`
	TenantID    string         `json:"tenantId"`
	TraceID     string         `json:"traceId"`
	ElapsedSecs float64        `json:"elapsedSecs"`
	Signals     []float64      `json:"signals"`
	Amount      float64        `json:"amount"`
	Explain     bool           `json:"explain,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// scoreTransaction runs a transaction through the scoring pipeline.
func (w *Worker) scoreTransaction(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if txMsg.TenantID != "" {
		tenantID = txMsg.TenantID
	}

	traceID := txMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("scoring transaction",
		"tx_id", txMsg.TxID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	tx := &domain.Transaction{
		ID:          txMsg.TxID,
		TenantID:    tenantID,
		ElapsedSecs: txMsg.ElapsedSecs,
		Signals:     txMsg.Signals,
		Amount:      txMsg.Amount,
		ReceivedAt:  time.Now().UTC(),
		Metadata:    txMsg.Metadata,
	}

	result, err := w.orchestrator.ScoreOne(ctx, tx, txMsg.Explain)
	if err != nil {
		slog.Error("scoring failed",
			"tx_id", txMsg.TxID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// Persist result
	if w.repo != nil {
		if err := w.repo.SaveScoringResult(ctx, tenantID, result); err != nil {
			slog.Error("failed to save scoring result",
				"tx_id", txMsg.TxID,
				"error", err,
			)
		}
	}

	// Publish completed scoring
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicScoringCompleted, resultPayload); err != nil {
		slog.Error("failed to publish scoring result",
			"tx_id", txMsg.TxID,
			"error", err,
		)
	}

	// Flagged decisions also go to the alert topic
	if result.Decision.Flagged() {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicFraudAlert, resultPayload); err != nil {
			slog.Error("failed to publish fraud alert",
				"tx_id", txMsg.TxID,
				"error", err,
			)
		}
	}

	slog.Info("transaction scored",
		"tx_id", txMsg.TxID,
		"tenant_id", tenantID,
		"tier", result.Decision.Tier,
		"score", result.Score.Value,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
