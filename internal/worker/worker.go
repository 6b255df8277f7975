// Package worker provides asynchronous transaction evaluation off the
// event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Worker consumes ingested transactions from the EventBus and runs
// them through the rule orchestrator. The orchestrator persists the
// evaluation and publishes decision and alert events itself; the
// worker only drives the pipeline.
type Worker struct {
	bus          domain.EventBus
	orchestrator *rules.Orchestrator

	subscriptions []domain.Subscription
	cancel        context.CancelFunc
	ctx           context.Context
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to consume. Required: the bus is
	// tenant-scoped, there is no wildcard subscription.
	TenantIDs []string

	// EvaluationTimeout bounds one evaluation. Zero means 30 seconds.
	EvaluationTimeout time.Duration
}

// New creates a worker.
func New(bus domain.EventBus, orchestrator *rules.Orchestrator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		orchestrator: orchestrator,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to the transaction-ingested topic for each tenant.
func (w *Worker) Start(cfg Config) error {
	timeout := cfg.EvaluationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	for _, tenantID := range cfg.TenantIDs {
		tenantID := tenantID
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
			return w.processMessage(ctx, tenantID, msg, timeout)
		})
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)

		slog.Info("tenant worker started",
			"tenant_id", tenantID,
			"topic", domain.TopicTransactionIngested,
		)
	}

	return nil
}

// processMessage evaluates one ingested transaction.
func (w *Worker) processMessage(ctx context.Context, tenantID string, msg *domain.Message, timeout time.Duration) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse ingested transaction",
			"message_id", msg.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eval, err := w.orchestrator.Evaluate(evalCtx, tenantID, &tx)
	if err != nil {
		slog.Error("async evaluation failed",
			"tx_id", tx.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("transaction evaluated",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"decision", eval.Decision,
		"partial", eval.Partial,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats reports the worker's active subscriptions.
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
