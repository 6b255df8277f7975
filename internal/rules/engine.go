package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/condition"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

const engineVersion = "1.0.0"

// Orchestrator drives a transaction through the full evaluation
// pipeline: persist, load active rules, resolve facts, evaluate, commit
// actions, aggregate the decision and publish the result.
type Orchestrator struct {
	store  domain.Store
	bus    domain.EventBus
	coord  *cache.Coordinator
	facts  *FactResolver
	exprs  *ExpressionEngine
	tracer trace.Tracer
}

// NewOrchestrator wires the evaluation pipeline.
func NewOrchestrator(store domain.Store, bus domain.EventBus, coord *cache.Coordinator, facts *FactResolver, exprs *ExpressionEngine) *Orchestrator {
	return &Orchestrator{
		store:  store,
		bus:    bus,
		coord:  coord,
		facts:  facts,
		exprs:  exprs,
		tracer: otel.Tracer("harrier-rules"),
	}
}

// EvaluateTransaction persists the transaction and evaluates it
// synchronously. This is the request/response API path.
func (o *Orchestrator) EvaluateTransaction(ctx context.Context, tenantID string, req *domain.TransactionRequest) (*domain.Evaluation, error) {
	tx, err := o.ingest(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	return o.Evaluate(ctx, tenantID, tx)
}

// IngestTransaction persists the transaction and publishes it for
// asynchronous evaluation by a worker. Returns the stored transaction.
func (o *Orchestrator) IngestTransaction(ctx context.Context, tenantID string, req *domain.TransactionRequest) (*domain.Transaction, error) {
	tx, err := o.ingest(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	if err := o.bus.Publish(ctx, tenantID, domain.TopicTransactionIngested, payload); err != nil {
		return nil, fmt.Errorf("publish ingested transaction: %w", err)
	}
	return tx, nil
}

func (o *Orchestrator) ingest(ctx context.Context, tenantID string, req *domain.TransactionRequest) (*domain.Transaction, error) {
	if req.AccountID == "" {
		return nil, domain.NewValidationError("accountId", "accountId is required")
	}
	if req.Type == "" {
		return nil, domain.NewValidationError("type", "type is required")
	}

	tx := req.ToTransaction(tenantID)
	tx.ID = uuid.New().String()
	if err := o.store.SaveTransaction(ctx, tenantID, tx); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	return tx, nil
}

// Evaluate runs every active rule against an already-persisted
// transaction, highest priority first. Each rule's actions commit
// independently: a later failure never rolls back an earlier alert. If
// the caller deadline expires mid-run the evaluation is marked Partial
// and carries the worst decision among the rules that completed.
func (o *Orchestrator) Evaluate(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.Evaluation, error) {
	ctx, span := o.tracer.Start(ctx, "rules.Evaluate", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("tx.id", tx.ID),
	))
	defer span.End()
	start := time.Now()

	active, err := o.loadActiveRules(ctx, tenantID, tx.Timestamp)
	if err != nil {
		return nil, err
	}

	eval := &domain.Evaluation{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		TxID:             tx.ID,
		Decision:         domain.DecisionAllow,
		TriggeredRuleIDs: []string{},
		AlertIDs:         []string{},
		Timestamp:        time.Now().UTC(),
	}

	rulesStart := time.Now()
	for _, rv := range active {
		if ctx.Err() != nil {
			eval.Partial = true
			break
		}

		outcome := o.evaluateRule(ctx, tenantID, tx, rv, eval)
		eval.RuleResults = append(eval.RuleResults, outcome)
		eval.Metadata.RulesEvaluated++

		switch {
		case outcome.Skipped:
			metrics.RuleEvaluated(tenantID, metrics.OutcomeSkipped)
		case outcome.Matched:
			metrics.RuleEvaluated(tenantID, metrics.OutcomeMatched)
		default:
			metrics.RuleEvaluated(tenantID, metrics.OutcomeUnmatched)
		}

		if outcome.Matched && haltRequested(rv) {
			break
		}
	}

	eval.Metadata.RulesMs = time.Since(rulesStart).Milliseconds()
	eval.Metadata.TotalMs = time.Since(start).Milliseconds()
	eval.Metadata.EngineVersion = engineVersion
	eval.Metadata.TraceID = span.SpanContext().TraceID().String()

	// A partial run is still persisted and published on a detached
	// context: the caller's expired deadline must not lose the alerts
	// already committed by earlier rules.
	saveCtx := ctx
	if eval.Partial {
		saveCtx = context.WithoutCancel(ctx)
	}
	if err := o.store.SaveEvaluation(saveCtx, tenantID, eval); err != nil {
		return nil, fmt.Errorf("save evaluation: %w", err)
	}

	metrics.ObserveEvaluation(tenantID, eval.Decision, time.Since(start))
	o.publishDecision(tenantID, eval)
	return eval, nil
}

// evaluateRule runs one rule and commits its actions. A malformed or
// unresolvable rule is skipped with a diagnostic; it never blocks the
// other rules.
func (o *Orchestrator) evaluateRule(ctx context.Context, tenantID string, tx *domain.Transaction, rv *domain.RuleVersion, eval *domain.Evaluation) domain.RuleOutcome {
	start := time.Now()
	outcome := domain.RuleOutcome{RuleVersionID: rv.ID}

	facts, err := o.facts.Resolve(ctx, tx, rv)
	if err != nil {
		outcome.Skipped = true
		outcome.Error = err.Error()
		outcome.ProcessMs = time.Since(start).Milliseconds()
		// A deadline expiring mid-resolution is the caller abandoning the
		// run, not a broken rule; no diagnostic for that.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return outcome
		}
		slog.Error("rule skipped, fact resolution failed",
			"tenant_id", tenantID, "rule_version_id", rv.ID, "error", err)
		o.raiseDiagnostic(ctx, tenantID, tx, rv, eval, &outcome,
			"fact resolution failed: "+err.Error())
		return outcome
	}

	var matched bool
	switch {
	case rv.Conditions != nil:
		matched, _ = condition.Evaluate(rv.Conditions, facts)
	case rv.Expression != "":
		matched, err = o.exprs.Evaluate(rv.Expression, facts)
		if err != nil {
			outcome.Skipped = true
			outcome.Error = err.Error()
			outcome.ProcessMs = time.Since(start).Milliseconds()
			slog.Error("rule skipped, expression failed",
				"tenant_id", tenantID, "rule_version_id", rv.ID, "error", err)
			o.raiseDiagnostic(ctx, tenantID, tx, rv, eval, &outcome,
				"expression evaluation failed: "+err.Error())
			return outcome
		}
	default:
		outcome.Skipped = true
		outcome.Error = "rule has neither conditions nor expression"
		outcome.ProcessMs = time.Since(start).Milliseconds()
		slog.Error("rule skipped, malformed rule",
			"tenant_id", tenantID, "rule_version_id", rv.ID, "error", outcome.Error)
		o.raiseDiagnostic(ctx, tenantID, tx, rv, eval, &outcome, outcome.Error)
		return outcome
	}

	outcome.Matched = matched
	if matched {
		eval.TriggeredRuleIDs = append(eval.TriggeredRuleIDs, rv.ID)
		o.commitActions(ctx, tenantID, tx, rv, eval, &outcome)
	}
	outcome.ProcessMs = time.Since(start).Milliseconds()
	return outcome
}

// commitActions executes a matched rule's actions in declaration order.
// Alert creation failures are recorded on the outcome but do not stop
// the remaining actions or rules.
func (o *Orchestrator) commitActions(ctx context.Context, tenantID string, tx *domain.Transaction, rv *domain.RuleVersion, eval *domain.Evaluation, outcome *domain.RuleOutcome) {
	for _, action := range rv.Actions {
		switch action.Type {
		case domain.ActionCreateAlert:
			alert := &domain.Alert{
				ID:            uuid.New().String(),
				TenantID:      tenantID,
				TxID:          tx.ID,
				RuleVersionID: rv.ID,
				Severity:      action.Severity,
				Category:      action.Category,
				Message:       action.Message,
				Status:        domain.AlertOpen,
				CreatedAt:     time.Now().UTC(),
				UpdatedAt:     time.Now().UTC(),
			}
			id, err := o.store.InsertAlert(ctx, tenantID, alert)
			if err != nil {
				outcome.Error = fmt.Sprintf("alert creation failed: %v", err)
				slog.Error("alert creation failed",
					"tenant_id", tenantID, "rule_version_id", rv.ID, "error", err)
				continue
			}
			outcome.AlertIDs = append(outcome.AlertIDs, id)
			eval.AlertIDs = append(eval.AlertIDs, id)
			metrics.AlertCreated(tenantID, action.Severity)
			o.publishAlert(tenantID, alert)

		case domain.ActionSetDecision:
			outcome.Decision = domain.WorseDecision(outcome.Decision, action.Decision)
			eval.Decision = domain.WorseDecision(eval.Decision, action.Decision)
		}
	}
}

// raiseDiagnostic commits an internal alert for a rule the engine could
// not evaluate, so broken rules surface to operators and not only to
// the logs.
func (o *Orchestrator) raiseDiagnostic(ctx context.Context, tenantID string, tx *domain.Transaction, rv *domain.RuleVersion, eval *domain.Evaluation, outcome *domain.RuleOutcome, reason string) {
	alert := &domain.Alert{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		TxID:          tx.ID,
		RuleVersionID: rv.ID,
		Severity:      domain.SeverityMedium,
		Category:      "engine-diagnostic",
		Message:       reason,
		Status:        domain.AlertOpen,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	id, err := o.store.InsertAlert(ctx, tenantID, alert)
	if err != nil {
		slog.Error("diagnostic alert creation failed",
			"tenant_id", tenantID, "rule_version_id", rv.ID, "error", err)
		return
	}
	outcome.AlertIDs = append(outcome.AlertIDs, id)
	eval.AlertIDs = append(eval.AlertIDs, id)
	metrics.AlertCreated(tenantID, alert.Severity)
	o.publishAlert(tenantID, alert)
}

// loadActiveRules returns the active rule set, cache-first, priority
// descending. The cached set is re-filtered by activation interval so a
// cached entry never resurrects a deactivated version past its TTL.
func (o *Orchestrator) loadActiveRules(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RuleVersion, error) {
	cached, hit := o.coord.GetRuleSet(ctx, tenantID)
	if !hit {
		loaded, err := o.store.GetActiveRuleVersions(ctx, tenantID, asOf)
		if err != nil {
			return nil, fmt.Errorf("load active rules: %w", err)
		}
		o.coord.SetRuleSet(ctx, tenantID, loaded)
		cached = loaded
	}

	active := make([]*domain.RuleVersion, 0, len(cached))
	for _, rv := range cached {
		if rv.ActiveAt(asOf) {
			active = append(active, rv)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	return active, nil
}

// haltRequested reports whether any action of a matched rule asked to
// stop evaluating lower-priority rules.
func haltRequested(rv *domain.RuleVersion) bool {
	for _, action := range rv.Actions {
		if action.HaltOnMatch {
			return true
		}
	}
	return false
}

// publishDecision emits the evaluation result, fire and forget.
func (o *Orchestrator) publishDecision(tenantID string, eval *domain.Evaluation) {
	payload, err := json.Marshal(eval)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
		slog.Warn("decision publish failed", "tenant_id", tenantID, "evaluation_id", eval.ID, "error", err)
	}
}

func (o *Orchestrator) publishAlert(tenantID string, alert *domain.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
		slog.Warn("alert publish failed", "tenant_id", tenantID, "alert_id", alert.ID, "error", err)
	}
}
