package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/lists"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/window"
)

// fakeStore covers the evaluation path the worker drives.
type fakeStore struct {
	domain.Store
	mu    sync.Mutex
	rules []*domain.RuleVersion
	evals map[string]*domain.Evaluation
}

func newFakeStore() *fakeStore {
	return &fakeStore{evals: make(map[string]*domain.Evaluation)}
}

func (f *fakeStore) GetActiveRuleVersions(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RuleVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.RuleVersion
	for _, rv := range f.rules {
		if rv.TenantID == tenantID && rv.ActiveAt(asOf) {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, tenantID string, alert *domain.Alert) (string, error) {
	return alert.ID, nil
}

func (f *fakeStore) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals[eval.ID] = eval
	return nil
}

func (f *fakeStore) evaluationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.evals)
}

func newTestOrchestrator(t *testing.T, store *fakeStore, eventBus domain.EventBus) *rules.Orchestrator {
	t.Helper()
	exprs, err := rules.NewExpressionEngine()
	if err != nil {
		t.Fatalf("NewExpressionEngine failed: %v", err)
	}
	coord := cache.NewCoordinator(nil, 0, 0)
	facts := rules.NewFactResolver(window.NewAggregator(store), lists.NewResolver(store, nil), 4)
	return rules.NewOrchestrator(store, eventBus, coord, facts, exprs)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	store := newFakeStore()
	store.rules = []*domain.RuleVersion{
		{
			ID: "rv-1", TenantID: "org-1", TemplateID: "tpl-1", Version: 1,
			Name:       "high value",
			Conditions: &domain.Condition{Fact: "amount", Operator: "greaterThan", Value: float64(10000)},
			Actions: []domain.RuleAction{
				{Type: domain.ActionSetDecision, Decision: domain.DecisionBlock},
			},
			Priority: 10, Enabled: true,
			ActivatedAt: time.Now().Add(-time.Hour),
		},
	}

	orchestrator := newTestOrchestrator(t, store, eventBus)

	t.Run("StartAndStop", func(t *testing.T) {
		w := New(eventBus, orchestrator)

		if err := w.Start(Config{TenantIDs: []string{"org-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected no subscriptions after stop")
		}
	})

	t.Run("ProcessIngestedTransaction", func(t *testing.T) {
		w := New(eventBus, orchestrator)
		if err := w.Start(Config{TenantIDs: []string{"org-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		var decisionPayload atomic.Pointer[[]byte]
		eventBus.Subscribe(context.Background(), "org-1", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			p := msg.Payload
			decisionPayload.Store(&p)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		tx := &domain.Transaction{
			ID: "tx-async-1", TenantID: "org-1", AccountID: "acc-1", Type: "transfer",
			Amount:     decimal.NewFromInt(15000),
			BaseAmount: decimal.NewFromInt(15000),
			Currency:   "USD",
			Timestamp:  time.Now(),
		}
		payload, _ := json.Marshal(tx)
		if err := eventBus.Publish(context.Background(), "org-1", domain.TopicTransactionIngested, payload); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for decisionPayload.Load() == nil && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		got := decisionPayload.Load()
		if got == nil {
			t.Fatal("expected a decision to be published")
		}

		var eval domain.Evaluation
		if err := json.Unmarshal(*got, &eval); err != nil {
			t.Fatalf("failed to parse decision: %v", err)
		}
		if eval.TxID != "tx-async-1" {
			t.Errorf("expected txID 'tx-async-1', got '%s'", eval.TxID)
		}
		if eval.Decision != domain.DecisionBlock {
			t.Errorf("expected BLOCK, got %s", eval.Decision)
		}
		if store.evaluationCount() == 0 {
			t.Error("evaluation was not persisted")
		}
	})

	t.Run("MalformedPayloadDoesNotCrash", func(t *testing.T) {
		w := New(eventBus, orchestrator)
		if err := w.Start(Config{TenantIDs: []string{"org-1"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		eventBus.Publish(context.Background(), "org-1", domain.TopicTransactionIngested, []byte("{not json"))
		time.Sleep(50 * time.Millisecond)

		if err := eventBus.Ping(context.Background()); err != nil {
			t.Errorf("bus unhealthy after malformed message: %v", err)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := New(eventBus, orchestrator)
		if err := w.Start(Config{TenantIDs: []string{"org-a", "org-b"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", got)
		}
	})
}
