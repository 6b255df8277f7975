package explain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

func histTx(id string, amount string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		AccountID: "acc-1",
		Amount:    decimal.RequireFromString(amount),
		Currency:  "USD",
		Timestamp: ts,
	}
}

func TestAggregationSum(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := domain.Window{Duration: 24, Unit: "hours"}

	voided := histTx("tx-voided", "999.00", asOf.Add(-time.Hour))
	voided.Voided = true

	history := []*domain.Transaction{
		histTx("tx-1", "100.50", asOf.Add(-2*time.Hour)),
		histTx("tx-2", "49.50", asOf.Add(-23*time.Hour)),
		histTx("tx-old", "500.00", asOf.Add(-25*time.Hour)),
		histTx("tx-at-asof", "500.00", asOf),
		voided,
	}

	trace, err := Aggregation(window, "sum", "amount", asOf, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := decimal.RequireFromString("150.00"); !trace.Value.Equal(want) {
		t.Errorf("expected sum %s, got %s", want, trace.Value)
	}
	if trace.Count != 2 {
		t.Errorf("expected 2 contributing transactions, got %d", trace.Count)
	}
	if len(trace.Contributions) != len(history) {
		t.Fatalf("expected a contribution per snapshot transaction, got %d", len(trace.Contributions))
	}

	reasons := make(map[string]string)
	for _, c := range trace.Contributions {
		reasons[c.TxID] = c.Reason
	}
	if reasons["tx-old"] != "outside window" {
		t.Errorf("tx-old: expected outside window, got %q", reasons["tx-old"])
	}
	if reasons["tx-at-asof"] != "outside window" {
		t.Errorf("transaction at asOf must not count toward its own window, got %q", reasons["tx-at-asof"])
	}
	if reasons["tx-voided"] != "voided" {
		t.Errorf("tx-voided: expected voided, got %q", reasons["tx-voided"])
	}

	if !strings.Contains(trace.Detail, "sum(amount)") {
		t.Errorf("detail should name the aggregate: %s", trace.Detail)
	}
}

func TestAggregationKinds(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := domain.Window{Duration: 7, Unit: "days"}

	a := histTx("tx-1", "10.00", asOf.Add(-time.Hour))
	a.CounterpartyID = "cp-1"
	b := histTx("tx-2", "20.00", asOf.Add(-2*time.Hour))
	b.CounterpartyID = "cp-2"
	c := histTx("tx-3", "30.00", asOf.Add(-3*time.Hour))
	c.CounterpartyID = "cp-1"
	history := []*domain.Transaction{a, b, c}

	t.Run("Count", func(t *testing.T) {
		trace, err := Aggregation(window, "count", "transactions", asOf, history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !trace.Value.Equal(decimal.NewFromInt(3)) {
			t.Errorf("expected count 3, got %s", trace.Value)
		}
	})

	t.Run("DistinctCount", func(t *testing.T) {
		trace, err := Aggregation(window, "distinctCount", "counterpartyId", asOf, history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !trace.Value.Equal(decimal.NewFromInt(2)) {
			t.Errorf("expected 2 distinct counterparties, got %s", trace.Value)
		}
	})

	t.Run("Avg", func(t *testing.T) {
		trace, err := Aggregation(window, "avg", "amount", asOf, history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := decimal.RequireFromString("20"); !trace.Value.Equal(want) {
			t.Errorf("expected avg 20, got %s", trace.Value)
		}
	})

	t.Run("AvgOfEmptyWindowIsZero", func(t *testing.T) {
		trace, err := Aggregation(window, "avg", "amount", asOf, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !trace.Value.IsZero() {
			t.Errorf("expected zero, got %s", trace.Value)
		}
	})
}

func TestAggregationRejectsBadInput(t *testing.T) {
	asOf := time.Now().UTC()

	if _, err := Aggregation(domain.Window{Duration: 1, Unit: "hours"}, "median", "amount", asOf, nil); err == nil {
		t.Error("expected error for unknown aggregation kind")
	}
	if _, err := Aggregation(domain.Window{Duration: 0, Unit: "hours"}, "sum", "amount", asOf, nil); err == nil {
		t.Error("expected error for zero-length window")
	}
	if _, err := Aggregation(domain.Window{Duration: 1, Unit: "fortnights"}, "sum", "amount", asOf, nil); err == nil {
		t.Error("expected error for unknown window unit")
	}
}

func TestAggregationInterval(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trace, err := Aggregation(domain.Window{Duration: 30, Unit: "minutes"}, "count", "transactions", asOf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trace.From.Equal(asOf.Add(-30 * time.Minute)) {
		t.Errorf("wrong interval start: %s", trace.From)
	}
	if !trace.To.Equal(asOf) {
		t.Errorf("wrong interval end: %s", trace.To)
	}

	// The lower bound is inclusive.
	edge := histTx("tx-edge", "1.00", asOf.Add(-30*time.Minute))
	trace, err = Aggregation(domain.Window{Duration: 30, Unit: "minutes"}, "count", "transactions", asOf, []*domain.Transaction{edge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trace.Value.Equal(decimal.NewFromInt(1)) {
		t.Errorf("transaction at the lower bound must be included, got %s", trace.Value)
	}
}
