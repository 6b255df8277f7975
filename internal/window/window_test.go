package window

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// fakeStore serves a fixed transaction snapshot through the range query.
type fakeStore struct {
	domain.Store
	txs []*domain.Transaction
}

func (f *fakeStore) QueryTransactions(ctx context.Context, tenantID, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if tx.TenantID != tenantID || tx.AccountID != accountID {
			continue
		}
		if tx.Timestamp.Before(from) || !tx.Timestamp.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func tx(ts time.Time, amount int64) *domain.Transaction {
	return &domain.Transaction{
		TenantID:  "org-1",
		AccountID: "acc-1",
		Amount:    decimal.NewFromInt(amount),
		Timestamp: ts,
	}
}

func TestSumOverWindow(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{txs: []*domain.Transaction{
		tx(asOf.Add(-30*time.Minute), 100),
		tx(asOf.Add(-59*time.Minute), 250),
		tx(asOf.Add(-2*time.Hour), 9999), // outside window
	}}

	agg := NewAggregator(store)
	got, err := agg.Aggregate(context.Background(), "org-1", "acc-1",
		domain.Window{Duration: 1, Unit: "hours"}, KindSum, "amount", asOf)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(350)) {
		t.Errorf("expected sum 350, got %s", got)
	}
}

func TestWindowExcludesAsOfInstant(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{txs: []*domain.Transaction{
		tx(asOf, 500),                   // the triggering transaction itself
		tx(asOf.Add(-time.Hour), 1000),  // exactly at window start, included
		tx(asOf.Add(-30*time.Minute), 1),
	}}

	agg := NewAggregator(store)
	got, err := agg.Aggregate(context.Background(), "org-1", "acc-1",
		domain.Window{Duration: 1, Unit: "hours"}, KindSum, "amount", asOf)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	// [asOf-1h, asOf): the asOf row is excluded, the boundary row included.
	if !got.Equal(decimal.NewFromInt(1001)) {
		t.Errorf("expected sum 1001, got %s", got)
	}
}

func TestExcludedFlagsSkipped(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	voided := tx(asOf.Add(-10*time.Minute), 100)
	voided.Voided = true
	blocked := tx(asOf.Add(-11*time.Minute), 100)
	blocked.Blocked = true
	deleted := tx(asOf.Add(-12*time.Minute), 100)
	deleted.Deleted = true

	store := &fakeStore{txs: []*domain.Transaction{
		voided, blocked, deleted,
		tx(asOf.Add(-13*time.Minute), 42),
	}}

	agg := NewAggregator(store)
	got, _ := agg.Aggregate(context.Background(), "org-1", "acc-1",
		domain.Window{Duration: 30, Unit: "minutes"}, KindSum, "amount", asOf)
	if !got.Equal(decimal.NewFromInt(42)) {
		t.Errorf("expected flagged rows excluded, sum 42, got %s", got)
	}
}

func TestCountAvgDistinct(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := tx(asOf.Add(-1*time.Minute), 10)
	a.CounterpartyID = "cp-1"
	b := tx(asOf.Add(-2*time.Minute), 20)
	b.CounterpartyID = "cp-2"
	c := tx(asOf.Add(-3*time.Minute), 30)
	c.CounterpartyID = "cp-1"

	store := &fakeStore{txs: []*domain.Transaction{a, b, c}}
	agg := NewAggregator(store)
	w := domain.Window{Duration: 10, Unit: "minutes"}
	ctx := context.Background()

	count, _ := agg.Aggregate(ctx, "org-1", "acc-1", w, KindCount, "amount", asOf)
	if !count.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected count 3, got %s", count)
	}

	avg, _ := agg.Aggregate(ctx, "org-1", "acc-1", w, KindAvg, "amount", asOf)
	if !avg.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected avg 20, got %s", avg)
	}

	distinct, _ := agg.Aggregate(ctx, "org-1", "acc-1", w, KindDistinctCount, "counterpartyId", asOf)
	if !distinct.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected 2 distinct counterparties, got %s", distinct)
	}
}

func TestDeterministicForIdenticalSnapshot(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{txs: []*domain.Transaction{
		tx(asOf.Add(-5*time.Minute), 7),
		tx(asOf.Add(-6*time.Minute), 11),
	}}
	agg := NewAggregator(store)
	w := domain.Window{Duration: 1, Unit: "hours"}

	first, _ := agg.Aggregate(context.Background(), "org-1", "acc-1", w, KindSum, "amount", asOf)
	for i := 0; i < 20; i++ {
		again, _ := agg.Aggregate(context.Background(), "org-1", "acc-1", w, KindSum, "amount", asOf)
		if !again.Equal(first) {
			t.Fatal("identical snapshot produced different aggregates")
		}
	}

	// A transaction outside [asOf−d, asOf) never changes the result.
	store.txs = append(store.txs, tx(asOf.Add(2*time.Hour), 100000))
	after, _ := agg.Aggregate(context.Background(), "org-1", "acc-1", w, KindSum, "amount", asOf)
	if !after.Equal(first) {
		t.Error("transaction outside the window changed the aggregate")
	}
}

func TestRejectsUnknownSpecs(t *testing.T) {
	agg := NewAggregator(&fakeStore{})
	ctx := context.Background()

	_, err := agg.Aggregate(ctx, "org-1", "acc-1",
		domain.Window{Duration: 1, Unit: "fortnights"}, KindSum, "amount", time.Now())
	if !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for unknown unit, got %v", err)
	}

	_, err = agg.Aggregate(ctx, "org-1", "acc-1",
		domain.Window{Duration: 1, Unit: "hours"}, Kind("median"), "amount", time.Now())
	if !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for unknown kind, got %v", err)
	}
}
