// Package window computes sliding-window aggregate facts over an
// account's transaction history.
package window

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Kind selects the aggregation applied over the window.
type Kind string

const (
	KindSum           Kind = "sum"
	KindCount         Kind = "count"
	KindAvg           Kind = "avg"
	KindDistinctCount Kind = "distinctCount"
)

// KnownKind reports whether k is a supported aggregation kind.
func KnownKind(k Kind) bool {
	switch k {
	case KindSum, KindCount, KindAvg, KindDistinctCount:
		return true
	}
	return false
}

// Aggregator computes point-in-time aggregates from the store. It holds
// no cache: window facts must always reflect the latest history.
type Aggregator struct {
	store domain.Store
}

// NewAggregator creates a window aggregator backed by the store.
func NewAggregator(store domain.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Aggregate computes the aggregate over the half-open interval
// [asOf−duration, asOf). The upper bound is exclusive, so the triggering
// transaction (timestamp == asOf) never contributes to its own window.
// Voided, blocked and deleted rows are excluded. The result is a pure
// function of the persisted history as of asOf.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID, accountID string, w domain.Window, kind Kind, attribute string, asOf time.Time) (decimal.Decimal, error) {
	if tenantID == "" || accountID == "" {
		return decimal.Zero, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}
	span := w.TimeSpan()
	if span <= 0 {
		return decimal.Zero, domain.NewValidationError("window", "unknown window unit "+w.Unit)
	}
	if !KnownKind(kind) {
		return decimal.Zero, domain.NewValidationError("aggregation", "unknown aggregation kind "+string(kind))
	}

	from := asOf.Add(-span)
	txs, err := a.store.QueryTransactions(ctx, tenantID, accountID, from, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("window query failed: %w", err)
	}

	return Reduce(txs, from, asOf, kind, attribute), nil
}

// Reduce folds a transaction snapshot into a single aggregate value. It
// re-applies the interval and exclusion filters so the result does not
// depend on what the store chose to return.
func Reduce(txs []*domain.Transaction, from, to time.Time, kind Kind, attribute string) decimal.Decimal {
	sum := decimal.Zero
	count := int64(0)
	distinct := make(map[string]struct{})

	for _, tx := range txs {
		if tx.Excluded() {
			continue
		}
		if tx.Timestamp.Before(from) || !tx.Timestamp.Before(to) {
			continue
		}

		switch kind {
		case KindCount:
			count++
		case KindDistinctCount:
			v, ok := tx.Attribute(attribute)
			if !ok {
				continue
			}
			distinct[fmt.Sprint(v)] = struct{}{}
		case KindSum, KindAvg:
			v, ok := tx.Attribute(attribute)
			if !ok {
				continue
			}
			d, ok := v.(decimal.Decimal)
			if !ok {
				continue
			}
			sum = sum.Add(d)
			count++
		}
	}

	switch kind {
	case KindCount:
		return decimal.NewFromInt(count)
	case KindDistinctCount:
		return decimal.NewFromInt(int64(len(distinct)))
	case KindAvg:
		if count == 0 {
			return decimal.Zero
		}
		return sum.DivRound(decimal.NewFromInt(count), 8)
	default:
		return sum
	}
}
