package explain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Contribution records how one transaction in the snapshot affected an
// aggregate. Excluded transactions carry the reason they were skipped.
type Contribution struct {
	TxID     string `json:"txId"`
	Included bool   `json:"included"`
	Value    any    `json:"value,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AggregationTrace narrates one window aggregation: the exact half-open
// interval, every transaction's contribution, and the final value.
type AggregationTrace struct {
	Kind          string          `json:"kind"`
	Attribute     string          `json:"attribute,omitempty"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Contributions []Contribution  `json:"contributions,omitempty"`
	Count         int64           `json:"count"`
	Value         decimal.Decimal `json:"value"`
	Detail        string          `json:"detail"`
}

// Aggregation explains a window aggregate over a caller-supplied
// transaction snapshot. It never reads the store or the cache: the
// caller decides what history the aggregate is computed from. The
// interval is [asOf-window, asOf), so a transaction stamped exactly at
// asOf never contributes.
func Aggregation(w domain.Window, kind, attribute string, asOf time.Time, history []*domain.Transaction) (AggregationTrace, error) {
	span := w.TimeSpan()
	if span <= 0 {
		return AggregationTrace{}, fmt.Errorf("invalid window %d %s", w.Duration, w.Unit)
	}
	switch kind {
	case "count", "distinctCount", "sum", "avg":
	default:
		return AggregationTrace{}, fmt.Errorf("unknown aggregation kind %q", kind)
	}

	trace := AggregationTrace{
		Kind:      kind,
		Attribute: attribute,
		From:      asOf.Add(-span),
		To:        asOf,
	}

	sum := decimal.Zero
	distinct := make(map[string]struct{})
	for _, h := range history {
		c := Contribution{TxID: h.ID}
		switch {
		case h.Voided:
			c.Reason = "voided"
		case h.Blocked:
			c.Reason = "blocked"
		case h.Deleted:
			c.Reason = "deleted"
		case h.Timestamp.Before(trace.From) || !h.Timestamp.Before(trace.To):
			c.Reason = "outside window"
		default:
			switch kind {
			case "count":
				c.Included = true
				trace.Count++
			case "distinctCount":
				v, ok := h.Attribute(attribute)
				if !ok {
					c.Reason = attribute + " absent"
					break
				}
				c.Included = true
				c.Value = v
				distinct[fmt.Sprint(v)] = struct{}{}
			default: // sum, avg
				v, ok := h.Attribute(attribute)
				if !ok {
					c.Reason = attribute + " absent"
					break
				}
				d, ok := v.(decimal.Decimal)
				if !ok {
					c.Reason = attribute + " is not numeric"
					break
				}
				c.Included = true
				c.Value = d
				sum = sum.Add(d)
				trace.Count++
			}
		}
		trace.Contributions = append(trace.Contributions, c)
	}

	switch kind {
	case "count":
		trace.Value = decimal.NewFromInt(trace.Count)
	case "distinctCount":
		trace.Count = int64(len(distinct))
		trace.Value = decimal.NewFromInt(trace.Count)
	case "avg":
		if trace.Count > 0 {
			trace.Value = sum.DivRound(decimal.NewFromInt(trace.Count), 8)
		} else {
			trace.Value = decimal.Zero
		}
	case "sum":
		trace.Value = sum
	}

	target := kind
	if attribute != "" {
		target = fmt.Sprintf("%s(%s)", kind, attribute)
	}
	trace.Detail = fmt.Sprintf("%s over [%s, %s) = %s from %d of %d transactions",
		target,
		trace.From.Format(time.RFC3339),
		trace.To.Format(time.RFC3339),
		trace.Value, trace.Count, len(history))
	return trace, nil
}
