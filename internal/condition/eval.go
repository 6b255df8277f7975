package condition

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Absent is the typed sentinel a missing fact resolves to. Every
// comparison operator evaluates false against it; exists/notExists
// interpret it explicitly.
type Absent struct{}

// Trace records one node's evaluation: operands in, result out. The set
// of traces is sufficient to narrate the evaluation externally.
type Trace struct {
	Kind     string  `json:"kind"` // "all", "any" or "leaf"
	Fact     string  `json:"fact,omitempty"`
	Operator string  `json:"operator,omitempty"`
	Expected any     `json:"expected,omitempty"`
	Actual   any     `json:"actual,omitempty"`
	Result   bool    `json:"result"`
	Children []Trace `json:"children,omitempty"`
}

// Evaluate runs a validated condition tree against a fact map. It is pure
// and never fails: missing facts become the Absent sentinel and unknown
// comparisons evaluate false.
func Evaluate(node *domain.Condition, facts map[string]any) (bool, *Trace) {
	t := evalNode(node, facts)
	return t.Result, t
}

func evalNode(node *domain.Condition, facts map[string]any) *Trace {
	switch {
	case node.All != nil:
		t := &Trace{Kind: "all", Result: true}
		for i := range node.All {
			child := evalNode(&node.All[i], facts)
			t.Children = append(t.Children, *child)
			if !child.Result {
				t.Result = false
			}
		}
		return t
	case node.Any != nil:
		t := &Trace{Kind: "any", Result: false}
		for i := range node.Any {
			child := evalNode(&node.Any[i], facts)
			t.Children = append(t.Children, *child)
			if child.Result {
				t.Result = true
			}
		}
		return t
	}
	return evalLeaf(node, facts)
}

func evalLeaf(node *domain.Condition, facts map[string]any) *Trace {
	actual, present := facts[node.Fact]
	if !present {
		actual = Absent{}
	}

	t := &Trace{
		Kind:     "leaf",
		Fact:     node.Fact,
		Operator: node.Operator,
		Expected: node.Value,
		Actual:   actual,
	}

	switch node.Operator {
	case OpExists:
		t.Result = present
	case OpNotExists:
		t.Result = !present
	default:
		if !present {
			t.Result = false
			break
		}
		t.Result = compare(node.Operator, actual, node.Value)
	}
	return t
}

func compare(op string, actual, expected any) bool {
	switch op {
	case OpEqual:
		return equal(actual, expected)
	case OpNotEqual:
		return !equal(actual, expected)
	case OpEqualIgnoreCase:
		a, aok := toString(actual)
		b, bok := toString(expected)
		return aok && bok && strings.EqualFold(a, b)
	case OpGreaterThan:
		return numericCompare(actual, expected, func(c int) bool { return c > 0 })
	case OpLessThan:
		return numericCompare(actual, expected, func(c int) bool { return c < 0 })
	case OpGreaterThanOrEqual:
		return numericCompare(actual, expected, func(c int) bool { return c >= 0 })
	case OpLessThanOrEqual:
		return numericCompare(actual, expected, func(c int) bool { return c <= 0 })
	case OpIn:
		return contains(asSlice(expected), actual)
	case OpNotIn:
		return !contains(asSlice(expected), actual)
	case OpBetween:
		bounds := asSlice(expected)
		if len(bounds) != 2 {
			return false
		}
		return numericCompare(actual, bounds[0], func(c int) bool { return c >= 0 }) &&
			numericCompare(actual, bounds[1], func(c int) bool { return c <= 0 })
	default:
		return false
	}
}

// equal compares numerically when both sides are typed numbers, so 100
// and 100.00 agree regardless of width. Numeric strings are not coerced;
// they compare as case-sensitive strings. Booleans compare as booleans.
func equal(a, b any) bool {
	da, aok := toDecimal(a)
	db, bok := toDecimal(b)
	if aok && bok {
		return da.Equal(db)
	}
	if ab, ok := a.(bool); ok {
		bb, ok2 := b.(bool)
		return ok2 && ab == bb
	}
	sa, aok := toString(a)
	sb, bok := toString(b)
	return aok && bok && sa == sb
}

func numericCompare(a, b any, test func(int) bool) bool {
	da, aok := toDecimal(a)
	db, bok := toDecimal(b)
	if !aok || !bok {
		return false
	}
	return test(da.Cmp(db))
}

func contains(set []any, v any) bool {
	for _, member := range set {
		if equal(v, member) {
			return true
		}
	}
	return false
}

// toDecimal widens any numeric representation to an exact decimal.
// Numeric strings do not convert implicitly; only typed numbers do.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Decimal{}, false
	}
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case decimal.Decimal:
		return s.String(), true
	default:
		return "", false
	}
}
