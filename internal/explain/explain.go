// Package explain narrates rule evaluations for audit and debugging. It
// reimplements the evaluation semantics from the ground up, sharing no
// code with the production evaluator, so the two implementations check
// each other: a disagreement is a bug in one of them.
package explain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// missing marks a fact absent from the fact map. Comparisons against a
// missing fact are unsatisfied; only existence operators see it as such.
type missing struct{}

func (missing) String() string { return "(absent)" }

// Explanation describes one condition node's outcome in reviewable form.
type Explanation struct {
	Kind      string        `json:"kind"` // "all", "any" or "comparison"
	Fact      string        `json:"fact,omitempty"`
	Operator  string        `json:"operator,omitempty"`
	Expected  any           `json:"expected,omitempty"`
	Actual    any           `json:"actual,omitempty"`
	Satisfied bool          `json:"satisfied"`
	Detail    string        `json:"detail"`
	Children  []Explanation `json:"children,omitempty"`
}

// Tree explains a condition tree against a fact map. A node with a
// non-nil All slice is a conjunction even when empty (vacuously
// satisfied); a non-nil Any slice is a disjunction (an empty one is
// unsatisfiable). Everything else is a comparison.
func Tree(node *domain.Condition, facts map[string]any) Explanation {
	if node.All != nil {
		e := Explanation{Kind: "all", Satisfied: true}
		failed := 0
		for i := range node.All {
			child := Tree(&node.All[i], facts)
			if !child.Satisfied {
				e.Satisfied = false
				failed++
			}
			e.Children = append(e.Children, child)
		}
		if e.Satisfied {
			e.Detail = fmt.Sprintf("all %d conditions satisfied", len(node.All))
		} else {
			e.Detail = fmt.Sprintf("%d of %d conditions unsatisfied", failed, len(node.All))
		}
		return e
	}

	if node.Any != nil {
		e := Explanation{Kind: "any"}
		for i := range node.Any {
			child := Tree(&node.Any[i], facts)
			if child.Satisfied {
				e.Satisfied = true
			}
			e.Children = append(e.Children, child)
		}
		if e.Satisfied {
			e.Detail = "at least one alternative satisfied"
		} else if len(node.Any) == 0 {
			e.Detail = "no alternatives to satisfy"
		} else {
			e.Detail = fmt.Sprintf("none of %d alternatives satisfied", len(node.Any))
		}
		return e
	}

	return comparison(node, facts)
}

func comparison(node *domain.Condition, facts map[string]any) Explanation {
	actual, present := facts[node.Fact]
	if !present {
		actual = missing{}
	}

	e := Explanation{
		Kind:     "comparison",
		Fact:     node.Fact,
		Operator: node.Operator,
		Expected: node.Value,
		Actual:   actual,
	}

	switch node.Operator {
	case "exists":
		e.Satisfied = present
		if present {
			e.Detail = fmt.Sprintf("%s is present", node.Fact)
		} else {
			e.Detail = fmt.Sprintf("%s is absent", node.Fact)
		}
		return e
	case "notExists":
		e.Satisfied = !present
		if present {
			e.Detail = fmt.Sprintf("%s is present", node.Fact)
		} else {
			e.Detail = fmt.Sprintf("%s is absent", node.Fact)
		}
		return e
	}

	if !present {
		e.Satisfied = false
		e.Detail = fmt.Sprintf("%s is absent, comparison cannot hold", node.Fact)
		return e
	}

	e.Satisfied = holds(node.Operator, actual, node.Value)
	verb := "does not hold"
	if e.Satisfied {
		verb = "holds"
	}
	e.Detail = fmt.Sprintf("%s %s %v %s (actual %v)", node.Fact, node.Operator, node.Value, verb, render(actual))
	return e
}

func holds(op string, actual, expected any) bool {
	switch op {
	case "equal":
		return sameValue(actual, expected)
	case "notEqual":
		return !sameValue(actual, expected)
	case "equalIgnoreCase":
		a, aok := stringValue(actual)
		b, bok := stringValue(expected)
		return aok && bok && strings.EqualFold(a, b)
	case "greaterThan":
		return ordered(actual, expected, func(c int) bool { return c > 0 })
	case "lessThan":
		return ordered(actual, expected, func(c int) bool { return c < 0 })
	case "greaterThanOrEqual":
		return ordered(actual, expected, func(c int) bool { return c >= 0 })
	case "lessThanOrEqual":
		return ordered(actual, expected, func(c int) bool { return c <= 0 })
	case "in":
		return member(actual, expected)
	case "notIn":
		return !member(actual, expected)
	case "between":
		bounds := elements(expected)
		if len(bounds) != 2 {
			return false
		}
		return ordered(actual, bounds[0], func(c int) bool { return c >= 0 }) &&
			ordered(actual, bounds[1], func(c int) bool { return c <= 0 })
	default:
		return false
	}
}

func sameValue(a, b any) bool {
	na, aok := numeric(a)
	nb, bok := numeric(b)
	if aok && bok {
		return na.Equal(nb)
	}
	if ba, ok := a.(bool); ok {
		bb, ok2 := b.(bool)
		return ok2 && ba == bb
	}
	sa, aok := stringValue(a)
	sb, bok := stringValue(b)
	return aok && bok && sa == sb
}

func ordered(a, b any, test func(int) bool) bool {
	na, aok := numeric(a)
	nb, bok := numeric(b)
	if !aok || !bok {
		return false
	}
	return test(na.Cmp(nb))
}

func member(v, set any) bool {
	for _, candidate := range elements(set) {
		if sameValue(v, candidate) {
			return true
		}
	}
	return false
}

func elements(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}

func numeric(v any) (decimal.Decimal, bool) {
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

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case decimal.Decimal:
		return s.String(), true
	default:
		return "", false
	}
}

func render(v any) string {
	if _, ok := v.(missing); ok {
		return "(absent)"
	}
	return fmt.Sprintf("%v", v)
}
