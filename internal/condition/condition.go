// Package condition provides the production condition-tree evaluator.
// Trees are validated into a closed shape once at rule-creation time and
// evaluated, side-effect free, against resolved fact maps.
package condition

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Supported leaf operators.
const (
	OpEqual              = "equal"
	OpNotEqual           = "notEqual"
	OpEqualIgnoreCase    = "equalIgnoreCase"
	OpGreaterThan        = "greaterThan"
	OpLessThan           = "lessThan"
	OpGreaterThanOrEqual = "greaterThanOrEqual"
	OpLessThanOrEqual    = "lessThanOrEqual"
	OpIn                 = "in"
	OpNotIn              = "notIn"
	OpBetween            = "between"
	OpExists             = "exists"
	OpNotExists          = "notExists"
)

var operators = map[string]bool{
	OpEqual:              true,
	OpNotEqual:           true,
	OpEqualIgnoreCase:    true,
	OpGreaterThan:        true,
	OpLessThan:           true,
	OpGreaterThanOrEqual: true,
	OpLessThanOrEqual:    true,
	OpIn:                 true,
	OpNotIn:              true,
	OpBetween:            true,
	OpExists:             true,
	OpNotExists:          true,
}

// KnownOperator reports whether op is a supported leaf operator.
func KnownOperator(op string) bool {
	return operators[op]
}

// Validate checks a condition tree into the closed evaluable shape:
// every node is exactly one of an all-combinator, an any-combinator, or a
// {fact, operator, value} leaf with a known operator and a value of the
// arity the operator requires. Evaluation assumes a validated tree.
func Validate(node *domain.Condition) error {
	if node == nil {
		return domain.NewValidationError("conditions", "condition tree is required")
	}
	return validateNode(node, "conditions")
}

func validateNode(node *domain.Condition, path string) error {
	hasAll := node.All != nil
	hasAny := node.Any != nil
	hasLeaf := node.Fact != "" || node.Operator != ""

	switch {
	case hasAll && hasAny, hasAll && hasLeaf, hasAny && hasLeaf:
		return domain.NewValidationError(path, "node must be exactly one of all, any, or a comparison leaf")
	case hasAll:
		for i := range node.All {
			if err := validateNode(&node.All[i], fmt.Sprintf("%s.all[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case hasAny:
		for i := range node.Any {
			if err := validateNode(&node.Any[i], fmt.Sprintf("%s.any[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	return validateLeaf(node, path)
}

func validateLeaf(node *domain.Condition, path string) error {
	if node.Fact == "" {
		return domain.NewValidationError(path, "leaf requires a fact name")
	}
	if !KnownOperator(node.Operator) {
		return domain.NewValidationError(path, "unknown operator "+node.Operator)
	}

	switch node.Operator {
	case OpExists, OpNotExists:
		// No operand.
		return nil
	case OpIn, OpNotIn:
		if asSlice(node.Value) == nil {
			return domain.NewValidationError(path, node.Operator+" requires an array value")
		}
	case OpBetween:
		bounds := asSlice(node.Value)
		if len(bounds) != 2 {
			return domain.NewValidationError(path, "between requires a two-element array value")
		}
		if _, ok := toDecimal(bounds[0]); !ok {
			return domain.NewValidationError(path, "between bounds must be numeric")
		}
		if _, ok := toDecimal(bounds[1]); !ok {
			return domain.NewValidationError(path, "between bounds must be numeric")
		}
	default:
		if node.Value == nil {
			return domain.NewValidationError(path, node.Operator+" requires a value")
		}
	}
	return nil
}

func asSlice(v any) []any {
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
