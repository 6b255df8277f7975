package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ExpressionEngine evaluates CEL-based rule expressions, the advanced
// alternative to condition trees. Programs are compiled once at rule
// creation and cached by expression text.
type ExpressionEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// NewExpressionEngine builds the CEL environment. Expressions see the
// resolved fact map as `facts` plus the common attributes as top-level
// variables.
func NewExpressionEngine() (*ExpressionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("baseAmount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("counterpartyId", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("txType", cel.StringType),
		cel.Variable("accountId", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExpressionEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile validates an expression and caches its program. Called at rule
// creation so malformed expressions are rejected before activation.
func (e *ExpressionEngine) Compile(expression string) error {
	if expression == "" {
		return domain.NewValidationError("expression", "expression is required")
	}

	e.mu.RLock()
	_, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return nil
}

// Evaluate runs an expression against a resolved fact map.
func (e *ExpressionEngine) Evaluate(expression string, facts map[string]any) (bool, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()

	if !ok {
		var err error
		program, err = e.compile(expression)
		if err != nil {
			return false, err
		}
		e.mu.Lock()
		e.programs[expression] = program
		e.mu.Unlock()
	}

	activation := celActivation(facts)
	out, _, err := program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool")
	}
	return bool(b), nil
}

func (e *ExpressionEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, domain.NewValidationError("expression", issues.Err().Error())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, domain.NewValidationError("expression", "expression must return bool, got "+ast.OutputType().String())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

// celActivation maps the fact map into CEL variables. Decimals convert to
// float64 since CEL has no exact-decimal type; the condition-tree path
// remains the exact-arithmetic one.
func celActivation(facts map[string]any) map[string]any {
	converted := make(map[string]any, len(facts))
	for k, v := range facts {
		converted[k] = celValue(v)
	}

	activation := map[string]any{
		"facts":          converted,
		"amount":         0.0,
		"baseAmount":     0.0,
		"currency":       "",
		"country":        "",
		"counterpartyId": "",
		"channel":        "",
		"txType":         "",
		"accountId":      "",
	}
	for _, k := range []string{"amount", "baseAmount", "currency", "country", "counterpartyId", "channel", "accountId"} {
		if v, ok := converted[k]; ok {
			activation[k] = v
		}
	}
	if v, ok := converted["type"]; ok {
		activation["txType"] = v
	}
	return activation
}

func celValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return v
}
