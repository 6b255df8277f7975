package rules

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/condition"
	"github.com/opensource-finance/harrier/internal/domain"
)

// ValidateRuleVersion checks a rule version at creation time. Evaluation
// assumes validated rules and never re-checks shape.
func ValidateRuleVersion(rv *domain.RuleVersion, exprs *ExpressionEngine) error {
	if rv.TemplateID == "" {
		return domain.NewValidationError("templateId", "templateId is required")
	}
	if rv.Name == "" {
		return domain.NewValidationError("name", "name is required")
	}

	hasConditions := rv.Conditions != nil
	hasExpression := rv.Expression != ""
	if hasConditions == hasExpression {
		return domain.NewValidationError("conditions", "exactly one of conditions or expression must be set")
	}

	if hasConditions {
		if err := condition.Validate(rv.Conditions); err != nil {
			return err
		}
		if err := validateDerivedFacts(rv); err != nil {
			return err
		}
	} else if exprs != nil {
		if err := exprs.Compile(rv.Expression); err != nil {
			return err
		}
	}

	if len(rv.Actions) == 0 {
		return domain.NewValidationError("actions", "at least one action is required")
	}
	for i, action := range rv.Actions {
		if err := validateAction(i, action); err != nil {
			return err
		}
	}

	if rv.Window != nil && rv.Window.TimeSpan() <= 0 {
		return domain.NewValidationError("window", "window duration and unit must describe a positive interval")
	}
	return nil
}

func validateDerivedFacts(rv *domain.RuleVersion) error {
	referencesWindow := false
	for _, name := range rv.Conditions.Facts() {
		switch {
		case strings.HasPrefix(name, windowFactPrefix):
			if _, _, err := ParseWindowFact(name); err != nil {
				return err
			}
			referencesWindow = true
		case strings.HasPrefix(name, listFactPrefix):
			if _, _, err := ParseListFact(name); err != nil {
				return err
			}
		}
	}
	if referencesWindow && rv.Window == nil {
		return domain.NewValidationError("window", "rule references window facts but declares no window")
	}
	return nil
}

func validateAction(i int, action domain.RuleAction) error {
	field := fmt.Sprintf("actions[%d]", i)
	switch action.Type {
	case domain.ActionCreateAlert:
		switch action.Severity {
		case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical:
		default:
			return domain.NewValidationError(field, "unknown alert severity "+action.Severity)
		}
	case domain.ActionSetDecision:
		switch action.Decision {
		case domain.DecisionAllow, domain.DecisionReview, domain.DecisionBlock:
		default:
			return domain.NewValidationError(field, "unknown decision "+action.Decision)
		}
	default:
		return domain.NewValidationError(field, "unknown action type "+action.Type)
	}
	return nil
}
