package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Report is the full narration of one persisted evaluation.
type Report struct {
	EvaluationID string            `json:"evaluationId"`
	TxID         string            `json:"txId"`
	Decision     string            `json:"decision"`
	Partial      bool              `json:"partial,omitempty"`
	Rules        []RuleExplanation `json:"rules"`
}

// RuleExplanation narrates one rule's outcome.
type RuleExplanation struct {
	RuleVersionID string         `json:"ruleVersionId"`
	Name          string         `json:"name"`
	Matched       bool           `json:"matched"`
	Skipped       bool           `json:"skipped,omitempty"`
	Error         string         `json:"error,omitempty"`
	Facts         map[string]any `json:"facts,omitempty"`
	Explanation   *Explanation   `json:"explanation,omitempty"`
}

// Service reconstructs evaluations from persisted state. It resolves
// facts through its own code path, reading the store directly and never
// touching the cache: explanations must reflect ground truth.
type Service struct {
	store domain.Store
}

// NewService builds the explanation service over the store.
func NewService(store domain.Store) *Service {
	return &Service{store: store}
}

// ExplainEvaluation narrates a persisted evaluation rule by rule. The
// transaction history is append-only and window facts are anchored at
// the transaction timestamp, so the reconstruction is reproducible.
func (s *Service) ExplainEvaluation(ctx context.Context, tenantID, evaluationID string) (*Report, error) {
	eval, err := s.store.GetEvaluation(ctx, tenantID, evaluationID)
	if err != nil {
		return nil, err
	}
	tx, err := s.store.GetTransaction(ctx, tenantID, eval.TxID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		EvaluationID: eval.ID,
		TxID:         eval.TxID,
		Decision:     eval.Decision,
		Partial:      eval.Partial,
	}
	for _, outcome := range eval.RuleResults {
		re, err := s.explainOutcome(ctx, tenantID, tx, outcome)
		if err != nil {
			return nil, err
		}
		report.Rules = append(report.Rules, re)
	}
	return report, nil
}

// ExplainRule narrates one rule version against one transaction without
// requiring a persisted evaluation.
func (s *Service) ExplainRule(ctx context.Context, tenantID, ruleVersionID, txID string) (*RuleExplanation, error) {
	rv, err := s.store.GetRuleVersion(ctx, tenantID, ruleVersionID)
	if err != nil {
		return nil, err
	}
	tx, err := s.store.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		return nil, err
	}
	re := s.explainRule(ctx, tenantID, tx, rv)
	return &re, nil
}

func (s *Service) explainOutcome(ctx context.Context, tenantID string, tx *domain.Transaction, outcome domain.RuleOutcome) (RuleExplanation, error) {
	rv, err := s.store.GetRuleVersion(ctx, tenantID, outcome.RuleVersionID)
	if err != nil {
		return RuleExplanation{}, err
	}
	if outcome.Skipped {
		return RuleExplanation{
			RuleVersionID: rv.ID,
			Name:          rv.Name,
			Skipped:       true,
			Error:         outcome.Error,
		}, nil
	}
	return s.explainRule(ctx, tenantID, tx, rv), nil
}

func (s *Service) explainRule(ctx context.Context, tenantID string, tx *domain.Transaction, rv *domain.RuleVersion) RuleExplanation {
	re := RuleExplanation{RuleVersionID: rv.ID, Name: rv.Name}

	if rv.Conditions == nil {
		re.Matched = false
		re.Error = "rule uses an expression; only condition trees are narrated"
		return re
	}

	facts, err := s.resolveFacts(ctx, tenantID, tx, rv)
	if err != nil {
		re.Skipped = true
		re.Error = err.Error()
		return re
	}

	explanation := Tree(rv.Conditions, facts)
	re.Matched = explanation.Satisfied
	re.Facts = facts
	re.Explanation = &explanation
	return re
}

// resolveFacts rebuilds the fact map a rule saw, independently of the
// production resolver.
func (s *Service) resolveFacts(ctx context.Context, tenantID string, tx *domain.Transaction, rv *domain.RuleVersion) (map[string]any, error) {
	facts := map[string]any{
		"amount":         tx.Amount,
		"baseAmount":     tx.BaseAmount,
		"quantity":       tx.Quantity,
		"price":          tx.Price,
		"currency":       tx.Currency,
		"country":        tx.Country,
		"counterpartyId": tx.CounterpartyID,
		"channel":        tx.Channel,
		"type":           tx.Type,
		"subType":        tx.SubType,
		"asset":          tx.Asset,
		"accountId":      tx.AccountID,
	}

	for _, name := range rv.Conditions.Facts() {
		switch {
		case strings.HasPrefix(name, "window."):
			value, err := s.windowFact(ctx, tenantID, tx, rv, name)
			if err != nil {
				return nil, err
			}
			facts[name] = value
		case strings.HasPrefix(name, "list."):
			value, err := s.listFact(ctx, tenantID, tx, name)
			if err != nil {
				return nil, err
			}
			facts[name] = value
		}
	}
	return facts, nil
}

func (s *Service) windowFact(ctx context.Context, tenantID string, tx *domain.Transaction, rv *domain.RuleVersion, name string) (any, error) {
	parts := strings.SplitN(strings.TrimPrefix(name, "window."), ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed window fact %s", name)
	}
	kind, attribute := parts[0], parts[1]
	if rv.Window == nil {
		return nil, fmt.Errorf("rule %s declares no window for %s", rv.ID, name)
	}
	span := rv.Window.TimeSpan()
	if span <= 0 {
		return nil, fmt.Errorf("rule %s has an invalid window", rv.ID)
	}

	from := tx.Timestamp.Add(-span)
	history, err := s.store.QueryTransactions(ctx, tenantID, tx.AccountID, from, tx.Timestamp)
	if err != nil {
		return nil, err
	}

	trace, err := Aggregation(*rv.Window, kind, attribute, tx.Timestamp, history)
	if err != nil {
		return nil, err
	}
	return trace.Value, nil
}

func (s *Service) listFact(ctx context.Context, tenantID string, tx *domain.Transaction, name string) (any, error) {
	parts := strings.SplitN(strings.TrimPrefix(name, "list."), ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed list fact %s", name)
	}
	entityType := strings.ToUpper(parts[0])
	flag := parts[1]

	var value string
	switch entityType {
	case domain.EntityCountry:
		value = tx.Country
	case domain.EntityAccount:
		value = tx.AccountID
	case domain.EntityCounterparty:
		value = tx.CounterpartyID
	default:
		return nil, fmt.Errorf("unknown entity type in %s", name)
	}
	if value == "" {
		return false, nil
	}

	matches, err := s.store.QueryListEntries(ctx, tenantID, entityType, value)
	if err != nil {
		return nil, err
	}
	wantKind := domain.ListBlacklist
	if flag == "whitelisted" {
		wantKind = domain.ListWhitelist
	}
	for _, m := range matches {
		if m.Matched && m.ListKind == wantKind {
			return true, nil
		}
	}
	return false, nil
}
