package domain

import (
	"time"
)

// Transaction decisions, in ascending severity.
const (
	DecisionAllow  = "ALLOW"
	DecisionReview = "REVIEW"
	DecisionBlock  = "BLOCK"
)

// DecisionRank orders decisions by severity: BLOCK > REVIEW > ALLOW.
func DecisionRank(decision string) int {
	switch decision {
	case DecisionBlock:
		return 2
	case DecisionReview:
		return 1
	default:
		return 0
	}
}

// WorseDecision returns the higher-severity of two decisions.
func WorseDecision(a, b string) string {
	if DecisionRank(b) > DecisionRank(a) {
		return b
	}
	if a == "" {
		return DecisionAllow
	}
	return a
}

// RuleOutcome records one rule version's contribution to an evaluation.
type RuleOutcome struct {
	RuleVersionID string `json:"ruleVersionId"`
	Matched       bool   `json:"matched"`
	Decision      string `json:"decision,omitempty"`
	AlertIDs      []string `json:"alertIds,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Error         string `json:"error,omitempty"`
	ProcessMs     int64  `json:"processMs"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId"`
	FactsMs        int64  `json:"factsMs"`
	RulesMs        int64  `json:"rulesMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	EngineVersion  string `json:"engineVersion"`
}

// Evaluation is the complete result of evaluating one transaction.
type Evaluation struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	TxID     string `json:"txId"`

	Decision         string   `json:"decision"`
	TriggeredRuleIDs []string `json:"triggeredRuleIds"`
	AlertIDs         []string `json:"alertIds"`

	// Partial is set when a caller deadline expired before all active
	// rules ran; the decision is the best among committed rules.
	Partial bool `json:"partial,omitempty"`

	Timestamp   time.Time          `json:"timestamp"`
	RuleResults []RuleOutcome      `json:"ruleResults"`
	Metadata    EvaluationMetadata `json:"metadata"`
}
