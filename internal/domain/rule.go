package domain

import (
	"encoding/json"
	"time"
)

// Condition is a node in a rule's boolean condition tree. Exactly one of
// All, Any, or the Fact/Operator leaf fields may be populated; the shape
// is validated once at rule-creation time and never re-validated during
// evaluation.
type Condition struct {
	// Combinator children. All requires every child true, Any at least one.
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`

	// Leaf comparison: {fact, operator, value}. Value carries no
	// omitempty: false and 0 are legitimate comparison values.
	Fact     string `json:"fact,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value"`
}

// conditionWire carries Condition over JSON with pointer slices, keeping
// the nil/empty distinction that omitempty would erase. all([]) is
// vacuously true and must survive the cache and store round trips.
type conditionWire struct {
	All      *[]Condition `json:"all,omitempty"`
	Any      *[]Condition `json:"any,omitempty"`
	Fact     string       `json:"fact,omitempty"`
	Operator string       `json:"operator,omitempty"`
	Value    any          `json:"value"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	w := conditionWire{Fact: c.Fact, Operator: c.Operator, Value: c.Value}
	if c.All != nil {
		w.All = &c.All
	}
	if c.Any != nil {
		w.Any = &c.Any
	}
	return json.Marshal(w)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Condition{Fact: w.Fact, Operator: w.Operator, Value: w.Value}
	if w.All != nil {
		c.All = *w.All
	}
	if w.Any != nil {
		c.Any = *w.Any
	}
	return nil
}

// IsLeaf reports whether the node is a comparison leaf. An explicit
// empty combinator is still a combinator: all([]) is vacuously true and
// any([]) is false.
func (c *Condition) IsLeaf() bool {
	return c.All == nil && c.Any == nil
}

// Facts returns every fact name referenced in the subtree.
func (c *Condition) Facts() []string {
	var out []string
	c.collectFacts(&out)
	return out
}

func (c *Condition) collectFacts(out *[]string) {
	if c.IsLeaf() {
		if c.Fact != "" {
			*out = append(*out, c.Fact)
		}
		return
	}
	for i := range c.All {
		c.All[i].collectFacts(out)
	}
	for i := range c.Any {
		c.Any[i].collectFacts(out)
	}
}

// Window specifies the trailing time interval for aggregate facts.
type Window struct {
	Duration int    `json:"duration"`
	Unit     string `json:"unit"` // "minutes", "hours" or "days"
}

// TimeSpan converts the window spec to a duration.
func (w Window) TimeSpan() time.Duration {
	switch w.Unit {
	case "minutes":
		return time.Duration(w.Duration) * time.Minute
	case "hours":
		return time.Duration(w.Duration) * time.Hour
	case "days":
		return time.Duration(w.Duration) * 24 * time.Hour
	default:
		return 0
	}
}

// Rule action types.
const (
	ActionCreateAlert = "CREATE_ALERT"
	ActionSetDecision = "SET_DECISION"
)

// RuleAction is executed, in order, when a rule's conditions evaluate true.
type RuleAction struct {
	Type string `json:"type"`

	// Alert parameters (CREATE_ALERT)
	Severity string `json:"severity,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`

	// Decision contribution (SET_DECISION)
	Decision string `json:"decision,omitempty"`

	// HaltOnMatch stops evaluation of remaining rules after this action.
	HaltOnMatch bool `json:"haltOnMatch,omitempty"`
}

// RuleVersion is one immutable version of a rule template. Updating a rule
// means creating a new version and deactivating the old one; at most one
// version per template is active at any instant.
type RuleVersion struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TemplateID string `json:"templateId"`
	Version    int    `json:"version"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Conditions is the boolean tree evaluated against resolved facts.
	// Expression is an alternative CEL expression for advanced rules;
	// exactly one of the two is set, enforced at creation.
	Conditions *Condition `json:"conditions,omitempty"`
	Expression string     `json:"expression,omitempty"`

	Actions []RuleAction `json:"actions"`
	Window  *Window      `json:"window,omitempty"`

	// Priority orders evaluation, descending.
	Priority int  `json:"priority"`
	Enabled  bool `json:"enabled"`

	ActivatedAt   time.Time  `json:"activatedAt"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ActiveAt reports whether the version is effective at the given instant.
func (r *RuleVersion) ActiveAt(t time.Time) bool {
	if !r.Enabled {
		return false
	}
	if t.Before(r.ActivatedAt) {
		return false
	}
	if r.DeactivatedAt != nil && !t.Before(*r.DeactivatedAt) {
		return false
	}
	return true
}
