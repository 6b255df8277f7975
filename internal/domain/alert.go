package domain

import (
	"time"
)

// Alert statuses. OPEN is the only non-terminal entry state.
const (
	AlertOpen         = "OPEN"
	AlertAcknowledged = "ACKNOWLEDGED"
	AlertResolved     = "RESOLVED"
	AlertDismissed    = "DISMISSED"
)

// Alert severities.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Alert is produced by a triggered rule action and references the
// triggering transaction and rule version.
type Alert struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	TxID          string `json:"txId"`
	RuleVersionID string `json:"ruleVersionId"`

	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Status   string `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransitionTo moves the alert to a new status. Only OPEN alerts accept
// a transition; ACKNOWLEDGED may still be resolved or dismissed.
func (a *Alert) TransitionTo(status string) error {
	switch status {
	case AlertAcknowledged, AlertResolved, AlertDismissed:
	default:
		return NewValidationError("status", "unknown alert status "+status)
	}

	switch a.Status {
	case AlertOpen:
	case AlertAcknowledged:
		if status == AlertAcknowledged {
			return &StateConflictError{Entity: "alert", ID: a.ID, State: a.Status}
		}
	default:
		return &StateConflictError{Entity: "alert", ID: a.ID, State: a.Status}
	}

	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}
