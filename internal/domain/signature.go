package domain

import (
	"time"
)

// SignatureNode is a node in a signature rule's definition tree. Either a
// combinator (All/Any) or a {Group, Min} threshold leaf.
type SignatureNode struct {
	All []SignatureNode `json:"all,omitempty"`
	Any []SignatureNode `json:"any,omitempty"`

	Group string `json:"group,omitempty"`
	Min   int    `json:"min,omitempty"`
}

// IsLeaf reports whether the node is a group-threshold leaf.
func (n *SignatureNode) IsLeaf() bool {
	return len(n.All) == 0 && len(n.Any) == 0
}

// SignatureRule defines which signer-group combinations authorize an
// operation for a schema and faculty.
type SignatureRule struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Schema   string `json:"schema"`
	Faculty  string `json:"faculty"`

	Definition *SignatureNode `json:"ruleDefinition"`
	Priority   int            `json:"priority"`
	Active     bool           `json:"active"`

	CreatedAt time.Time `json:"createdAt"`
}

// SignerGroup is a named class of authorized signers.
type SignerGroup struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}

// Signer belongs to one or more groups.
type Signer struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	Name     string   `json:"name"`
	GroupIDs []string `json:"groupIds"`
}

// Signature request statuses.
const (
	RequestPending   = "PENDING"
	RequestSatisfied = "SATISFIED"
	RequestRejected  = "REJECTED"
)

// SignatureRequest collects signatures against one rule.
type SignatureRequest struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	RuleID   string `json:"ruleId"`
	Status   string `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Signature statuses. SIGNED and REJECTED are terminal.
const (
	SignaturePending  = "PENDING"
	SignatureSigned   = "SIGNED"
	SignatureRejected = "REJECTED"
)

// Signature is one signer's pending or completed signature on a request.
type Signature struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	RequestID string `json:"requestId"`
	SignerID  string `json:"signerId"`
	Status    string `json:"status"`

	CreatedAt time.Time  `json:"createdAt"`
	SignedAt  *time.Time `json:"signedAt,omitempty"`
}

// Sign transitions PENDING → SIGNED. Any other starting state is a
// conflict, not a no-op.
func (s *Signature) Sign() error {
	if s.Status != SignaturePending {
		return &StateConflictError{Entity: "signature", ID: s.ID, State: s.Status}
	}
	now := time.Now().UTC()
	s.Status = SignatureSigned
	s.SignedAt = &now
	return nil
}

// Reject transitions PENDING → REJECTED.
func (s *Signature) Reject() error {
	if s.Status != SignaturePending {
		return &StateConflictError{Entity: "signature", ID: s.ID, State: s.Status}
	}
	now := time.Now().UTC()
	s.Status = SignatureRejected
	s.SignedAt = &now
	return nil
}

// GroupCount maps a signer group to a required (or collected) count of
// distinct signers. A slice of GroupCounts is one satisfying combination.
type GroupCount map[string]int
