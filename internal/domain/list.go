package domain

import (
	"time"
)

// Compliance list kinds.
const (
	ListBlacklist = "BLACKLIST"
	ListWhitelist = "WHITELIST"
)

// Entity types a compliance list can be scoped to.
const (
	EntityCountry      = "COUNTRY"
	EntityAccount      = "ACCOUNT"
	EntityCounterparty = "COUNTERPARTY"
)

// ComplianceList is a named blacklist or whitelist scoped to one entity
// type. Soft-deletable: a deleted list never matches.
type ComplianceList struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	EntityType string `json:"entityType"`

	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Active reports whether the list participates in matching.
func (l *ComplianceList) Active() bool {
	return l.DeletedAt == nil
}

// ComplianceListEntry is one (value, label, metadata) tuple, unique per
// list. Soft-deletable independently of its list.
type ComplianceListEntry struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	ListID   string `json:"listId"`

	Value    string         `json:"value"`
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// ListMatch is a resolved list-membership fact.
type ListMatch struct {
	ListCode      string         `json:"listCode"`
	ListKind      string         `json:"listKind"`
	EntityType    string         `json:"entityType"`
	Value         string         `json:"value"`
	Matched       bool           `json:"matched"`
	EntryMetadata map[string]any `json:"entryMetadata,omitempty"`
}
