// Package lists resolves compliance-list membership facts.
package lists

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Query identifies one attribute whose membership is being resolved.
type Query struct {
	EntityType string
	Value      string
}

// Resolver answers blacklist/whitelist membership questions, cache-first.
// Matching is exact and case-sensitive on the stored entry value.
type Resolver struct {
	store domain.Store
	coord *cache.Coordinator
}

// NewResolver builds a resolver over the store and cache coordinator.
// A nil coordinator disables caching.
func NewResolver(store domain.Store, coord *cache.Coordinator) *Resolver {
	return &Resolver{store: store, coord: coord}
}

// Resolve returns every active-list match for the attribute. Soft-deleted
// lists and entries never match. The result includes one ListMatch per
// matching (list, entry) pair; an attribute on no list resolves to an
// empty slice, not an error.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, q Query) ([]*domain.ListMatch, error) {
	if q.EntityType == "" || q.Value == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "entityType and value are required"}
	}

	if r.coord != nil {
		if matches, ok := r.coord.GetListFacts(ctx, tenantID, q.EntityType, q.Value); ok {
			return matches, nil
		}
	}

	matches, err := r.store.QueryListEntries(ctx, tenantID, q.EntityType, q.Value)
	if err != nil {
		return nil, fmt.Errorf("query list entries: %w", err)
	}
	if matches == nil {
		matches = []*domain.ListMatch{}
	}

	if r.coord != nil {
		r.coord.SetListFacts(ctx, tenantID, q.EntityType, q.Value, matches)
	}
	return matches, nil
}

// Membership is the boolean digest of an attribute's list matches, the
// shape rule conditions consume.
type Membership struct {
	Blacklisted bool
	Whitelisted bool
	// Codes of the lists that matched, for explanations.
	BlacklistCodes []string
	WhitelistCodes []string
}

// ResolveMembership collapses an attribute's matches into per-kind flags.
func (r *Resolver) ResolveMembership(ctx context.Context, tenantID string, q Query) (Membership, error) {
	matches, err := r.Resolve(ctx, tenantID, q)
	if err != nil {
		return Membership{}, err
	}

	var m Membership
	for _, match := range matches {
		if !match.Matched {
			continue
		}
		switch match.ListKind {
		case domain.ListBlacklist:
			m.Blacklisted = true
			m.BlacklistCodes = append(m.BlacklistCodes, match.ListCode)
		case domain.ListWhitelist:
			m.Whitelisted = true
			m.WhitelistCodes = append(m.WhitelistCodes, match.ListCode)
		}
	}
	return m, nil
}

// KnownEntityType reports whether the type names a supported list scope.
func KnownEntityType(entityType string) bool {
	switch strings.ToUpper(entityType) {
	case domain.EntityCountry, domain.EntityAccount, domain.EntityCounterparty:
		return true
	}
	return false
}
