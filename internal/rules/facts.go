// Package rules orchestrates transaction evaluation: fact resolution,
// rule execution and decision aggregation.
package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/lists"
	"github.com/opensource-finance/harrier/internal/window"
)

// Derived fact name prefixes. Base transaction attributes are published
// under their attribute name; aggregates and list memberships are
// namespaced so rules can reference them explicitly:
//
//	window.<kind>.<attribute>   e.g. window.sum.amount
//	list.<entityType>.<flag>    e.g. list.country.blacklisted
const (
	windowFactPrefix = "window."
	listFactPrefix   = "list."
)

// Base attribute names published for every transaction.
var baseAttributes = []string{
	"amount", "baseAmount", "quantity", "price",
	"currency", "country", "counterpartyId", "channel",
	"type", "subType", "asset", "accountId",
}

// FactResolver assembles the fact map one rule evaluates against.
// Derived facts resolve concurrently, bounded by maxWorkers.
type FactResolver struct {
	aggregator *window.Aggregator
	lists      *lists.Resolver
	maxWorkers int
}

// NewFactResolver wires the resolver over its fact sources.
func NewFactResolver(agg *window.Aggregator, lr *lists.Resolver, maxWorkers int) *FactResolver {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &FactResolver{aggregator: agg, lists: lr, maxWorkers: maxWorkers}
}

// Resolve builds the fact map for one rule against one transaction.
// Base attributes are always present; derived facts are resolved only
// when the rule references them. Any derived-fact failure fails the
// whole resolution so the rule is skipped rather than evaluated against
// silently missing data.
func (r *FactResolver) Resolve(ctx context.Context, tx *domain.Transaction, rv *domain.RuleVersion) (map[string]any, error) {
	facts := make(map[string]any, len(baseAttributes))
	for _, name := range baseAttributes {
		if v, ok := tx.Attribute(name); ok {
			facts[name] = v
		}
	}

	derived := derivedFactNames(rv)
	if len(derived) == 0 {
		return facts, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		sem      = make(chan struct{}, r.maxWorkers)
	)
	for _, name := range derived {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := r.resolveDerived(ctx, tx, rv, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("resolve fact %s: %w", name, err)
				}
				return
			}
			facts[name] = value
		}(name)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return facts, nil
}

func (r *FactResolver) resolveDerived(ctx context.Context, tx *domain.Transaction, rv *domain.RuleVersion, name string) (any, error) {
	switch {
	case strings.HasPrefix(name, windowFactPrefix):
		return r.resolveWindow(ctx, tx, rv, name)
	case strings.HasPrefix(name, listFactPrefix):
		return r.resolveList(ctx, tx, name)
	default:
		return nil, fmt.Errorf("%w: unknown derived fact %s", domain.ErrInvalidInput, name)
	}
}

// resolveWindow computes window.<kind>.<attribute> using the rule's
// window spec and the transaction timestamp as the asOf instant.
func (r *FactResolver) resolveWindow(ctx context.Context, tx *domain.Transaction, rv *domain.RuleVersion, name string) (any, error) {
	kind, attribute, err := ParseWindowFact(name)
	if err != nil {
		return nil, err
	}
	if rv.Window == nil {
		return nil, domain.NewValidationError("window", "rule references "+name+" but declares no window")
	}
	return r.aggregator.Aggregate(ctx, tx.TenantID, tx.AccountID, *rv.Window, kind, attribute, tx.Timestamp)
}

// resolveList answers list.<entityType>.<blacklisted|whitelisted> for
// the transaction attribute matching the entity type.
func (r *FactResolver) resolveList(ctx context.Context, tx *domain.Transaction, name string) (any, error) {
	entityType, flag, err := ParseListFact(name)
	if err != nil {
		return nil, err
	}

	var value string
	switch entityType {
	case domain.EntityCountry:
		value = tx.Country
	case domain.EntityAccount:
		value = tx.AccountID
	case domain.EntityCounterparty:
		value = tx.CounterpartyID
	}
	if value == "" {
		// Nothing to look up; the fact is a definite non-membership.
		return false, nil
	}

	m, err := r.lists.ResolveMembership(ctx, tx.TenantID, lists.Query{EntityType: entityType, Value: value})
	if err != nil {
		return nil, err
	}
	if flag == "blacklisted" {
		return m.Blacklisted, nil
	}
	return m.Whitelisted, nil
}

// ParseWindowFact splits window.<kind>.<attribute> and validates the kind.
func ParseWindowFact(name string) (window.Kind, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(name, windowFactPrefix), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", domain.NewValidationError("fact", "malformed window fact "+name)
	}
	kind := window.Kind(parts[0])
	if !window.KnownKind(kind) {
		return "", "", domain.NewValidationError("fact", "unknown aggregation kind in "+name)
	}
	return kind, parts[1], nil
}

// ParseListFact splits list.<entityType>.<flag> and validates both parts.
func ParseListFact(name string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(name, listFactPrefix), ".", 2)
	if len(parts) != 2 {
		return "", "", domain.NewValidationError("fact", "malformed list fact "+name)
	}
	entityType := strings.ToUpper(parts[0])
	if !lists.KnownEntityType(entityType) {
		return "", "", domain.NewValidationError("fact", "unknown entity type in "+name)
	}
	flag := parts[1]
	if flag != "blacklisted" && flag != "whitelisted" {
		return "", "", domain.NewValidationError("fact", "unknown list flag in "+name)
	}
	return entityType, flag, nil
}

// derivedFactNames extracts the unique derived fact names a rule uses.
func derivedFactNames(rv *domain.RuleVersion) []string {
	if rv.Conditions == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, name := range rv.Conditions.Facts() {
		if !strings.HasPrefix(name, windowFactPrefix) && !strings.HasPrefix(name, listFactPrefix) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
