package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// Key families. Each family is invalidated as a whole on any write to
// its backing entities for the organization.
const (
	rulesKey       = "rules:active"
	listFactPrefix = "listfact:"
)

// Coordinator is the organization-scoped cache discipline for active
// rule sets and list-membership facts. Every backend failure degrades to
// a miss: correctness never depends on cache presence.
type Coordinator struct {
	cache       domain.Cache
	ruleSetTTL  time.Duration
	listFactTTL time.Duration
}

// NewCoordinator wraps a cache backend with the rule/list families.
// A nil backend is a valid always-miss mode.
func NewCoordinator(backend domain.Cache, ruleSetTTL, listFactTTL time.Duration) *Coordinator {
	if ruleSetTTL <= 0 {
		ruleSetTTL = 60 * time.Second
	}
	if listFactTTL <= 0 {
		listFactTTL = 30 * time.Second
	}
	return &Coordinator{
		cache:       backend,
		ruleSetTTL:  ruleSetTTL,
		listFactTTL: listFactTTL,
	}
}

// GetRuleSet returns the cached active rule set for the organization.
// The second return is false on miss or backend failure.
func (c *Coordinator) GetRuleSet(ctx context.Context, tenantID string) ([]*domain.RuleVersion, bool) {
	if c.cache == nil {
		return nil, false
	}

	data, err := c.cache.Get(ctx, tenantID, rulesKey)
	if err != nil {
		slog.Warn("rule-set cache degraded to miss", "tenant_id", tenantID, "error", err)
		metrics.CacheLookup("rules", false)
		return nil, false
	}
	if data == nil {
		metrics.CacheLookup("rules", false)
		return nil, false
	}

	var rules []*domain.RuleVersion
	if err := json.Unmarshal(data, &rules); err != nil {
		slog.Warn("rule-set cache entry corrupt, treating as miss", "tenant_id", tenantID, "error", err)
		metrics.CacheLookup("rules", false)
		return nil, false
	}
	metrics.CacheLookup("rules", true)
	return rules, true
}

// SetRuleSet caches the organization's active rule set.
func (c *Coordinator) SetRuleSet(ctx context.Context, tenantID string, rules []*domain.RuleVersion) {
	if c.cache == nil {
		return
	}

	data, err := json.Marshal(rules)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, tenantID, rulesKey, data, c.ruleSetTTL); err != nil {
		slog.Warn("rule-set cache set failed", "tenant_id", tenantID, "error", err)
	}
}

// InvalidateRules removes the organization's rule-set family. It must be
// called synchronously before any rule write is acknowledged: a reader
// that starts after the acknowledgment must never see the pre-write set.
func (c *Coordinator) InvalidateRules(ctx context.Context, tenantID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, tenantID, rulesKey); err != nil {
		slog.Warn("rule-set cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// GetListFacts returns cached list-membership facts for an attribute.
func (c *Coordinator) GetListFacts(ctx context.Context, tenantID, entityType, value string) ([]*domain.ListMatch, bool) {
	if c.cache == nil {
		return nil, false
	}

	key := listFactPrefix + attributeHash(entityType, value)
	data, err := c.cache.Get(ctx, tenantID, key)
	if err != nil {
		slog.Warn("list-fact cache degraded to miss", "tenant_id", tenantID, "error", err)
		metrics.CacheLookup("listfacts", false)
		return nil, false
	}
	if data == nil {
		metrics.CacheLookup("listfacts", false)
		return nil, false
	}

	var matches []*domain.ListMatch
	if err := json.Unmarshal(data, &matches); err != nil {
		metrics.CacheLookup("listfacts", false)
		return nil, false
	}
	metrics.CacheLookup("listfacts", true)
	return matches, true
}

// SetListFacts caches resolved membership facts for an attribute.
func (c *Coordinator) SetListFacts(ctx context.Context, tenantID, entityType, value string, matches []*domain.ListMatch) {
	if c.cache == nil {
		return
	}

	data, err := json.Marshal(matches)
	if err != nil {
		return
	}
	key := listFactPrefix + attributeHash(entityType, value)
	if err := c.cache.Set(ctx, tenantID, key, data, c.listFactTTL); err != nil {
		slog.Warn("list-fact cache set failed", "tenant_id", tenantID, "error", err)
	}
}

// InvalidateLists removes the organization's whole list-fact family.
// Synchronous with the triggering list/entry write, like InvalidateRules.
func (c *Coordinator) InvalidateLists(ctx context.Context, tenantID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeletePrefix(ctx, tenantID, listFactPrefix); err != nil {
		slog.Warn("list-fact cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// attributeHash keys an attribute lookup without embedding raw values in
// the cache keyspace.
func attributeHash(entityType, value string) string {
	sum := sha256.Sum256([]byte(entityType + ":" + value))
	return hex.EncodeToString(sum[:16])
}
