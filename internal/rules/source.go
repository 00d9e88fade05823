package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/lendguard/internal/domain"
)

// ActiveRulesCacheKey prefixes the cache key of the serialised active rule
// set. The full key carries the current rule set version.
const ActiveRulesCacheKey = "rules:active"

// activeRulesVersionKey holds the current rule set version. A version that
// expires is replaced by a new one, which only costs a store read.
const activeRulesVersionKey = "rules:active:version"

// CachedSource serves the active rule set from a cache in front of a store.
// Callers that mutate rules must call Invalidate.
//
// Entries are keyed by a version that Invalidate replaces, so a reader that
// loaded the store before a mutation can only write under the retired
// version.
type CachedSource struct {
	store RuleSource
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedSource wraps store with cache. A nil cache disables caching.
func NewCachedSource(store RuleSource, cache domain.Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{store: store, cache: cache, ttl: ttl}
}

// ListActiveRules returns the cached active rules, loading them on a miss.
// Cache failures fall through to the store.
func (s *CachedSource) ListActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	if s.cache == nil {
		return s.store.ListActiveRules(ctx)
	}

	key := ActiveRulesCacheKey + ":" + s.version(ctx)
	if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
		var rules []*domain.Rule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules, nil
		}
	}

	rules, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("failed to cache active rules", "error", err)
		}
	}
	return rules, nil
}

// Invalidate retires the cached rule set.
func (s *CachedSource) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.bump(ctx)
}

// version returns the current rule set version, starting a new one when
// none is stored.
func (s *CachedSource) version(ctx context.Context) string {
	if data, err := s.cache.Get(ctx, activeRulesVersionKey); err == nil && len(data) > 0 {
		return string(data)
	}
	return s.bump(ctx)
}

func (s *CachedSource) bump(ctx context.Context) string {
	v := uuid.NewString()
	if err := s.cache.Set(ctx, activeRulesVersionKey, []byte(v), s.ttl); err != nil {
		slog.Warn("failed to invalidate active rules", "error", err)
	}
	return v
}
