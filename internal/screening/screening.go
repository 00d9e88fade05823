// Package screening answers exact-match name list lookups through a cache.
package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/lendguard/internal/domain"
)

const keyPrefix = "namelist:hit:"

// Screener is a domain.NameListStore whose CheckHit results are cached.
// Writes made through it invalidate the affected hit keys.
type Screener struct {
	store domain.NameListStore
	cache domain.Cache
	ttl   time.Duration
}

// New wraps store. A nil cache disables caching.
func New(store domain.NameListStore, cache domain.Cache, ttl time.Duration) *Screener {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Screener{store: store, cache: cache, ttl: ttl}
}

// HitKey is the cache key for a CheckHit(value, valueType) result.
func HitKey(value string, valueType *domain.ValueType) string {
	vt := "*"
	if valueType != nil {
		vt = strconv.Itoa(int(*valueType))
	}
	return keyPrefix + vt + ":" + value
}

// CheckHit returns entries whose value equals value exactly.
func (s *Screener) CheckHit(ctx context.Context, value string, valueType *domain.ValueType) ([]*domain.NameListEntry, error) {
	key := HitKey(value, valueType)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err != nil {
			slog.Warn("name list cache read failed", "error", err)
		} else if data != nil {
			var hits []*domain.NameListEntry
			if err := json.Unmarshal(data, &hits); err == nil {
				return hits, nil
			}
		}
	}

	hits, err := s.store.CheckHit(ctx, value, valueType)
	if err != nil {
		return nil, fmt.Errorf("check name list hit: %w", err)
	}
	if hits == nil {
		hits = []*domain.NameListEntry{}
	}

	if s.cache != nil {
		if data, err := json.Marshal(hits); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				slog.Warn("name list cache write failed", "error", err)
			}
		}
	}
	return hits, nil
}

// AddEntry stores entry and drops the cached hits for its value.
func (s *Screener) AddEntry(ctx context.Context, entry *domain.NameListEntry) (int64, error) {
	id, err := s.store.AddEntry(ctx, entry)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, entry.Value, entry.ValueType)
	return id, nil
}

// DeleteEntry removes the entry and drops the cached hits for its value.
func (s *Screener) DeleteEntry(ctx context.Context, id int64) error {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, entry.Value, entry.ValueType)
	return nil
}

func (s *Screener) ListEntries(ctx context.Context) ([]*domain.NameListEntry, error) {
	return s.store.ListEntries(ctx)
}

func (s *Screener) SearchEntries(ctx context.Context, filter domain.NameListFilter) ([]*domain.NameListEntry, error) {
	return s.store.SearchEntries(ctx, filter)
}

func (s *Screener) GetEntry(ctx context.Context, id int64) (*domain.NameListEntry, error) {
	return s.store.GetEntry(ctx, id)
}

func (s *Screener) invalidate(ctx context.Context, value string, vt domain.ValueType) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, HitKey(value, &vt), HitKey(value, nil)); err != nil {
		slog.Warn("name list cache invalidation failed", "value_type", vt, "error", err)
	}
}

var _ domain.NameListStore = (*Screener)(nil)
