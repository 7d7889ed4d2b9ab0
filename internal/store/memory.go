package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/prospector/internal/model"
)

// MemoryStore implements Store with in-process maps. It backs the
// "memory" driver and unit tests; nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	cache map[string]memCacheEntry
	stats map[string]model.CategoryStats
	runs  []model.Run
}

type memCacheEntry struct {
	record    *model.EntityRecord
	expiresAt time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		cache: make(map[string]memCacheEntry),
		stats: make(map[string]model.CategoryStats),
	}
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetCachedRecord(_ context.Context, cacheKey string) (*model.EntityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.cache[cacheKey]
	if !ok || !entry.expiresAt.After(time.Now()) {
		return nil, nil
	}
	return entry.record.Clone(), nil
}

func (m *MemoryStore) SetCachedRecords(_ context.Context, entries []CacheEntry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	expiresAt := time.Now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Key == "" || e.Record == nil {
			continue
		}
		m.cache[e.Key] = memCacheEntry{record: e.Record.Clone(), expiresAt: expiresAt}
	}
	return nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context) (int, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for key, entry := range m.cache {
		if !entry.expiresAt.After(now) {
			delete(m.cache, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) PurgeCache(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.cache)
	m.cache = make(map[string]memCacheEntry)
	return n, nil
}

func (m *MemoryStore) CacheStats(_ context.Context) (*CacheStats, error) {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	cs := &CacheStats{Entries: len(m.cache)}
	for _, entry := range m.cache {
		if !entry.expiresAt.After(now) {
			cs.Expired++
		}
	}
	return cs, nil
}

func (m *MemoryStore) GetCategoryStats(_ context.Context, categoryKey string) (*model.CategoryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.stats[categoryKey]
	if !ok {
		return nil, nil
	}
	out := cs
	return &out, nil
}

func (m *MemoryStore) RecordCategoryOutcome(_ context.Context, categoryKey string, attempts, passes int) error {
	if categoryKey == "" || attempts <= 0 {
		return nil
	}
	observed := float64(passes) / float64(attempts)

	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.stats[categoryKey]
	if !ok {
		cs = model.CategoryStats{CategoryKey: categoryKey, SuccessRate: observed}
	} else {
		cs.SuccessRate = statsAlpha*observed + (1-statsAlpha)*cs.SuccessRate
	}
	cs.Attempts += int64(attempts)
	cs.Passes += int64(passes)
	cs.UpdatedAt = time.Now().UTC()
	m.stats[categoryKey] = cs
	return nil
}

func (m *MemoryStore) ListCategoryStats(_ context.Context) ([]model.CategoryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.CategoryStats, 0, len(m.stats))
	for _, cs := range m.stats {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryKey < out[j].CategoryKey })
	return out, nil
}

func (m *MemoryStore) SaveRun(_ context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.runs {
		if m.runs[i].ID == runID {
			out := m.runs[i]
			return &out, nil
		}
	}
	return nil, ErrRunNotFound
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first, matching the SQL backends' created_at ordering.
	var out []model.Run
	skipped := 0
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.runs[i]
		if filter.State != "" && string(r.State) != filter.State {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
