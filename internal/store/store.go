// Package store persists the three durable artifacts of the discovery
// pipeline: the verified-record cache, per-category pass-rate statistics,
// and run telemetry. Three backends implement the same interface; sqlite
// is the default for single-machine use, postgres for shared deployments,
// and memory for tests.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
)

// statsAlpha weights the most recent round when folding an observed pass
// ratio into a category's rolling success rate.
const statsAlpha = 0.3

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = eris.New("store: run not found")

// CacheEntry pairs a cache key with the record to store under it.
type CacheEntry struct {
	Key    string
	Record *model.EntityRecord
}

// CacheStats summarizes the record cache for the cache CLI commands.
type CacheStats struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the discovery pipeline.
//
// Cache reads return a copy of the stored record; mutating the result
// does not affect the cache. A miss or an expired entry is (nil, nil),
// never an error.
type Store interface {
	// Record cache
	GetCachedRecord(ctx context.Context, cacheKey string) (*model.EntityRecord, error)
	SetCachedRecords(ctx context.Context, entries []CacheEntry, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int, error)
	PurgeCache(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (*CacheStats, error)

	// Category statistics
	GetCategoryStats(ctx context.Context, categoryKey string) (*model.CategoryStats, error)
	RecordCategoryOutcome(ctx context.Context, categoryKey string, attempts, passes int) error
	ListCategoryStats(ctx context.Context) ([]model.CategoryStats, error)

	// Run telemetry
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the backend named by cfg.Driver. Callers run Migrate
// before first use.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.PoolMaxConns,
			MinConns: cfg.PoolMinConns,
		})
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		return NewSQLite(cfg.Path)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
