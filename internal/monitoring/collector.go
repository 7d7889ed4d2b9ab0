package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

// maxRunsPerWindow bounds how many run rows one snapshot will scan.
const maxRunsPerWindow = 10000

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	// Search metrics (within lookback window).
	SearchTotal     int     `json:"search_total"`
	SearchConverged int     `json:"search_converged"`
	SearchExhausted int     `json:"search_exhausted"`
	SearchPartial   int     `json:"search_partial"`
	ExhaustionRate  float64 `json:"exhaustion_rate"`
	RecordsAccepted int     `json:"records_accepted"`
	CacheHits       int     `json:"cache_hits"`
	CostUSD         float64 `json:"cost_usd"`
	AvgIterations   float64 `json:"avg_iterations"`
	AvgDurationMS   int64   `json:"avg_duration_ms"`

	// Record cache state.
	CacheEntries int `json:"cache_entries"`
	CacheExpired int `json:"cache_expired"`

	// Lifetime per-category pass rates.
	Categories []model.CategoryStats `json:"categories"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	// Fetch recent runs; rows older than the window are skipped below.
	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRunsPerWindow})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalIterations int
	var totalDurationMS int64
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.SearchTotal++
		switch r.State {
		case model.StateConverged:
			snap.SearchConverged++
		case model.StateExhausted:
			snap.SearchExhausted++
		}
		if r.Partial {
			snap.SearchPartial++
		}
		snap.RecordsAccepted += r.Accepted
		snap.CacheHits += r.CacheHits
		snap.CostUSD += r.Usage.CostUSD
		totalIterations += r.Iterations
		totalDurationMS += r.DurationMS
	}
	if snap.SearchTotal > 0 {
		snap.ExhaustionRate = float64(snap.SearchExhausted) / float64(snap.SearchTotal)
		snap.AvgIterations = float64(totalIterations) / float64(snap.SearchTotal)
		snap.AvgDurationMS = totalDurationMS / int64(snap.SearchTotal)
	}

	// Record cache state.
	cache, err := c.store.CacheStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: cache stats")
	}
	snap.CacheEntries = cache.Entries
	snap.CacheExpired = cache.Expired

	// Category pass rates.
	cats, err := c.store.ListCategoryStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list category stats")
	}
	snap.Categories = cats

	return snap, nil
}
