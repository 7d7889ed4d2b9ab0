package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/monitoring"
)

func TestFormatSnapshot(t *testing.T) {
	snap := &monitoring.Snapshot{
		SearchTotal:     12,
		SearchConverged: 9,
		SearchExhausted: 3,
		SearchPartial:   4,
		ExhaustionRate:  0.25,
		RecordsAccepted: 87,
		CacheHits:       21,
		CostUSD:         4.37,
		AvgIterations:   2.3,
		AvgDurationMS:   95500,
		CacheEntries:    140,
		CacheExpired:    12,
		Categories: []model.CategoryStats{
			{CategoryKey: "hvac|denver, co", Attempts: 40, Passes: 28, SuccessRate: 0.7},
			{CategoryKey: "plumbing|austin, tx", Attempts: 15, Passes: 3, SuccessRate: 0.2},
		},
		LookbackHours: 24,
		CollectedAt:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	formatSnapshot(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "Searches (last 24h):")
	assert.Contains(t, output, "12")
	assert.Contains(t, output, "Converged:")
	assert.Contains(t, output, "Exhausted:")
	assert.Contains(t, output, "$4.37")
	assert.Contains(t, output, "Avg iterations:")
	assert.Contains(t, output, "2.3")
	assert.Contains(t, output, "95.5s")
	assert.Contains(t, output, "140 (12 expired)")
	assert.Contains(t, output, "CATEGORY")
	assert.Contains(t, output, "hvac|denver, co")
	assert.Contains(t, output, "70%")
	assert.Contains(t, output, "plumbing|austin, tx")
}

func TestFormatSnapshot_Empty(t *testing.T) {
	snap := &monitoring.Snapshot{LookbackHours: 72}

	var buf bytes.Buffer
	formatSnapshot(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "Searches (last 72h):")
	assert.Contains(t, output, "Cache entries:")

	// No per-search averages or category table without data.
	assert.NotContains(t, output, "Avg iterations:")
	assert.NotContains(t, output, "CATEGORY")
}
