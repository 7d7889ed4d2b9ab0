// Package estimate sizes generator requests so that enough candidates
// survive the fetch, extract, and filter stages to cover what a search
// round still needs.
package estimate

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

// Multiplier bounds. The inverse success rate is clamped so a lucky
// category still overfetches a little and an unlucky one cannot demand
// an unbounded batch.
const (
	minMultiplier = 2.0
	maxMultiplier = 6.0

	// Defaults for categories with no recorded history. Retries get a
	// larger multiplier because a round already came up short.
	firstRoundMultiplier = 2.5
	retryMultiplier      = 3.0

	defaultMaxPerRound = 20
)

// StatsSource is the slice of the store the estimator reads.
type StatsSource interface {
	GetCategoryStats(ctx context.Context, categoryKey string) (*model.CategoryStats, error)
}

// Estimate holds the result of one overfetch computation.
type Estimate struct {
	Count       int     `json:"count"`
	Multiplier  float64 `json:"multiplier"`
	SuccessRate float64 `json:"success_rate"` // zero when no history was used
	FromHistory bool    `json:"from_history"`
}

// Estimator computes per-round candidate counts from the historical
// survival rate of each category/locality pairing.
type Estimator struct {
	stats       StatsSource
	maxPerRound int
}

// New creates an Estimator reading history from src. maxPerRound caps the
// candidate count for a single round; values < 1 fall back to the default.
func New(src StatsSource, maxPerRound int) *Estimator {
	if maxPerRound < 1 {
		maxPerRound = defaultMaxPerRound
	}
	return &Estimator{stats: src, maxPerRound: maxPerRound}
}

// Estimate computes how many candidates to request when remaining records
// are still needed for categoryKey on the given iteration (0-based).
//
// The multiplier is the inverse of the category's historical success rate
// clamped to [minMultiplier, maxMultiplier]; unknown categories use fixed
// defaults. Estimate never fails: a stats read error is logged and treated
// as missing history.
func (e *Estimator) Estimate(ctx context.Context, categoryKey string, remaining, iteration int) Estimate {
	if remaining <= 0 {
		return Estimate{}
	}

	var stats *model.CategoryStats
	if e.stats != nil {
		var err error
		stats, err = e.stats.GetCategoryStats(ctx, categoryKey)
		if err != nil {
			zap.L().Warn("estimate: load category stats",
				zap.String("category_key", categoryKey),
				zap.Error(err),
			)
			stats = nil
		}
	}

	var est Estimate
	switch {
	case stats == nil || stats.Attempts == 0:
		est.Multiplier = firstRoundMultiplier
		if iteration > 0 {
			est.Multiplier = retryMultiplier
		}
	case stats.SuccessRate <= 0:
		// Every recorded attempt failed; request the ceiling.
		est.Multiplier = maxMultiplier
		est.FromHistory = true
	default:
		est.SuccessRate = stats.SuccessRate
		est.Multiplier = clamp(1/stats.SuccessRate, minMultiplier, maxMultiplier)
		est.FromHistory = true
	}

	est.Count = int(math.Ceil(float64(remaining) * est.Multiplier))
	if est.Count > e.maxPerRound {
		est.Count = e.maxPerRound
	}

	zap.L().Info("estimate: overfetch computed",
		zap.String("category_key", categoryKey),
		zap.Int("remaining", remaining),
		zap.Int("iteration", iteration),
		zap.Float64("multiplier", est.Multiplier),
		zap.Float64("success_rate", est.SuccessRate),
		zap.Bool("from_history", est.FromHistory),
		zap.Int("count", est.Count),
	)

	return est
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
