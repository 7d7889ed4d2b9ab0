// Package search coordinates the adaptive discovery pipeline: plan the
// intent once, then iterate estimate → generate → fetch → extract →
// filter rounds until the target is met or the budget runs out.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/estimate"
	"github.com/sells-group/prospector/internal/extract"
	"github.com/sells-group/prospector/internal/lookup"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/store"
)

// earlyStopFraction ends iteration once accepted reaches this share of
// the target. The last 20% costs disproportionately many rounds.
const earlyStopFraction = 0.8

// defaultCacheTTL keeps verified records for a week.
const defaultCacheTTL = 7 * 24 * time.Hour

// Planner turns a request into structured intent. It never fails.
type Planner interface {
	Plan(ctx context.Context, req model.SearchRequest) (model.SearchIntent, model.TokenUsage)
}

// Estimator sizes a round's generation request from category history.
type Estimator interface {
	Estimate(ctx context.Context, categoryKey string, remaining, iteration int) estimate.Estimate
}

// Generator proposes candidate organization names.
type Generator interface {
	Generate(ctx context.Context, intent model.SearchIntent, count int, exclude []string) ([]model.Candidate, model.TokenUsage)
}

// Fetcher looks candidates up on a bounded parallel pool.
type Fetcher interface {
	FetchAll(ctx context.Context, candidates []model.Candidate, locality string) []model.RawLookupResult
}

// Extractor turns raw lookup results into entity records.
type Extractor interface {
	ExtractAll(ctx context.Context, results []model.RawLookupResult, locality string) extract.Outcome
}

// Filter annotates records with the intent's accept/reject verdict.
type Filter interface {
	Apply(record *model.EntityRecord, intent model.SearchIntent) bool
}

// Config bounds one search.
type Config struct {
	// MaxIterations caps generate/fetch/extract rounds. Default 2.
	MaxIterations int
	// CacheTTL is how long extracted records stay valid. Default 7 days.
	CacheTTL time.Duration
	// Backoff shapes the delay applied before a round that follows a
	// rate-limited one.
	Backoff resilience.RetryConfig
}

// Searcher runs searches. Safe for concurrent use; all per-search state
// lives on the stack of Search.
type Searcher struct {
	planner   Planner
	estimator Estimator
	generator Generator
	fetcher   Fetcher
	extractor Extractor
	filter    Filter
	store     store.Store
	cfg       Config
}

// New creates a Searcher. The store may be nil for cacheless runs; every
// other collaborator is required.
func New(
	planner Planner,
	estimator Estimator,
	generator Generator,
	fetcher Fetcher,
	extractor Extractor,
	filter Filter,
	st store.Store,
	cfg Config,
) *Searcher {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 2
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Backoff.InitialBackoff <= 0 {
		cfg.Backoff = resilience.DefaultRetryConfig()
	}
	return &Searcher{
		planner:   planner,
		estimator: estimator,
		generator: generator,
		fetcher:   fetcher,
		extractor: extractor,
		filter:    filter,
		store:     st,
		cfg:       cfg,
	}
}

// Search runs one discovery search. The ctx deadline is the time budget:
// when it expires mid-round, in-flight lookups are cancelled, pending
// retries are discarded, and whatever was accepted is assembled with
// Partial=true. The only errors returned are programming mistakes; an
// empty or short result set is an outcome, not an error.
func (s *Searcher) Search(ctx context.Context, req model.SearchRequest) (*model.SearchOutcome, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))

	state := model.StatePlanning
	log.Info("search: starting",
		zap.String("query", req.Query),
		zap.String("state", string(state)),
	)

	intent, planUsage := s.planner.Plan(ctx, req)
	categoryKey := intent.CategoryKey()
	target := intent.TargetCount
	earlyStop := int(math.Ceil(float64(target) * earlyStopFraction))

	state = model.StateIterating
	log.Debug("search: entering iteration",
		zap.String("state", string(state)),
		zap.Int("target", target),
		zap.Int("early_stop", earlyStop),
	)

	totalUsage := planUsage

	var (
		accepted     []model.EntityRecord
		acceptedKeys = make(map[string]bool)
		seenKeys     = make(map[string]bool)
		seenNames    []string
		retryQueue   []model.Candidate

		generated  int
		fetchedOK  int
		extracted  int
		cacheHits  int
		iterations int

		generatorFailures int
		limitedRounds     int
	)

	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		remaining := target - len(accepted)
		if remaining <= 0 || len(accepted) >= earlyStop {
			break
		}
		if ctx.Err() != nil {
			break
		}
		iterations++

		// A rate-limited round delays the next dispatch, exponentially
		// across consecutive limited rounds.
		if limitedRounds > 0 {
			delay := resilience.Backoff(limitedRounds-1, s.cfg.Backoff)
			log.Info("search: delaying round after rate limit",
				zap.Int("iteration", iter),
				zap.Duration("delay", delay),
			)
			if !sleepCtx(ctx, delay) {
				break
			}
		}

		est := s.estimator.Estimate(ctx, categoryKey, remaining, iter)
		count := est.Count
		if generatorFailures > 0 {
			count = reducedCount(remaining, est, generatorFailures)
		}

		// Retries carried over from the previous round fill part of the
		// overfetch budget; only the rest is newly generated.
		genCount := count - len(retryQueue)
		var fresh []model.Candidate
		if genCount > 0 {
			candidates, genUsage := s.generator.Generate(ctx, intent, genCount, seenNames)
			totalUsage.Add(genUsage)
			if len(candidates) == 0 && len(retryQueue) == 0 {
				generatorFailures++
				log.Warn("search: generator produced no candidates",
					zap.Int("iteration", iter),
					zap.Int("requested", genCount),
				)
				continue
			}
			for _, c := range candidates {
				key := c.Key()
				if key == "" || seenKeys[key] {
					continue
				}
				seenKeys[key] = true
				seenNames = append(seenNames, c.Name)
				fresh = append(fresh, c)
			}
			generated += len(fresh)
		}

		round := append(retryQueue, fresh...)
		retryQueue = nil
		if len(round) == 0 {
			log.Warn("search: no workable candidates this round", zap.Int("iteration", iter))
			continue
		}

		// Cache check; hits skip straight to the filter.
		var misses []model.Candidate
		var hits []*model.EntityRecord
		for _, c := range round {
			rec := s.cachedRecord(ctx, c, intent.Locality, log)
			if rec != nil {
				cacheHits++
				hits = append(hits, rec)
				continue
			}
			misses = append(misses, c)
		}

		results := s.fetcher.FetchAll(ctx, misses, intent.Locality)

		var survivors []model.RawLookupResult
		roundLimited := false
		for _, r := range results {
			if r.Err == nil {
				fetchedOK++
				survivors = append(survivors, r)
				continue
			}
			kind := lookup.KindOf(r.Err)
			if kind == lookup.KindRateLimited {
				roundLimited = true
			}
			log.Debug("search: lookup dropped",
				zap.String("candidate", r.Candidate.Name),
				zap.String("kind", kind.String()),
			)
		}
		if roundLimited {
			limitedRounds++
		} else {
			limitedRounds = 0
		}

		if ctx.Err() != nil {
			// Deadline hit while fetching; assemble what we have.
			break
		}

		outcome := s.extractor.ExtractAll(ctx, survivors, intent.Locality)
		totalUsage.Add(outcome.Usage)
		extracted += len(outcome.Records)
		retryQueue = outcome.Unextracted

		s.cacheRecords(ctx, outcome.Records, intent.Locality, log)

		// Filter and merge, cache hits first, dedup first-wins.
		passes := 0
		for _, rec := range hits {
			if s.filter.Apply(rec, intent) && !acceptedKeys[rec.Key()] {
				acceptedKeys[rec.Key()] = true
				accepted = append(accepted, *rec)
				passes++
			}
		}
		for i := range outcome.Records {
			rec := &outcome.Records[i]
			if s.filter.Apply(rec, intent) && !acceptedKeys[rec.Key()] {
				acceptedKeys[rec.Key()] = true
				accepted = append(accepted, *rec)
				passes++
			}
		}

		// Candidates still pending next round have no verdict yet.
		attempts := len(round) - len(retryQueue)
		s.recordOutcome(ctx, categoryKey, attempts, passes, log)

		log.Info("search: round complete",
			zap.Int("iteration", iter),
			zap.Int("candidates", len(round)),
			zap.Int("cache_hits", len(hits)),
			zap.Int("fetched", len(survivors)),
			zap.Int("extracted", len(outcome.Records)),
			zap.Int("passes", passes),
			zap.Int("accepted_total", len(accepted)),
		)
	}

	// Stable sort keeps discovery order for equal completeness.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].CompletenessScore() > accepted[j].CompletenessScore()
	})

	state = model.StateExhausted
	if len(accepted) >= earlyStop {
		state = model.StateConverged
	}
	outcome := &model.SearchOutcome{
		Records:    accepted,
		Partial:    len(accepted) < target,
		State:      state,
		Iterations: iterations,
		Usage:      totalUsage,
		Elapsed:    time.Since(start),
	}

	s.saveRun(ctx, &model.Run{
		ID:         runID,
		Query:      req.Query,
		Intent:     intent,
		State:      state,
		Generated:  generated,
		Fetched:    fetchedOK,
		Extracted:  extracted,
		Accepted:   len(accepted),
		CacheHits:  cacheHits,
		Iterations: iterations,
		Partial:    outcome.Partial,
		Usage:      totalUsage,
		DurationMS: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}, log)

	log.Info("search: finished",
		zap.String("state", string(state)),
		zap.Int("accepted", len(accepted)),
		zap.Int("target", target),
		zap.Bool("partial", outcome.Partial),
		zap.Int("iterations", iterations),
		zap.Duration("elapsed", outcome.Elapsed),
		zap.Float64("cost_usd", totalUsage.CostUSD),
	)
	return outcome, nil
}

// reducedCount shrinks the overfetch after generator failures, halving
// the multiplier per failure but never below the bare remaining count.
func reducedCount(remaining int, est estimate.Estimate, failures int) int {
	mult := est.Multiplier / math.Pow(2, float64(failures))
	if mult < 1 {
		mult = 1
	}
	count := int(math.Ceil(float64(remaining) * mult))
	if count > est.Count {
		count = est.Count
	}
	return count
}

func (s *Searcher) cachedRecord(ctx context.Context, c model.Candidate, locality string, log *zap.Logger) *model.EntityRecord {
	if s.store == nil {
		return nil
	}
	rec, err := s.store.GetCachedRecord(ctx, model.CacheKey(c.Name, locality))
	if err != nil {
		log.Debug("search: cache read failed",
			zap.String("candidate", c.Name),
			zap.Error(err),
		)
		return nil
	}
	return rec
}

func (s *Searcher) cacheRecords(ctx context.Context, records []model.EntityRecord, locality string, log *zap.Logger) {
	if s.store == nil || len(records) == 0 {
		return
	}
	entries := make([]store.CacheEntry, 0, len(records))
	for i := range records {
		entries = append(entries, store.CacheEntry{
			Key:    model.CacheKey(records[i].Name, locality),
			Record: &records[i],
		})
	}
	if err := s.store.SetCachedRecords(ctx, entries, s.cfg.CacheTTL); err != nil {
		log.Warn("search: cache write failed", zap.Error(err))
	}
}

func (s *Searcher) recordOutcome(ctx context.Context, categoryKey string, attempts, passes int, log *zap.Logger) {
	if s.store == nil || attempts <= 0 {
		return
	}
	if err := s.store.RecordCategoryOutcome(ctx, categoryKey, attempts, passes); err != nil {
		log.Warn("search: stats update failed", zap.Error(err))
	}
}

func (s *Searcher) saveRun(ctx context.Context, run *model.Run, log *zap.Logger) {
	if s.store == nil {
		return
	}
	// The run row is written even when the search ended on a dead context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.SaveRun(saveCtx, run); err != nil {
		log.Warn("search: run save failed", zap.Error(err))
	}
}

// sleepCtx waits for d, returning false when ctx expires first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
