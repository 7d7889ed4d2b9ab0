// Package lookup performs one bounded-time web lookup per candidate
// through a provider chain and classifies every failure so the
// controller can decide what survives the round.
package lookup

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultPoolSize = 12
)

// Fetcher runs the lookup chain. It never retries a source; retry and
// backoff policy lives with the controller. Each provider sits behind its
// own circuit breaker, so one that keeps failing drops out of the chain
// for a cooldown instead of eating every candidate's time budget.
type Fetcher struct {
	sources  []Source
	breakers map[string]*resilience.CircuitBreaker
	limiter  *AdaptiveLimiter
	timeout  time.Duration
	poolSize int
}

// New creates a Fetcher over the given provider chain. A nil limiter
// disables rate limiting.
func New(sources []Source, limiter *AdaptiveLimiter, timeout time.Duration, poolSize int) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if poolSize < 1 {
		poolSize = defaultPoolSize
	}
	breakers := make(map[string]*resilience.CircuitBreaker, len(sources))
	for _, src := range sources {
		breakers[src.Name()] = newSourceBreaker(src.Name())
	}
	return &Fetcher{sources: sources, breakers: breakers, limiter: limiter, timeout: timeout, poolSize: poolSize}
}

// newSourceBreaker guards one provider. The default trip check already
// ignores context cancellation, so a candidate's chain deadline expiring
// mid-lookup does not count against the provider.
func newSourceBreaker(name string) *resilience.CircuitBreaker {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("lookup: source circuit state changed",
			zap.String("source", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return resilience.NewCircuitBreaker(cfg)
}

// Fetch looks up one candidate. The timeout covers the whole chain, and
// each source gets exactly one attempt; a source whose circuit is open is
// skipped. NotFound means at least one source answered and none had the
// candidate; it outranks infrastructure failures because it is a verdict
// about the candidate, not the round.
func (f *Fetcher) Fetch(ctx context.Context, cand model.Candidate, locality string) model.RawLookupResult {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res := model.RawLookupResult{Candidate: cand}
	var sawNotFound, sawRateLimited, sawTimeout, sawOpen bool
	var lastErr error

	for _, src := range f.sources {
		cb := f.breakers[src.Name()]
		if cb.State() == resilience.CircuitOpen {
			sawOpen = true
			zap.L().Debug("lookup: source skipped, circuit open",
				zap.String("source", src.Name()),
				zap.String("candidate", cand.Name),
			)
			continue
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				sawTimeout = true
				lastErr = err
				break
			}
		}

		var content string
		var urls []string
		err := cb.Execute(ctx, func(ctx context.Context) error {
			var lerr error
			content, urls, lerr = src.Lookup(ctx, cand.Name, locality)
			return lerr
		})
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				sawOpen = true
				continue
			}
			cerr := classify(cand.Name, err)
			switch cerr.Kind {
			case KindRateLimited:
				sawRateLimited = true
				if f.limiter != nil {
					f.limiter.Throttle()
				}
			case KindTimeout:
				sawTimeout = true
			}
			lastErr = err
			zap.L().Debug("lookup: source failed",
				zap.String("source", src.Name()),
				zap.String("candidate", cand.Name),
				zap.String("kind", cerr.Kind.String()),
				zap.Error(err),
			)
			continue
		}

		if strings.TrimSpace(content) == "" {
			sawNotFound = true
			continue
		}

		res.Content = content
		res.SourceURLs = urls
		return res
	}

	switch {
	case sawNotFound:
		res.Err = &Error{Kind: KindNotFound, Candidate: cand.Name}
	case sawRateLimited:
		res.Err = &Error{Kind: KindRateLimited, Candidate: cand.Name, Err: lastErr}
	case sawTimeout:
		res.Err = &Error{Kind: KindTimeout, Candidate: cand.Name, Err: lastErr}
	case lastErr != nil:
		res.Err = classify(cand.Name, lastErr)
	case sawOpen:
		// Every reachable source was behind an open circuit.
		res.Err = &Error{Kind: KindTransient, Candidate: cand.Name, Err: resilience.ErrCircuitOpen}
	default:
		// No sources configured.
		res.Err = &Error{Kind: KindNotFound, Candidate: cand.Name}
	}
	return res
}

// FetchAll fans candidates out on a bounded worker pool and joins before
// returning. Results keep input order; a failed lookup occupies its slot
// with a classified error rather than aborting the batch. A round that
// finishes without a 429 lets the shared limiter recover.
func (f *Fetcher) FetchAll(ctx context.Context, candidates []model.Candidate, locality string) []model.RawLookupResult {
	results := make([]model.RawLookupResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.poolSize)

	var found, failed atomic.Int64
	for i, cand := range candidates {
		g.Go(func() error {
			results[i] = f.Fetch(gctx, cand, locality)
			if results[i].Err != nil {
				failed.Add(1)
			} else {
				found.Add(1)
			}
			return nil // don't abort the round on individual failure
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	if f.limiter != nil {
		f.limiter.Recover()
	}

	if open := f.openSources(); len(open) > 0 {
		zap.L().Warn("lookup: providers with open circuits", zap.Strings("sources", open))
	}
	zap.L().Info("lookup: round complete",
		zap.Int("candidates", len(candidates)),
		zap.Int64("found", found.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

// openSources lists providers whose circuit is currently open, in chain
// order.
func (f *Fetcher) openSources() []string {
	var open []string
	for _, src := range f.sources {
		if f.breakers[src.Name()].State() == resilience.CircuitOpen {
			open = append(open, src.Name())
		}
	}
	return open
}
