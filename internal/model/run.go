package model

import "time"

// SearchState tracks where a search is in its lifecycle.
type SearchState string

const (
	StatePlanning  SearchState = "planning"
	StateIterating SearchState = "iterating"
	StateConverged SearchState = "converged"
	StateExhausted SearchState = "exhausted"
)

// TokenUsage accumulates completion-service token counts and their cost
// across the planner, generator, and extractor calls of one search.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add folds another usage sample into the accumulator.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostUSD += other.CostUSD
}

// SearchOutcome is the caller-facing result of one search. Partial is true
// whenever the search ended short of the target count, whether it ran out
// of budget or stopped early at an acceptable shortfall; callers treat it
// as a successful but incomplete response, not an error.
type SearchOutcome struct {
	Records    []EntityRecord `json:"records"`
	Partial    bool           `json:"partial"`
	State      SearchState    `json:"state"`
	Iterations int            `json:"iterations"`
	Usage      TokenUsage     `json:"usage"`
	Elapsed    time.Duration  `json:"-"`
}

// Run is the persisted telemetry row for one search: what was asked, how
// the pipeline converged, and what it spent getting there.
type Run struct {
	ID         string       `json:"id"`
	Query      string       `json:"query"`
	Intent     SearchIntent `json:"intent"`
	State      SearchState  `json:"state"`
	Generated  int          `json:"generated"`
	Fetched    int          `json:"fetched"`
	Extracted  int          `json:"extracted"`
	Accepted   int          `json:"accepted"`
	CacheHits  int          `json:"cache_hits"`
	Iterations int          `json:"iterations"`
	Partial    bool         `json:"partial"`
	Usage      TokenUsage   `json:"usage"`
	DurationMS int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
}

// CategoryStats holds the rolling pass-rate history for one category key.
// SuccessRate is an exponentially weighted average of per-round pass
// ratios; Attempts and Passes are lifetime counters. The numbers are
// approximate and tolerate concurrent drift.
type CategoryStats struct {
	CategoryKey string    `json:"category_key"`
	Attempts    int64     `json:"attempts"`
	Passes      int64     `json:"passes"`
	SuccessRate float64   `json:"success_rate"`
	UpdatedAt   time.Time `json:"updated_at"`
}
