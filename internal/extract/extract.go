// Package extract turns raw lookup content into structured entity
// records using batched completion calls, re-associating each output row
// with the candidate its content block was fetched for.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/anthropic"
)

const extractSystemPrompt = `You extract structured company records from research text. The input contains one or more blocks, each tagged with the candidate name it was fetched for. Respond with a valid JSON array holding one object per block:
[{"candidate": <the tag the block carried>, "found": <bool>, "name": <string>, "website": <string>, "locality": <string>, "industry": <string>, "size_estimate": <string, e.g. "51-200">, "founded_year": <int or 0>, "linkedin_url": <string>, "description": <string, one sentence>}]
Set "found" to false when a block does not describe a real company. Use empty strings for unknown fields. Respond with the JSON array only.`

const (
	defaultBatchSize   = 8
	defaultConcurrency = 2
	defaultTimeout     = 60 * time.Second

	// jaccardThreshold is the minimum word overlap for fuzzy
	// re-association when exact and containment matching both miss.
	jaccardThreshold = 0.5
)

// Outcome reports one extraction pass. Unextracted lists candidates
// whose batch call failed or whose output row never arrived; they are
// eligible for another attempt next round. Candidates the collaborator
// judged not to be real companies appear in neither list.
type Outcome struct {
	Records     []model.EntityRecord
	Unextracted []model.Candidate
	Usage       model.TokenUsage
}

// Extractor batches raw lookup results into completion calls.
type Extractor struct {
	ai          anthropic.Client
	model       string
	batchSize   int
	concurrency int
	timeout     time.Duration
}

// New creates an Extractor. Non-positive settings fall back to batches
// of 8, concurrency 2, and a 60s per-call timeout.
func New(ai anthropic.Client, model string, batchSize, concurrency int, timeout time.Duration) *Extractor {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Extractor{ai: ai, model: model, batchSize: batchSize, concurrency: concurrency, timeout: timeout}
}

// ExtractAll splits the results into batches and runs them with a small
// concurrency cap. A failed batch marks every member unextracted rather
// than failing the round.
func (e *Extractor) ExtractAll(ctx context.Context, results []model.RawLookupResult, locality string) Outcome {
	var out Outcome

	// Results without content cannot be extracted; send them back for
	// another round up front.
	pending := make([]model.RawLookupResult, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			out.Unextracted = append(out.Unextracted, r.Candidate)
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(pending); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		g.Go(func() error {
			records, unextracted, usage := e.extractBatch(gctx, batch, locality)
			mu.Lock()
			out.Records = append(out.Records, records...)
			out.Unextracted = append(out.Unextracted, unextracted...)
			out.Usage.Add(usage)
			mu.Unlock()
			return nil // a failed batch never aborts the others
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	zap.L().Info("extract: pass complete",
		zap.Int("inputs", len(results)),
		zap.Int("extracted", len(out.Records)),
		zap.Int("unextracted", len(out.Unextracted)),
	)
	return out
}

// extractedRow is one element of the collaborator's JSON array.
type extractedRow struct {
	Candidate    string `json:"candidate"`
	Found        bool   `json:"found"`
	Name         string `json:"name"`
	Website      string `json:"website"`
	Locality     string `json:"locality"`
	Industry     string `json:"industry"`
	SizeEstimate string `json:"size_estimate"`
	FoundedYear  int    `json:"founded_year"`
	LinkedInURL  string `json:"linkedin_url"`
	Description  string `json:"description"`
}

func (e *Extractor) extractBatch(ctx context.Context, batch []model.RawLookupResult, locality string) ([]model.EntityRecord, []model.Candidate, model.TokenUsage) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var usage model.TokenUsage

	temp := 0.0
	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   4096,
		System:      anthropic.BuildCachedSystemBlocks(extractSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: buildPrompt(batch, locality)}},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("extract: batch call failed",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return nil, allCandidates(batch), usage
	}

	usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CostUSD:      resp.Usage.EstimateCost(e.model),
	}
	resp.Usage.LogCost(e.model, "extract")

	var rows []extractedRow
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(resp.Text())), &rows); err != nil {
		zap.L().Warn("extract: unparseable batch response",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return nil, allCandidates(batch), usage
	}

	records, unextracted := associate(batch, rows)
	return records, unextracted, usage
}

// buildPrompt tags each content block with its candidate name so the
// collaborator can echo the tag back per output record. The search
// locality disambiguates same-named companies in different places.
func buildPrompt(batch []model.RawLookupResult, locality string) string {
	var sb strings.Builder
	if locality != "" {
		fmt.Fprintf(&sb, "Search locality: %s\n\n", locality)
	}
	for _, r := range batch {
		fmt.Fprintf(&sb, "### CANDIDATE: %s\n%s\n\n", r.Candidate.Name, r.Content)
	}
	return strings.TrimSpace(sb.String())
}

// associate claims one batch member per output row: exact identity-key
// match on the echoed tag, then on the extracted name, then containment,
// then best Jaccard word overlap. Members no row claimed come back as
// unextracted; rows claiming a member with found=false consume the
// candidate without producing a record.
func associate(batch []model.RawLookupResult, rows []extractedRow) ([]model.EntityRecord, []model.Candidate) {
	byKey := make(map[string]int, len(batch))
	for i, r := range batch {
		byKey[model.IdentityKey(r.Candidate.Name)] = i
	}
	claimed := make([]bool, len(batch))

	var records []model.EntityRecord
	for _, row := range rows {
		idx := -1
		if j, ok := byKey[model.IdentityKey(row.Candidate)]; ok && !claimed[j] {
			idx = j
		}
		if idx < 0 && row.Name != "" {
			if j, ok := byKey[model.IdentityKey(row.Name)]; ok && !claimed[j] {
				idx = j
			}
		}
		if idx < 0 {
			idx = fuzzyMatch(model.IdentityKey(row.Candidate), batch, claimed)
		}
		if idx < 0 {
			zap.L().Warn("extract: output row matches no candidate",
				zap.String("candidate_tag", row.Candidate),
				zap.String("name", row.Name),
			)
			continue
		}
		claimed[idx] = true

		if !row.Found {
			zap.L().Debug("extract: candidate judged not a real company",
				zap.String("candidate", batch[idx].Candidate.Name),
			)
			continue
		}

		name := strings.TrimSpace(row.Name)
		if name == "" {
			name = batch[idx].Candidate.Name
		}
		records = append(records, model.EntityRecord{
			Name:            name,
			Website:         strings.TrimSpace(row.Website),
			LocalityDisplay: strings.TrimSpace(row.Locality),
			Industry:        strings.TrimSpace(row.Industry),
			SizeEstimate:    strings.TrimSpace(row.SizeEstimate),
			FoundedYear:     row.FoundedYear,
			LinkedInURL:     strings.TrimSpace(row.LinkedInURL),
			Description:     strings.TrimSpace(row.Description),
			SourceURLs:      batch[idx].SourceURLs,
		})
	}

	var unextracted []model.Candidate
	for i, r := range batch {
		if !claimed[i] {
			unextracted = append(unextracted, r.Candidate)
		}
	}
	return records, unextracted
}

func fuzzyMatch(tagKey string, batch []model.RawLookupResult, claimed []bool) int {
	if tagKey == "" {
		return -1
	}

	for i, r := range batch {
		if claimed[i] {
			continue
		}
		key := model.IdentityKey(r.Candidate.Name)
		if key == "" {
			continue
		}
		if strings.Contains(key, tagKey) || strings.Contains(tagKey, key) {
			return i
		}
	}

	best := -1
	bestScore := 0.0
	tagWords := wordSet(tagKey)
	for i, r := range batch {
		if claimed[i] {
			continue
		}
		score := jaccard(tagWords, wordSet(model.IdentityKey(r.Candidate.Name)))
		if score >= jaccardThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func allCandidates(batch []model.RawLookupResult) []model.Candidate {
	out := make([]model.Candidate, 0, len(batch))
	for _, r := range batch {
		out = append(out, r.Candidate)
	}
	return out
}
