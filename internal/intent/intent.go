// Package intent parses free-text discovery requests into structured
// search intent.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/geo"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/anthropic"
)

const planSystemPrompt = `You parse business-discovery requests. Extract the industry, the locality, the requested number of results, and the company-size bucket from the request. Respond with a valid JSON object: {"industry": <string or null>, "locality": <string or null>, "target_count": <int or null>, "size": <"small"|"mid"|"large" or null>}. Use null for anything the request does not state.`

const planUserPrompt = `Request: %s`

// maxTargetCount bounds how many records one search may ask for.
const maxTargetCount = 50

// defaultTargetCount is used when neither the request nor the parse
// yields a usable count.
const defaultTargetCount = 5

// Planner turns a SearchRequest into a SearchIntent. Explicit request
// fields always win; a completion call fills the gaps; keyword heuristics
// cover completion failure.
type Planner struct {
	ai            anthropic.Client
	model         string
	defaultTarget int
	localities    *geo.Table
}

// New creates a Planner. model names the completion model used for
// structured parsing; the planner runs once per search, so a small model
// is the right choice.
func New(ai anthropic.Client, model string, defaultTarget int, localities *geo.Table) *Planner {
	if defaultTarget < 1 {
		defaultTarget = defaultTargetCount
	}
	if localities == nil {
		localities = geo.NewTable()
	}
	return &Planner{ai: ai, model: model, defaultTarget: defaultTarget, localities: localities}
}

// Plan parses the request into intent. It never fails: when the
// completion call errors, times out, or returns unparseable output, the
// rule-based heuristics take over, and in the worst case the intent
// carries only the target-count default.
func (p *Planner) Plan(ctx context.Context, req model.SearchRequest) (model.SearchIntent, model.TokenUsage) {
	intent := model.SearchIntent{
		IndustryHint: strings.ToLower(strings.TrimSpace(req.Industry)),
		Locality:     p.localities.Normalize(req.Locality),
		TargetCount:  req.TargetCount,
		SizeBucket:   req.SizeBucket,
	}

	var usage model.TokenUsage
	query := strings.TrimSpace(req.Query)
	if query != "" && (intent.IndustryHint == "" || intent.Locality == "") {
		parsed, parseUsage, ok := p.parseWithCompletion(ctx, query)
		if !ok {
			parsed = p.heuristic(query)
		}
		usage = parseUsage
		intent = mergeIntent(intent, parsed)
	}

	if intent.TargetCount < 1 {
		intent.TargetCount = p.defaultTarget
	}
	if intent.TargetCount > maxTargetCount {
		intent.TargetCount = maxTargetCount
	}

	zap.L().Info("intent: planned",
		zap.String("industry", intent.IndustryHint),
		zap.String("locality", intent.Locality),
		zap.Int("target_count", intent.TargetCount),
		zap.String("size_bucket", string(intent.SizeBucket)),
	)
	return intent, usage
}

// parseWithCompletion asks the completion collaborator for a structured
// reading of the query. ok is false when the call or the parse failed.
func (p *Planner) parseWithCompletion(ctx context.Context, query string) (model.SearchIntent, model.TokenUsage, bool) {
	if p.ai == nil {
		return model.SearchIntent{}, model.TokenUsage{}, false
	}

	temp := 0.0
	resp, err := p.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   256,
		System:      anthropic.BuildCachedSystemBlocks(planSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf(planUserPrompt, query)}},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("intent: completion parse failed", zap.Error(err))
		return model.SearchIntent{}, model.TokenUsage{}, false
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CostUSD:      resp.Usage.EstimateCost(p.model),
	}
	resp.Usage.LogCost(p.model, "plan")

	var parsed struct {
		Industry    string `json:"industry"`
		Locality    string `json:"locality"`
		TargetCount int    `json:"target_count"`
		Size        string `json:"size"`
	}
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(resp.Text())), &parsed); err != nil {
		zap.L().Warn("intent: unparseable plan response", zap.Error(err))
		return model.SearchIntent{}, usage, false
	}

	return model.SearchIntent{
		IndustryHint: strings.ToLower(strings.TrimSpace(parsed.Industry)),
		Locality:     p.localities.Normalize(parsed.Locality),
		TargetCount:  parsed.TargetCount,
		SizeBucket:   model.ParseSizeBucket(parsed.Size),
	}, usage, true
}

// mergeIntent fills base's empty fields from parsed.
func mergeIntent(base, parsed model.SearchIntent) model.SearchIntent {
	if base.IndustryHint == "" {
		base.IndustryHint = parsed.IndustryHint
	}
	if base.Locality == "" {
		base.Locality = parsed.Locality
	}
	if base.TargetCount < 1 {
		base.TargetCount = parsed.TargetCount
	}
	if base.SizeBucket == "" {
		base.SizeBucket = parsed.SizeBucket
	}
	return base
}
