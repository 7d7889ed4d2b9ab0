// Package generate produces candidate organization names for a search
// intent by delegating to a text-completion collaborator.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/anthropic"
)

const generateSystemPrompt = `You produce lists of real organizations. Given a description of what to find, respond with a JSON array of exactly the requested number of distinct real organization names: ["Name One", "Name Two", ...]. Use official names, never invent organizations, and never include any name from the exclusion list. Respond with the JSON array only.`

// maxNameLen drops garbage lines masquerading as organization names.
const maxNameLen = 120

// Generator asks a completion collaborator for candidate names. The
// names are unverified; the fetch and extract stages establish whether
// they exist.
type Generator struct {
	ai    anthropic.Client
	model string
}

// New creates a Generator using the given completion model.
func New(ai anthropic.Client, model string) *Generator {
	return &Generator{ai: ai, model: model}
}

// Generate requests count distinct candidates matching the intent,
// excluding already-seen names. The full count is always requested even
// when duplicates are likely; dedup is the controller's job, not the
// generator's. On collaborator failure the list is empty rather than an
// error: a failed round is recoverable and the controller sizes the next
// one accordingly.
func (g *Generator) Generate(ctx context.Context, intent model.SearchIntent, count int, exclude []string) ([]model.Candidate, model.TokenUsage) {
	if count <= 0 || g.ai == nil {
		return nil, model.TokenUsage{}
	}

	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: 1024,
		System:    anthropic.BuildCachedSystemBlocks(generateSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(intent, count, exclude)},
		},
	})
	if err != nil {
		zap.L().Warn("generate: candidate generation failed",
			zap.Int("requested", count),
			zap.Error(err),
		)
		return nil, model.TokenUsage{}
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CostUSD:      resp.Usage.EstimateCost(g.model),
	}
	resp.Usage.LogCost(g.model, "generate")

	candidates := parseCandidates(resp.Text())
	zap.L().Info("generate: candidates produced",
		zap.Int("requested", count),
		zap.Int("returned", len(candidates)),
	)
	return candidates, usage
}

// buildPrompt renders the intent, requested count, and exclusion list
// into the user message.
func buildPrompt(intent model.SearchIntent, count int, exclude []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Find %d distinct", count)
	if intent.SizeBucket != "" {
		fmt.Fprintf(&sb, " %s-sized", intent.SizeBucket)
	}
	if intent.IndustryHint != "" {
		fmt.Fprintf(&sb, " %s companies", intent.IndustryHint)
	} else {
		sb.WriteString(" companies")
	}
	if intent.Locality != "" {
		fmt.Fprintf(&sb, " in %s", intent.Locality)
	}
	sb.WriteString(".")
	if len(exclude) > 0 {
		sb.WriteString("\nExclusion list: ")
		sb.WriteString(strings.Join(exclude, "; "))
	}
	return sb.String()
}

var listMarkerRe = regexp.MustCompile(`^\s*(?:[-*•]|\d{1,3}[.)])\s*`)

// parseCandidates reads a JSON array of names, falling back to
// newline-delimited parsing when the collaborator ignored the format
// instruction.
func parseCandidates(text string) []model.Candidate {
	var names []string
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(text)), &names); err == nil {
		return toCandidates(names)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = trimListMarker(line)
		if line == "" || strings.HasSuffix(line, ":") || strings.HasPrefix(line, "```") {
			continue
		}
		lines = append(lines, line)
	}
	return toCandidates(lines)
}

func trimListMarker(line string) string {
	line = listMarkerRe.ReplaceAllString(line, "")
	return strings.Trim(strings.TrimSpace(line), `"',`)
}

func toCandidates(names []string) []model.Candidate {
	out := make([]model.Candidate, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || len(n) > maxNameLen {
			continue
		}
		out = append(out, model.Candidate{Name: n})
	}
	return out
}
