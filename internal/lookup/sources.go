package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/prospector/pkg/perplexity"
	"github.com/sells-group/prospector/pkg/websearch"
)

// Source is one provider in the lookup chain. Empty content with a nil
// error means the provider answered and has nothing for the candidate.
type Source interface {
	Name() string
	Lookup(ctx context.Context, name, locality string) (content string, sourceURLs []string, err error)
}

// maxSearchResults bounds how many snippets feed one extraction block.
const maxSearchResults = 5

type webSearchSource struct {
	client websearch.Client
}

// NewWebSearchSource wraps the search API as the primary lookup provider.
func NewWebSearchSource(client websearch.Client) Source {
	return &webSearchSource{client: client}
}

func (s *webSearchSource) Name() string { return "websearch" }

func (s *webSearchSource) Lookup(ctx context.Context, name, locality string) (string, []string, error) {
	query := fmt.Sprintf("%q %s company", name, locality)
	if locality == "" {
		query = fmt.Sprintf("%q company", name)
	}

	resp, err := s.client.Search(ctx, query)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var urls []string
	for _, r := range resp.Data {
		if len(urls) >= maxSearchResults {
			break
		}
		snippet := r.Content
		if snippet == "" {
			snippet = r.Description
		}
		if strings.TrimSpace(r.Title+snippet) == "" {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", r.Title, snippet)
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return strings.TrimSpace(sb.String()), urls, nil
}

// profilePrompt asks the answer engine for a plain-text company profile.
// The sentinel keeps hallucinated profiles for nonexistent companies out
// of the pipeline.
const profilePrompt = `Find the company "%s"%s. Describe what it does, its industry, headquarters location, approximate employee count, founding year, and website. Return the information as plain text. If you cannot find a real company by that name, reply with exactly NO_RESULTS.`

type perplexitySource struct {
	client perplexity.Client
}

// NewPerplexitySource wraps the answer engine as the fallback provider.
// Citations come back as the result's source URLs.
func NewPerplexitySource(client perplexity.Client) Source {
	return &perplexitySource{client: client}
}

func (s *perplexitySource) Name() string { return "perplexity" }

func (s *perplexitySource) Lookup(ctx context.Context, name, locality string) (string, []string, error) {
	where := ""
	if locality != "" {
		where = fmt.Sprintf(" in %s", locality)
	}

	temp := 0.2
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "user", Content: fmt.Sprintf(profilePrompt, name, where)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" || strings.Contains(content, "NO_RESULTS") {
		return "", nil, nil
	}
	return content, resp.Citations, nil
}
