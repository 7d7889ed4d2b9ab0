package lookup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/pkg/perplexity"
	"github.com/sells-group/prospector/pkg/websearch"
)

type fakeSearchClient struct {
	resp      *websearch.SearchResponse
	err       error
	lastQuery string
}

func (f *fakeSearchClient) Search(_ context.Context, query string) (*websearch.SearchResponse, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

var _ websearch.Client = (*fakeSearchClient)(nil)

func TestWebSearchSource_AssemblesSnippets(t *testing.T) {
	client := &fakeSearchClient{resp: &websearch.SearchResponse{
		Code: 200,
		Data: []websearch.SearchResult{
			{Title: "Acme Roofing | Home", URL: "https://acme.example", Content: "Residential roofing in Denver since 1998."},
			{Title: "Acme Roofing - Reviews", URL: "https://reviews.example/acme", Description: "4.8 stars, 120 reviews."},
		},
	}}
	src := NewWebSearchSource(client)

	content, urls, err := src.Lookup(context.Background(), "Acme Roofing", "Denver, CO")

	require.NoError(t, err)
	assert.Contains(t, content, "## Acme Roofing | Home")
	assert.Contains(t, content, "Residential roofing in Denver since 1998.")
	assert.Contains(t, content, "4.8 stars, 120 reviews.")
	assert.Equal(t, []string{"https://acme.example", "https://reviews.example/acme"}, urls)
	assert.Equal(t, `"Acme Roofing" Denver, CO company`, client.lastQuery)
}

func TestWebSearchSource_QueryWithoutLocality(t *testing.T) {
	client := &fakeSearchClient{resp: &websearch.SearchResponse{}}
	src := NewWebSearchSource(client)

	content, urls, err := src.Lookup(context.Background(), "Acme Roofing", "")

	require.NoError(t, err)
	assert.Empty(t, content)
	assert.Empty(t, urls)
	assert.Equal(t, `"Acme Roofing" company`, client.lastQuery)
}

func TestWebSearchSource_CapsResults(t *testing.T) {
	var data []websearch.SearchResult
	for i := 0; i < 10; i++ {
		data = append(data, websearch.SearchResult{Title: "T", URL: "https://u.example", Content: "c"})
	}
	client := &fakeSearchClient{resp: &websearch.SearchResponse{Data: data}}
	src := NewWebSearchSource(client)

	_, urls, err := src.Lookup(context.Background(), "Big Co", "")

	require.NoError(t, err)
	assert.Len(t, urls, maxSearchResults)
}

func TestWebSearchSource_SkipsEmptyResults(t *testing.T) {
	client := &fakeSearchClient{resp: &websearch.SearchResponse{
		Data: []websearch.SearchResult{
			{URL: "https://blank.example"},
			{Title: "Real", URL: "https://real.example", Content: "real content"},
		},
	}}
	src := NewWebSearchSource(client)

	content, urls, err := src.Lookup(context.Background(), "Acme", "")

	require.NoError(t, err)
	assert.NotContains(t, content, "blank.example")
	assert.Equal(t, []string{"https://real.example"}, urls)
}

func TestWebSearchSource_PassesErrorThrough(t *testing.T) {
	apiErr := &websearch.APIError{StatusCode: 429, Body: "slow down"}
	src := NewWebSearchSource(&fakeSearchClient{err: apiErr})

	_, _, err := src.Lookup(context.Background(), "Acme", "")

	var got *websearch.APIError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 429, got.StatusCode)
}

type fakePerplexityClient struct {
	resp    *perplexity.ChatCompletionResponse
	err     error
	lastReq perplexity.ChatCompletionRequest
}

func (f *fakePerplexityClient) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

var _ perplexity.Client = (*fakePerplexityClient)(nil)

func TestPerplexitySource_ReturnsProfileWithCitations(t *testing.T) {
	client := &fakePerplexityClient{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{
			{Message: perplexity.Message{Role: "assistant", Content: "Acme Roofing is a Denver roofing contractor with about 45 employees."}},
		},
		Citations: []string{"https://acme.example", "https://news.example/acme"},
	}}
	src := NewPerplexitySource(client)

	content, urls, err := src.Lookup(context.Background(), "Acme Roofing", "Denver, CO")

	require.NoError(t, err)
	assert.Contains(t, content, "Denver roofing contractor")
	assert.Equal(t, []string{"https://acme.example", "https://news.example/acme"}, urls)

	prompt := client.lastReq.Messages[0].Content
	assert.Contains(t, prompt, `"Acme Roofing" in Denver, CO`)
	require.NotNil(t, client.lastReq.Temperature)
	assert.InDelta(t, 0.2, *client.lastReq.Temperature, 0.001)
}

func TestPerplexitySource_NoResultsSentinel(t *testing.T) {
	client := &fakePerplexityClient{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{
			{Message: perplexity.Message{Role: "assistant", Content: "NO_RESULTS"}},
		},
	}}
	src := NewPerplexitySource(client)

	content, urls, err := src.Lookup(context.Background(), "Ghost Co", "")

	require.NoError(t, err)
	assert.Empty(t, content)
	assert.Empty(t, urls)
}

func TestPerplexitySource_EmptyChoices(t *testing.T) {
	client := &fakePerplexityClient{resp: &perplexity.ChatCompletionResponse{}}
	src := NewPerplexitySource(client)

	content, _, err := src.Lookup(context.Background(), "Ghost Co", "")

	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestPerplexitySource_PassesErrorThrough(t *testing.T) {
	src := NewPerplexitySource(&fakePerplexityClient{err: eris.New("perplexity: send request")})

	_, _, err := src.Lookup(context.Background(), "Acme", "")

	require.Error(t, err)
}
