package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchStateValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state SearchState
		want  string
	}{
		{StatePlanning, "planning"},
		{StateIterating, "iterating"},
		{StateConverged, "converged"},
		{StateExhausted, "exhausted"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.state))
		})
	}
}

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 100, OutputTokens: 50, CostUSD: 0.01}
	u.Add(TokenUsage{InputTokens: 200, OutputTokens: 80, CostUSD: 0.02})

	assert.Equal(t, 300, u.InputTokens)
	assert.Equal(t, 130, u.OutputTokens)
	assert.InDelta(t, 0.03, u.CostUSD, 1e-9)
}
