package salesforce

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLeadsByCompany(t *testing.T) {
	var queries []string
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			queries = append(queries, soql)
			leads := out.(*[]Lead)
			*leads = []Lead{{ID: "00Q1", Company: "Acme Roofing"}}
			return nil
		},
	}

	leads, err := FindLeadsByCompany(context.Background(), mc, []string{"Acme Roofing", "Summit Co"})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Acme Roofing", leads[0].Company)

	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "FROM Lead WHERE Company IN ('Acme Roofing', 'Summit Co')")
}

func TestFindLeadsByCompany_EscapesQuotes(t *testing.T) {
	var soql string
	mc := &mockClient{
		queryFn: func(_ context.Context, q string, _ any) error {
			soql = q
			return nil
		},
	}

	_, err := FindLeadsByCompany(context.Background(), mc, []string{"O'Brien Roofing"})
	require.NoError(t, err)
	assert.Contains(t, soql, `'O\'Brien Roofing'`)
}

func TestFindLeadsByCompany_ChunksLongLists(t *testing.T) {
	names := make([]string, 150)
	for i := range names {
		names[i] = fmt.Sprintf("Company %d", i)
	}

	var queries []string
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			queries = append(queries, soql)
			leads := out.(*[]Lead)
			*leads = []Lead{{ID: fmt.Sprintf("00Q%d", len(queries)), Company: "x"}}
			return nil
		},
	}

	leads, err := FindLeadsByCompany(context.Background(), mc, names)
	require.NoError(t, err)
	assert.Len(t, leads, 2)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "'Company 0'")
	assert.Contains(t, queries[0], "'Company 99'")
	assert.NotContains(t, queries[0], "'Company 100'")
	assert.Contains(t, queries[1], "'Company 100'")
	assert.Contains(t, queries[1], "'Company 149'")
}

func TestFindLeadsByCompany_Empty(t *testing.T) {
	called := false
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error {
			called = true
			return nil
		},
	}

	leads, err := FindLeadsByCompany(context.Background(), mc, nil)
	require.NoError(t, err)
	assert.Nil(t, leads)
	assert.False(t, called)
}

func TestFindLeadsByCompany_BlankNamesSkipped(t *testing.T) {
	called := false
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error {
			called = true
			return nil
		},
	}

	leads, err := FindLeadsByCompany(context.Background(), mc, []string{"  ", ""})
	require.NoError(t, err)
	assert.Nil(t, leads)
	assert.False(t, called)
}

func TestFindLeadsByCompany_QueryError(t *testing.T) {
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error {
			return assert.AnError
		},
	}

	leads, err := FindLeadsByCompany(context.Background(), mc, []string{"Acme"})
	assert.Error(t, err)
	assert.Nil(t, leads)
	assert.Contains(t, err.Error(), "sf: find leads by company")
}

func TestCreateLeads(t *testing.T) {
	var gotObject string
	var gotRecords []map[string]any
	mc := &mockClient{
		insertCollectionFn: func(_ context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
			gotObject = sObjectName
			gotRecords = records
			return []CollectionResult{
				{ID: "00Q1", Success: true},
				{ID: "", Success: false, Errors: []string{"REQUIRED_FIELD_MISSING"}},
			}, nil
		},
	}

	records := []map[string]any{
		{"Company": "Acme Roofing", "LastName": "Unknown"},
		{"Company": "Summit Co", "LastName": "Unknown"},
	}
	results, err := CreateLeads(context.Background(), mc, records)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)

	assert.Equal(t, "Lead", gotObject)
	assert.Len(t, gotRecords, 2)
}

func TestCreateLeads_RequiresCompany(t *testing.T) {
	called := false
	mc := &mockClient{
		insertCollectionFn: func(context.Context, string, []map[string]any) ([]CollectionResult, error) {
			called = true
			return nil, nil
		},
	}

	_, err := CreateLeads(context.Background(), mc, []map[string]any{{"LastName": "Unknown"}})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestCreateLeads_Empty(t *testing.T) {
	results, err := CreateLeads(context.Background(), &mockClient{}, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestEscapeSoql(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"acme.com", "acme.com"},
		{"O'Reilly", "O\\'Reilly"},
		{"it's a test's case", "it\\'s a test\\'s case"},
		{"no-quotes", "no-quotes"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeSoql(tt.input))
		})
	}
}
