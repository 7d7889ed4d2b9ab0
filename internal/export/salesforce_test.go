package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/salesforce"
)

type fakeSFClient struct {
	leads     []salesforce.Lead
	queryErr  error
	results   []salesforce.CollectionResult
	insertErr error
	object    string
	inserted  []map[string]any
}

var _ salesforce.Client = (*fakeSFClient)(nil)

func (f *fakeSFClient) Query(_ context.Context, _ string, out any) error {
	if f.queryErr != nil {
		return f.queryErr
	}
	*(out.(*[]salesforce.Lead)) = f.leads
	return nil
}

func (f *fakeSFClient) InsertCollection(_ context.Context, sObjectName string, records []map[string]any) ([]salesforce.CollectionResult, error) {
	f.object = sObjectName
	f.inserted = records
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if f.results != nil {
		return f.results, nil
	}
	results := make([]salesforce.CollectionResult, len(records))
	for i := range records {
		results[i] = salesforce.CollectionResult{ID: "00Q", Success: true}
	}
	return results, nil
}

func TestSalesforceExport_InsertsNewLeads(t *testing.T) {
	fc := &fakeSFClient{}
	exp := NewSalesforce(fc)

	inserted, err := exp.Export(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, "Lead", fc.object)
	require.Len(t, fc.inserted, 2)

	lead := fc.inserted[0]
	assert.Equal(t, "Acme Roofing", lead["Company"])
	assert.Equal(t, "Unknown", lead["LastName"])
	assert.Equal(t, "Prospector", lead["LeadSource"])
	assert.Equal(t, "https://acmeroofing.com", lead["Website"])
	assert.Equal(t, "Roofing", lead["Industry"])
	assert.Equal(t, "Denver", lead["City"])
	assert.Equal(t, "CO", lead["State"])
	assert.Equal(t, 11, lead["NumberOfEmployees"])
}

func TestSalesforceExport_SkipsExistingCompany(t *testing.T) {
	fc := &fakeSFClient{leads: []salesforce.Lead{{ID: "00Q1", Company: "ACME ROOFING"}}}
	exp := NewSalesforce(fc)

	inserted, err := exp.Export(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.Len(t, fc.inserted, 1)
	assert.Equal(t, "Summit Exteriors", fc.inserted[0]["Company"])
}

func TestSalesforceExport_AllExistingSkipsInsert(t *testing.T) {
	fc := &fakeSFClient{leads: []salesforce.Lead{
		{ID: "00Q1", Company: "Acme Roofing"},
		{ID: "00Q2", Company: "Summit Exteriors"},
	}}
	exp := NewSalesforce(fc)

	inserted, err := exp.Export(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Nil(t, fc.inserted)
}

func TestSalesforceExport_CountsOutRejections(t *testing.T) {
	fc := &fakeSFClient{results: []salesforce.CollectionResult{
		{ID: "00Q1", Success: true},
		{Success: false, Errors: []string{"REQUIRED_FIELD_MISSING"}},
	}}
	exp := NewSalesforce(fc)

	inserted, err := exp.Export(context.Background(), sampleRecords())
	require.NoError(t, err, "per-record rejections are not fatal")
	assert.Equal(t, 1, inserted)
}

func TestSalesforceExport_QueryFailureAborts(t *testing.T) {
	fc := &fakeSFClient{queryErr: assert.AnError}
	exp := NewSalesforce(fc)

	inserted, err := exp.Export(context.Background(), sampleRecords())
	assert.Error(t, err)
	assert.Equal(t, 0, inserted)
	assert.Nil(t, fc.inserted)
}

func TestLeadFields_MinimalRecord(t *testing.T) {
	fields := leadFields(&model.EntityRecord{Name: "Bare Co"})

	assert.Equal(t, "Bare Co", fields["Company"])
	assert.Equal(t, "Unknown", fields["LastName"])
	assert.Equal(t, "Prospector", fields["LeadSource"])
	assert.NotContains(t, fields, "Website")
	assert.NotContains(t, fields, "City")
	assert.NotContains(t, fields, "NumberOfEmployees")
}

func TestFirstNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"11-50 employees", 11, true},
		{"about 200 people", 200, true},
		{"1,000+", 1000, true},
		{"family owned", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := firstNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
