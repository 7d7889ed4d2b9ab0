package export

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/salesforce"
)

var leadingNumberRe = regexp.MustCompile(`\d[\d,]*`)

// Salesforce syncs records into Salesforce as Leads. Records whose
// company name already has a Lead are skipped.
type Salesforce struct {
	client salesforce.Client
}

// NewSalesforce creates a Salesforce exporter.
func NewSalesforce(client salesforce.Client) *Salesforce {
	return &Salesforce{client: client}
}

// Export inserts a Lead per record not already present and returns the
// number inserted. Per-record insert rejections are logged and counted
// out, not fatal.
func (s *Salesforce) Export(ctx context.Context, records []model.EntityRecord) (int, error) {
	names := make([]string, 0, len(records))
	for i := range records {
		names = append(names, records[i].Name)
	}
	existing, err := salesforce.FindLeadsByCompany(ctx, s.client, names)
	if err != nil {
		return 0, eris.Wrap(err, "export: query existing leads")
	}
	seen := make(map[string]bool, len(existing))
	for _, lead := range existing {
		seen[model.IdentityKey(lead.Company)] = true
	}

	var payload []map[string]any
	var payloadNames []string
	for i := range records {
		rec := &records[i]
		if seen[rec.Key()] {
			continue
		}
		seen[rec.Key()] = true
		payload = append(payload, leadFields(rec))
		payloadNames = append(payloadNames, rec.Name)
	}
	if len(payload) == 0 {
		zap.L().Info("export: all leads already in salesforce", zap.Int("records", len(records)))
		return 0, nil
	}

	results, err := salesforce.CreateLeads(ctx, s.client, payload)
	if err != nil {
		return 0, eris.Wrap(err, "export: insert leads")
	}

	inserted := 0
	for i, r := range results {
		if r.Success {
			inserted++
			continue
		}
		name := ""
		if i < len(payloadNames) {
			name = payloadNames[i]
		}
		zap.L().Warn("export: lead rejected",
			zap.String("company", name),
			zap.Strings("errors", r.Errors),
		)
	}

	zap.L().Info("export: salesforce sync complete",
		zap.Int("inserted", inserted),
		zap.Int("skipped", len(records)-len(payload)),
		zap.Int("rejected", len(payload)-inserted),
	)
	return inserted, nil
}

// leadFields maps a record to Lead fields. Lead requires Company and
// LastName; discovery has no contact person, so LastName carries a
// placeholder for the sales team to fill in.
func leadFields(rec *model.EntityRecord) map[string]any {
	fields := map[string]any{
		"Company":    rec.Name,
		"LastName":   "Unknown",
		"LeadSource": "Prospector",
	}
	if rec.Website != "" {
		fields["Website"] = rec.Website
	}
	if rec.Industry != "" {
		fields["Industry"] = rec.Industry
	}
	if rec.Description != "" {
		fields["Description"] = rec.Description
	}
	if city, state := splitLocality(rec.LocalityDisplay); city != "" {
		fields["City"] = city
		if state != "" {
			fields["State"] = state
		}
	}
	if n, ok := firstNumber(rec.SizeEstimate); ok {
		fields["NumberOfEmployees"] = n
	}
	return fields
}

// firstNumber pulls the leading number out of a size estimate like
// "51-200 employees".
func firstNumber(s string) (int, bool) {
	match := leadingNumberRe.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}
