package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID       string `json:"Id" salesforce:"Id"`
	Company  string `json:"Company" salesforce:"Company"`
	LastName string `json:"LastName" salesforce:"LastName"`
	Website  string `json:"Website" salesforce:"Website"`
	Status   string `json:"Status" salesforce:"Status"`
}

// companyChunkSize bounds how many quoted names go into one SOQL IN list,
// keeping the statement well under the 20k character limit.
const companyChunkSize = 100

// FindLeadsByCompany queries Leads whose Company matches any of the given
// names. Long lists are chunked into multiple queries.
func FindLeadsByCompany(ctx context.Context, c Client, companies []string) ([]Lead, error) {
	if len(companies) == 0 {
		return nil, nil
	}

	var all []Lead
	for start := 0; start < len(companies); start += companyChunkSize {
		end := min(start+companyChunkSize, len(companies))

		quoted := make([]string, 0, end-start)
		for _, name := range companies[start:end] {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			quoted = append(quoted, "'"+escapeSoql(name)+"'")
		}
		if len(quoted) == 0 {
			continue
		}

		soql := fmt.Sprintf(
			"SELECT Id, Company, LastName, Website, Status FROM Lead WHERE Company IN (%s)",
			strings.Join(quoted, ", "),
		)
		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, "sf: find leads by company")
		}
		all = append(all, leads...)
	}
	return all, nil
}

// CreateLeads inserts leads in bulk via the Collections API and returns
// per-record results.
func CreateLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	if len(records) == 0 {
		return nil, nil
	}
	for _, r := range records {
		if r["Company"] == nil || r["Company"] == "" {
			return nil, eris.New("sf: lead Company is required")
		}
	}
	results, err := c.InsertCollection(ctx, "Lead", records)
	if err != nil {
		return nil, eris.Wrap(err, "sf: create leads")
	}
	return results, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
