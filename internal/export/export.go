// Package export delivers accepted records to downstream destinations:
// CSV and XLSX files for spreadsheets, Notion databases and Salesforce
// Leads for CRM handoff. Exports are additive; the search outcome itself
// is never modified.
package export

import (
	"strconv"
	"strings"

	"github.com/sells-group/prospector/internal/model"
)

// exportColumns is the ordered header for tabular destinations.
var exportColumns = []string{
	"Name",
	"Website",
	"Locality",
	"Industry",
	"Size",
	"Founded",
	"LinkedIn",
	"Description",
	"Completeness",
	"Sources",
}

// recordRow maps a record onto exportColumns.
func recordRow(rec *model.EntityRecord) []string {
	founded := ""
	if rec.FoundedYear > 0 {
		founded = strconv.Itoa(rec.FoundedYear)
	}
	return []string{
		rec.Name,
		rec.Website,
		rec.LocalityDisplay,
		rec.Industry,
		rec.SizeEstimate,
		founded,
		rec.LinkedInURL,
		rec.Description,
		strconv.Itoa(rec.CompletenessScore()),
		strings.Join(rec.SourceURLs, "; "),
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// splitLocality breaks "City, Region" into its parts. A single-part
// locality comes back as the city with an empty region.
func splitLocality(locality string) (city, region string) {
	parts := strings.SplitN(locality, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		region = strings.TrimSpace(parts[1])
	}
	return city, region
}
