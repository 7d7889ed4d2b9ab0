// Package geo normalizes locality strings to a canonical "City, Region"
// or "Country" form and answers fuzzy locality matching against a
// metro-area alias table.
package geo

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// seedLocalities maps canonical locality forms to common alias spellings.
// The table is deliberately small: LoadAliases merges per-deployment
// overrides, and `aliases import` derives metro entries from Census CBSA
// data for broader coverage.
var seedLocalities = map[string][]string{
	"New York, NY":      {"nyc", "new york", "new york city", "manhattan", "brooklyn", "queens", "the bronx", "greater new york"},
	"San Francisco, CA": {"sf", "san francisco", "bay area", "sf bay area", "silicon valley"},
	"Los Angeles, CA":   {"la", "los angeles", "greater los angeles", "socal"},
	"Chicago, IL":       {"chicago", "chicagoland"},
	"Denver, CO":        {"denver", "aurora", "lakewood", "denver metro", "front range"},
	"Austin, TX":        {"austin", "greater austin"},
	"Dallas, TX":        {"dallas", "dfw", "dallas-fort worth", "fort worth"},
	"Houston, TX":       {"houston", "greater houston"},
	"Seattle, WA":       {"seattle", "puget sound", "greater seattle"},
	"Boston, MA":        {"boston", "greater boston"},
	"Miami, FL":         {"miami", "south florida", "miami-dade"},
	"Phoenix, AZ":       {"phoenix", "scottsdale", "phoenix metro", "valley of the sun"},
	"Atlanta, GA":       {"atlanta", "metro atlanta"},
	"Washington, DC":    {"washington", "washington dc", "dc", "dmv", "district of columbia"},
	"Philadelphia, PA":  {"philadelphia", "philly"},
	"Minneapolis, MN":   {"minneapolis", "twin cities", "minneapolis-st paul"},
	"Portland, OR":      {"portland"},
	"San Diego, CA":     {"san diego"},
	"Nashville, TN":     {"nashville"},
	"Charlotte, NC":     {"charlotte"},
	"Detroit, MI":       {"detroit", "metro detroit"},
	"London, UK":        {"london", "greater london"},
	"Toronto, ON":       {"toronto", "gta", "greater toronto"},
	"Vancouver, BC":     {"vancouver"},
	"United States":     {"usa", "us", "u.s.", "america", "united states of america"},
	"United Kingdom":    {"uk", "u.k.", "britain", "great britain", "england"},
	"Canada":            {"canada"},
	"Germany":           {"germany"},
	"Australia":         {"australia"},
}

// regionCodes maps full US state and Canadian province names to their
// two-letter codes.
var regionCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT",
	"delaware": "DE", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI",
	"minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND",
	"ohio": "OH", "oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC",
	"ontario":              "ON", "quebec": "QC", "british columbia": "BC",
	"alberta": "AB",
}

// Table resolves locality aliases in both directions: alias to canonical
// form for normalization, canonical form to alias list for fuzzy matching.
type Table struct {
	canonical map[string]string   // lowercase alias -> canonical form
	aliases   map[string][]string // lowercase canonical -> lowercase aliases
}

// AliasEntry pairs one alias spelling with its canonical locality.
type AliasEntry struct {
	Alias     string
	Canonical string
}

// NewTable builds a Table from the seed entries.
func NewTable() *Table {
	t := &Table{
		canonical: make(map[string]string),
		aliases:   make(map[string][]string),
	}
	t.merge(seedLocalities)
	return t
}

func (t *Table) merge(entries map[string][]string) {
	for canon, aliases := range entries {
		key := strings.ToLower(strings.TrimSpace(canon))
		if key == "" {
			continue
		}
		t.canonical[key] = canon
		for _, a := range aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			t.canonical[a] = canon
			if !containsString(t.aliases[key], a) {
				t.aliases[key] = append(t.aliases[key], a)
			}
		}
	}
}

// Normalize maps a locality string onto its canonical "City, Region" or
// "Country" form. Strings the table cannot resolve are returned trimmed
// but otherwise unchanged: an empty locality would silently disable
// downstream filtering, which is worse than an unrecognized one.
func (t *Table) Normalize(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if canon, ok := t.canonical[lower]; ok {
		return canon
	}

	city, region, ok := splitCityRegion(lower)
	if !ok {
		return trimmed
	}

	region = normalizeRegion(region)
	if canon, ok := t.canonical[city]; ok && strings.HasSuffix(canon, ", "+region) {
		return canon
	}
	return titleWords(city) + ", " + region
}

// Lookup returns the canonical form for an alias.
func (t *Table) Lookup(alias string) (string, bool) {
	canon, ok := t.canonical[strings.ToLower(strings.TrimSpace(alias))]
	return canon, ok
}

// AliasEntries returns every known alias with its canonical form, longest
// alias first so that free-text scans prefer the most specific match.
func (t *Table) AliasEntries() []AliasEntry {
	entries := make([]AliasEntry, 0, len(t.canonical))
	for alias, canon := range t.canonical {
		entries = append(entries, AliasEntry{Alias: alias, Canonical: canon})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Alias) != len(entries[j].Alias) {
			return len(entries[i].Alias) > len(entries[j].Alias)
		}
		return entries[i].Alias < entries[j].Alias
	})
	return entries
}

// ScanText returns the canonical form of the first locality alias found
// in free text, preferring longer aliases. Aliases of one or two
// characters must appear uppercase in the original text ("LA", "DC");
// their lowercase forms collide with ordinary words.
func (t *Table) ScanText(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, e := range t.AliasEntries() {
		if len(e.Alias) <= 2 {
			if ContainsPhrase(text, strings.ToUpper(e.Alias)) {
				return e.Canonical, true
			}
			continue
		}
		if ContainsPhrase(lower, e.Alias) {
			return e.Canonical, true
		}
	}
	return "", false
}

// Matches reports whether a record's locality satisfies the requested
// one. Matching is fuzzy but fails closed: exact and canonical equality
// pass, then word-boundary substring and alias containment; anything
// still ambiguous is rejected.
func (t *Table) Matches(got, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	got = strings.TrimSpace(got)
	if got == "" {
		return false
	}

	gotLower := strings.ToLower(got)
	wantLower := strings.ToLower(want)
	if gotLower == wantLower {
		return true
	}

	gotCanon := strings.ToLower(t.Normalize(got))
	wantCanon := strings.ToLower(t.Normalize(want))
	if gotCanon == wantCanon {
		return true
	}

	if ContainsPhrase(gotLower, wantLower) || ContainsPhrase(wantLower, gotLower) {
		return true
	}

	// Aliases of the requested locality appearing in the record's string.
	// Two-letter aliases collide with ordinary words and are skipped.
	for _, a := range t.aliases[wantCanon] {
		if len(a) <= 2 {
			continue
		}
		if ContainsPhrase(gotLower, a) || ContainsPhrase(gotCanon, a) {
			return true
		}
	}
	if city, _, ok := splitCityRegion(wantCanon); ok && len(city) > 2 {
		if ContainsPhrase(gotLower, city) {
			return true
		}
	}

	return false
}

func splitCityRegion(s string) (city, region string, ok bool) {
	i := strings.LastIndex(s, ",")
	if i < 0 {
		return "", "", false
	}
	city = strings.TrimSpace(s[:i])
	region = strings.TrimSpace(s[i+1:])
	if city == "" || region == "" {
		return "", "", false
	}
	return city, region, true
}

func normalizeRegion(r string) string {
	r = strings.TrimSpace(r)
	if code, ok := regionCodes[strings.ToLower(r)]; ok {
		return code
	}
	if len(r) == 2 {
		return strings.ToUpper(r)
	}
	return titleWords(r)
}

// titleWords title-cases a phrase. The caser carries state and is built
// per call.
func titleWords(s string) string {
	return cases.Title(language.English).String(s)
}

// ContainsPhrase reports whether phrase occurs in s on word boundaries,
// so "la" does not match inside "atlanta".
func ContainsPhrase(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	for idx := 0; ; {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
