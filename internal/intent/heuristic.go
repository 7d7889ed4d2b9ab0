package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/geo"
	"github.com/sells-group/prospector/internal/model"
)

// industryTable lists industry phrases the heuristic parser recognizes,
// sorted longest first so "investment banks" wins over "banks".
var industryTable = func() []string {
	t := []string{
		"investment banks", "investment banking", "private equity",
		"venture capital", "wealth management", "asset management",
		"hedge funds", "law firms", "accounting firms", "real estate",
		"property management", "general contractors", "roofing",
		"plumbing", "hvac", "landscaping", "electricians",
		"solar installers", "software", "saas", "cybersecurity",
		"fintech", "biotech", "pharmaceutical", "medical devices",
		"insurance", "logistics", "trucking", "manufacturing",
		"construction", "restaurants", "breweries", "healthcare",
		"dental", "veterinary", "marketing agencies",
		"advertising agencies", "staffing", "recruiting", "consulting",
		"architecture", "engineering", "banks",
	}
	sort.Slice(t, func(i, j int) bool { return len(t[i]) > len(t[j]) })
	return t
}()

var sizePhrases = []struct {
	phrase string
	bucket model.SizeBucket
}{
	{"mid-size", model.SizeMid},
	{"mid-sized", model.SizeMid},
	{"midsize", model.SizeMid},
	{"medium", model.SizeMid},
	{"small", model.SizeSmall},
	{"boutique", model.SizeSmall},
	{"startup", model.SizeSmall},
	{"large", model.SizeLarge},
	{"enterprise", model.SizeLarge},
	{"big", model.SizeLarge},
	{"major", model.SizeLarge},
}

var (
	localityRe = regexp.MustCompile(`(?i)\b(?:in|near|around)\s+([a-z][a-z0-9 .,'-]{1,40})`)
	countRe    = regexp.MustCompile(`\b(\d{1,3})\b`)
	// Numbers followed by these are quantities, not result counts.
	countExcludeRe = regexp.MustCompile(`(?i)^\s*(?:employees?|people|staff|years?|%|percent|million|billion|k\b|m\b)`)
)

// localityStopwords end an "in <place>" capture.
var localityStopwords = map[string]bool{
	"for": true, "with": true, "that": true, "who": true, "which": true,
	"and": true, "or": true, "to": true, "under": true, "over": true,
	"about": true, "having": true,
}

// fillerWords carry no subject meaning and are dropped by the industry
// fallback.
var fillerWords = map[string]bool{
	"find": true, "show": true, "list": true, "give": true, "get": true,
	"me": true, "top": true, "best": true, "some": true, "a": true,
	"an": true, "the": true, "of": true, "for": true, "with": true,
	"and": true, "in": true, "near": true, "around": true,
	"companies": true, "company": true, "firms": true, "firm": true,
	"businesses": true, "business": true, "organizations": true,
	"providers": true, "shops": true, "located": true, "based": true,
	"employees": true, "employee": true, "people": true, "staff": true,
}

// heuristic is the rule-based fallback parser: keyword tables for
// industry and size, the locality alias table plus an "in <place>"
// pattern, and a bare result count.
func (p *Planner) heuristic(query string) model.SearchIntent {
	lower := strings.ToLower(query)

	intent := model.SearchIntent{
		TargetCount: parseTargetCount(query),
		SizeBucket:  parseSize(lower),
	}

	if canon, ok := p.localities.ScanText(query); ok {
		intent.Locality = canon
	} else if m := localityRe.FindStringSubmatch(query); m != nil {
		intent.Locality = p.localities.Normalize(trimLocalityCapture(m[1]))
	}

	intent.IndustryHint = parseIndustry(lower)
	if intent.IndustryHint == "" {
		intent.IndustryHint = p.subjectFallback(lower, intent.Locality)
	}

	zap.L().Debug("intent: heuristic parse",
		zap.String("query", query),
		zap.String("industry", intent.IndustryHint),
		zap.String("locality", intent.Locality),
	)
	return intent
}

func parseIndustry(lower string) string {
	for _, phrase := range industryTable {
		if geo.ContainsPhrase(lower, phrase) {
			return singularPhrase(phrase)
		}
	}
	return ""
}

func parseSize(lower string) model.SizeBucket {
	for _, sp := range sizePhrases {
		if geo.ContainsPhrase(lower, sp.phrase) {
			return sp.bucket
		}
	}
	return ""
}

func parseTargetCount(query string) int {
	for _, m := range countRe.FindAllStringSubmatchIndex(query, -1) {
		if m[2] >= 1 && query[m[2]-1] == '$' {
			continue
		}
		if countExcludeRe.MatchString(query[m[3]:]) {
			continue
		}
		n, err := strconv.Atoi(query[m[2]:m[3]])
		if err != nil {
			continue
		}
		if n >= 1 && n <= maxTargetCount {
			return n
		}
	}
	return 0
}

// trimLocalityCapture reduces an "in <place>" capture to the place name:
// a leading article, anything after a stopword, and trailing descriptor
// words are dropped.
func trimLocalityCapture(capture string) string {
	words := strings.Fields(capture)
	if len(words) > 0 && strings.EqualFold(words[0], "the") {
		words = words[1:]
	}

	var kept []string
	for _, w := range words {
		if localityStopwords[strings.ToLower(strings.Trim(w, ".,'"))] {
			break
		}
		kept = append(kept, w)
		if len(kept) == 4 {
			break
		}
	}
	for len(kept) > 0 {
		switch strings.ToLower(strings.Trim(kept[len(kept)-1], ".,'")) {
		case "area", "region", "metro":
			kept = kept[:len(kept)-1]
		default:
			return strings.Trim(strings.Join(kept, " "), " .,'-")
		}
	}
	return ""
}

// subjectFallback extracts a best-effort industry phrase when the keyword
// table misses: locality words, size words, counts, and filler are
// removed and whatever remains becomes the hint.
func (p *Planner) subjectFallback(lower, locality string) string {
	locWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(locality)) {
		locWords[strings.Trim(w, ".,")] = true
	}

	var kept []string
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?'\"")
		if w == "" || fillerWords[w] || locWords[w] {
			continue
		}
		if _, err := strconv.Atoi(w); err == nil {
			continue
		}
		if _, ok := p.localities.Lookup(w); ok {
			continue
		}
		if model.ParseSizeBucket(w) != "" {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 6 {
			break
		}
	}
	return singularPhrase(strings.Join(kept, " "))
}

// singularPhrase trims the plural from the last word of a phrase so
// "law firms" and "law firm" produce the same industry hint.
func singularPhrase(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return s
	}
	last := words[len(words)-1]
	switch {
	case len(last) > 4 && strings.HasSuffix(last, "ies"):
		words[len(words)-1] = last[:len(last)-3] + "y"
	case len(last) > 3 && strings.HasSuffix(last, "s") && !strings.HasSuffix(last, "ss"):
		words[len(words)-1] = last[:len(last)-1]
	}
	return strings.Join(words, " ")
}
