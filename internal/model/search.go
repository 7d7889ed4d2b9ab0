package model

import "strings"

// SizeBucket coarsely classifies organization size.
type SizeBucket string

const (
	SizeSmall SizeBucket = "small"
	SizeMid   SizeBucket = "mid"
	SizeLarge SizeBucket = "large"
)

// ParseSizeBucket maps a free-text size hint onto a SizeBucket.
// Returns "" when the hint does not name a recognizable size.
func ParseSizeBucket(s string) SizeBucket {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "boutique", "startup":
		return SizeSmall
	case "mid", "midsize", "mid-size", "mid-sized", "medium":
		return SizeMid
	case "large", "big", "enterprise", "major":
		return SizeLarge
	}
	return ""
}

// SearchRequest is the immutable input to a discovery search: a free-text
// query plus optional explicit overrides for what the planner would
// otherwise infer. Created once per invocation, never mutated.
type SearchRequest struct {
	Query       string     `json:"query"`
	Industry    string     `json:"industry,omitempty"`
	Locality    string     `json:"locality,omitempty"`
	TargetCount int        `json:"target_count,omitempty"`
	SizeBucket  SizeBucket `json:"size_bucket,omitempty"`
}

// SearchIntent is the planner's structured reading of a SearchRequest.
// TargetCount is always >= 1 after planning.
type SearchIntent struct {
	IndustryHint string     `json:"industry_hint,omitempty"`
	Locality     string     `json:"locality,omitempty"`
	TargetCount  int        `json:"target_count"`
	SizeBucket   SizeBucket `json:"size_bucket,omitempty"`
}

// CategoryKey identifies the (industry, locality) combination this intent
// targets. Success-rate statistics and overfetch estimates are tracked per
// category key. Empty components collapse to "any" so that unconstrained
// searches share one bucket instead of fragmenting the stats.
func (i SearchIntent) CategoryKey() string {
	industry := strings.ToLower(strings.TrimSpace(i.IndustryHint))
	if industry == "" {
		industry = "any"
	}
	locality := strings.ToLower(strings.TrimSpace(i.Locality))
	if locality == "" {
		locality = "any"
	}
	return industry + "|" + locality
}

// Candidate is an unverified organization-name string proposed by the
// generator, scoped to one iteration. Dedup across iterations happens in
// the controller via identity keys.
type Candidate struct {
	Name string `json:"name"`
}

// Key returns the candidate's identity key.
func (c Candidate) Key() string {
	return IdentityKey(c.Name)
}

// RawLookupResult is the fetcher's output for one candidate: raw
// unstructured content plus source URLs on success, or a classified error.
// Ephemeral, discarded after extraction.
type RawLookupResult struct {
	Candidate  Candidate `json:"candidate"`
	Content    string    `json:"content,omitempty"`
	SourceURLs []string  `json:"source_urls,omitempty"`
	Err        error     `json:"-"`
}
