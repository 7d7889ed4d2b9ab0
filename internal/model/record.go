package model

// EntityRecord is the structured result extracted for one verified
// organization. Created by the extractor, annotated pass/fail by the
// filter, and otherwise never mutated after creation.
type EntityRecord struct {
	Name            string   `json:"name"`
	Website         string   `json:"website,omitempty"`
	LocalityDisplay string   `json:"locality_display,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	SizeEstimate    string   `json:"size_estimate,omitempty"`
	FoundedYear     int      `json:"founded_year,omitempty"`
	LinkedInURL     string   `json:"linkedin_url,omitempty"`
	Description     string   `json:"description,omitempty"`
	SourceURLs      []string `json:"source_urls,omitempty"`

	// Filter annotation. RejectReason is empty for accepted records.
	Accepted     bool   `json:"accepted"`
	RejectReason string `json:"reject_reason,omitempty"`
}

// Key returns the record's identity key, used for dedup and cache lookups.
func (r *EntityRecord) Key() string {
	return IdentityKey(r.Name)
}

// Clone returns a deep copy. The cache hands out clones so callers can
// never mutate a stored record in place.
func (r *EntityRecord) Clone() *EntityRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.SourceURLs != nil {
		out.SourceURLs = append([]string(nil), r.SourceURLs...)
	}
	return &out
}

// CompletenessScore rates how fully populated the record is, 0-100.
// Derived on demand, never stored. Weights favor the fields that make a
// record actionable (name, website, locality) over nice-to-haves.
func (r *EntityRecord) CompletenessScore() int {
	score := 0
	if r.Name != "" {
		score += 25
	}
	if r.Website != "" {
		score += 20
	}
	if r.LocalityDisplay != "" {
		score += 15
	}
	if r.Industry != "" {
		score += 12
	}
	if r.SizeEstimate != "" {
		score += 10
	}
	if r.Description != "" {
		score += 8
	}
	if r.FoundedYear > 0 {
		score += 5
	}
	if r.LinkedInURL != "" {
		score += 5
	}
	return score
}
