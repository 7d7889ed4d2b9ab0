// Package filter validates extracted records against the search intent.
// Locality matching is deliberately biased toward rejection: a strict
// filter costs extra iterations, a loose one produces wrong answers.
package filter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/prospector/internal/geo"
	"github.com/sells-group/prospector/internal/model"
)

// Employee-count boundaries for the size buckets. Ranges in extracted
// size text match a bucket when they intersect it.
const (
	smallMaxEmployees = 50
	midMaxEmployees   = 500
)

// sizeKeywords match bucket words appearing directly in extracted size
// text, checked on word boundaries so "mid" never matches "pyramid".
var sizeKeywords = map[model.SizeBucket][]string{
	model.SizeSmall: {"small", "boutique", "startup", "micro"},
	model.SizeMid:   {"mid", "medium"},
	model.SizeLarge: {"large", "enterprise", "big", "major"},
}

var numberRe = regexp.MustCompile(`\d[\d,]*`)

// Filter applies the intent's locality, industry, and size constraints.
type Filter struct {
	localities *geo.Table
}

// New creates a Filter using the given locality alias table.
func New(localities *geo.Table) *Filter {
	if localities == nil {
		localities = geo.NewTable()
	}
	return &Filter{localities: localities}
}

// Matches reports whether the record satisfies every constraint the
// intent carries, along with the reject reason for the first failed
// check. Constraints the intent leaves empty are skipped; fields the
// record is missing reject when the intent constrains them.
func (f *Filter) Matches(record *model.EntityRecord, intent model.SearchIntent) (bool, string) {
	if intent.Locality != "" {
		got := strings.TrimSpace(record.LocalityDisplay)
		if got == "" {
			return false, "locality missing"
		}
		if !f.localities.Matches(got, intent.Locality) {
			return false, fmt.Sprintf("locality mismatch: got %q want %q", got, intent.Locality)
		}
	}

	if hint := strings.ToLower(strings.TrimSpace(intent.IndustryHint)); hint != "" {
		got := strings.ToLower(strings.TrimSpace(record.Industry))
		if got == "" {
			return false, "industry missing"
		}
		if !strings.Contains(got, hint) && !strings.Contains(hint, got) {
			return false, fmt.Sprintf("industry mismatch: got %q want %q", record.Industry, intent.IndustryHint)
		}
	}

	if intent.SizeBucket != "" {
		got := strings.ToLower(strings.TrimSpace(record.SizeEstimate))
		if got == "" {
			return false, "size missing"
		}
		if !sizeMatches(got, intent.SizeBucket) {
			return false, fmt.Sprintf("size mismatch: got %q want %q", record.SizeEstimate, intent.SizeBucket)
		}
	}

	return true, ""
}

// Apply annotates the record with the filter verdict and returns it.
func (f *Filter) Apply(record *model.EntityRecord, intent model.SearchIntent) bool {
	ok, reason := f.Matches(record, intent)
	record.Accepted = ok
	record.RejectReason = reason
	return ok
}

// sizeMatches accepts bucket keywords in the size text, then falls back
// to parsing an employee-count range and intersecting it with the
// bucket's boundaries.
func sizeMatches(sizeText string, bucket model.SizeBucket) bool {
	for _, kw := range sizeKeywords[bucket] {
		if geo.ContainsPhrase(sizeText, kw) {
			return true
		}
	}

	lo, hi, ok := parseEmployeeRange(sizeText)
	if !ok {
		return false
	}
	blo, bhi := bucketRange(bucket)
	return lo <= bhi && hi >= blo
}

// parseEmployeeRange reads "11-50", "1,000+", or "about 45 employees"
// style size text into an inclusive employee-count range.
func parseEmployeeRange(sizeText string) (lo, hi int, ok bool) {
	matches := numberRe.FindAllString(sizeText, 2)
	if len(matches) == 0 {
		return 0, 0, false
	}

	nums := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
		if err != nil {
			return 0, 0, false
		}
		nums = append(nums, n)
	}

	lo = nums[0]
	hi = lo
	if len(nums) > 1 {
		hi = nums[1]
	} else if strings.Contains(sizeText, "+") {
		hi = math.MaxInt32
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, true
}

func bucketRange(bucket model.SizeBucket) (lo, hi int) {
	switch bucket {
	case model.SizeSmall:
		return 1, smallMaxEmployees
	case model.SizeMid:
		return smallMaxEmployees + 1, midMaxEmployees
	case model.SizeLarge:
		return midMaxEmployees + 1, math.MaxInt32
	default:
		return 1, math.MaxInt32
	}
}
