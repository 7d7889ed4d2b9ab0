package model

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// IdentityKey standardizes an organization name for deduplication by:
//  1. Folding diacritics to their ASCII base characters
//  2. Converting to lowercase
//  3. Stripping punctuation (commas, periods, quotes; & becomes "and",
//     dashes become spaces)
//  4. Collapsing runs of whitespace into single spaces
//
// "Acme Inc." and "acme inc" both key to "acme inc". Legal suffixes are
// kept: "Acme Inc" and "Acme Corp" may be different organizations, so the
// key must not merge them.
func IdentityKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = foldDiacritics(name)
	name = strings.ToLower(name)

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"’", "",
		"\"", "",
		"&", " and ",
		"-", " ",
		"/", " ",
		"(", " ",
		")", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return name
}

// CacheKey builds the cache lookup key for a (name, locality) pair. Records
// for the same organization name searched under different localities are
// cached independently.
func CacheKey(name, locality string) string {
	key := IdentityKey(name)
	loc := strings.ToLower(strings.TrimSpace(locality))
	if loc == "" {
		return key
	}
	return key + "|" + loc
}

// foldDiacritics decomposes accented characters and drops the combining
// marks, so "Café Société" folds to "Cafe Societe". The transformer chain
// carries state and is built per call.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
