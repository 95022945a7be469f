// Package features derives routing signals from a free-text query using
// only the vocabulary supplied by the active contract. There are no
// built-in terms: an empty vocabulary yields empty features.
package features

import (
	"sort"
	"strings"
	"unicode"

	"lens/internal/contract"
)

// Features are the boolean/string signals the planner evaluates routing
// triggers against. Same query + same contract always yields identical
// features.
type Features struct {
	Query      string `json:"query"`
	Normalized string `json:"normalized"`

	// KeywordHits maps vocabulary list names to the terms that matched,
	// sorted lexicographically.
	KeywordHits map[string][]string `json:"keyword_hits,omitempty"`

	HasGeoIntent bool     `json:"has_geo_intent"`
	GeoTerms     []string `json:"geo_terms,omitempty"`

	// LooksLikeCategory is set when the query reads as a category search
	// rather than a lookup of one named thing.
	LooksLikeCategory bool `json:"looks_like_category"`
}

// Extract computes features for a query against the contract vocabulary.
// Pure: no state, no I/O.
func Extract(query string, vocab contract.Vocabulary) Features {
	normalized := normalize(query)
	f := Features{
		Query:       query,
		Normalized:  normalized,
		KeywordHits: make(map[string][]string),
	}

	listNames := make([]string, 0, len(vocab.Keywords))
	for name := range vocab.Keywords {
		listNames = append(listNames, name)
	}
	sort.Strings(listNames)

	for _, name := range listNames {
		var hits []string
		for _, term := range vocab.Keywords[name] {
			if containsTerm(normalized, term) {
				hits = append(hits, strings.ToLower(term))
			}
		}
		if len(hits) > 0 {
			sort.Strings(hits)
			f.KeywordHits[name] = hits
		}
	}

	for _, term := range vocab.GeoIndicators {
		if containsTerm(normalized, term) {
			f.GeoTerms = append(f.GeoTerms, strings.ToLower(term))
		}
	}
	sort.Strings(f.GeoTerms)
	f.HasGeoIntent = len(f.GeoTerms) > 0

	for _, marker := range vocab.CategoryMarkers {
		if containsTerm(normalized, marker) {
			f.LooksLikeCategory = true
			break
		}
	}

	return f
}

// MatchedList reports whether any term of the named vocabulary list hit.
func (f Features) MatchedList(name string) bool {
	return len(f.KeywordHits[name]) > 0
}

// normalize lowercases and collapses non-alphanumeric runs to single
// spaces so term matching is token-shaped, not substring-shaped.
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// containsTerm matches a normalized term on token boundaries; multi-word
// terms match as normalized phrases.
func containsTerm(normalized, term string) bool {
	t := normalize(term)
	if t == "" {
		return false
	}
	padded := " " + normalized + " "
	return strings.Contains(padded, " "+t+" ")
}
