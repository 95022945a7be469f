// Package classify assigns the structural entity class. Classification
// reads primitives only — never dimensions or modules — so it stays
// independent of lens interpretation.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"lens/internal/model"
)

// orgSuffix matches common organizational name endings. Structural, not
// vertical-specific: these are legal-form and collective suffixes.
var orgSuffix = regexp.MustCompile(`(?i)\b(inc|ltd|llc|plc|gmbh|co|corp|club|association|society|federation|institute|foundation|group)\.?$`)

// Classify is a pure, deterministic function of record primitives.
//
// Order: any geographic anchor makes a place; a time range makes an event;
// an organizational name shape makes an organization; a person-shaped name
// makes a person; everything else is a thing.
func Classify(rec *model.ExtractedRecord) model.EntityClass {
	if rec.HasGeoAnchor() {
		return model.ClassPlace
	}
	if rec.StartTime != nil || rec.EndTime != nil {
		return model.ClassEvent
	}
	name := strings.TrimSpace(rec.Name)
	if name != "" {
		if orgSuffix.MatchString(name) {
			return model.ClassOrganization
		}
		if looksLikePersonName(name) {
			return model.ClassPerson
		}
	}
	return model.ClassThing
}

// looksLikePersonName matches two or three capitalized alphabetic tokens
// with no digits — a shape heuristic, nothing more.
func looksLikePersonName(name string) bool {
	tokens := strings.Fields(name)
	if len(tokens) < 2 || len(tokens) > 3 {
		return false
	}
	for _, tok := range tokens {
		runes := []rune(tok)
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' {
				return false
			}
		}
	}
	return true
}
