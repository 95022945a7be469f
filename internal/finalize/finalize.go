// Package finalize turns merged entities into persisted form: a stable
// slug identity plus the idempotent upsert that reconciles a new merge
// result with an already-stored entity.
package finalize

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"lens/internal/merge"
	"lens/internal/model"
)

// Slug derives the stable entity key from name and locality. Pure function
// of its inputs: the same entity yields the same slug on every run.
//
// Normalization: casefold, strip one leading article, drop everything but
// letters, digits, and hyphens, collapse runs of whitespace to single
// hyphens. A non-empty city is appended the same way as a suffix segment.
func Slug(name, city string) string {
	base := slugify(name)
	if base == "" {
		return ""
	}
	if loc := slugify(city); loc != "" {
		return base + "-" + loc
	}
	return base
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, article) {
			s = s[len(article):]
			break
		}
	}
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// EntityFor wraps a merged entity with its slug and timestamps for a first
// insertion.
func EntityFor(m model.MergedEntity, now time.Time) model.Entity {
	return model.Entity{
		Slug:      Slug(m.Name, m.City),
		Merged:    m,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Upsert reconciles an incoming merged entity with the stored one under the
// same slug and returns the result. The rules, applied field-kind by
// field-kind:
//
//   - primitives: a non-missing incoming value overwrites; a missing one
//     never erases stored data
//   - dimensions: replaced wholesale by the incoming arrays
//   - module trees: structurally merged, incoming leaves win conflicts
//   - provenance: contributing sources and external ids union
//
// Applying the same incoming entity twice yields the same stored state, so
// UpdatedAt moves only when the reconciled entity actually changed.
func Upsert(stored model.Entity, incoming model.MergedEntity, now time.Time) model.Entity {
	out := stored
	m := &out.Merged

	setStr := func(dst *string, v string) {
		if !model.IsMissing(v) {
			*dst = v
		}
	}
	setStr(&m.Name, incoming.Name)
	setStr(&m.Description, incoming.Description)
	setStr(&m.Street, incoming.Street)
	setStr(&m.City, incoming.City)
	setStr(&m.Postcode, incoming.Postcode)
	setStr(&m.Country, incoming.Country)
	setStr(&m.Phone, incoming.Phone)
	setStr(&m.Email, incoming.Email)
	setStr(&m.Website, incoming.Website)

	if incoming.Latitude != nil && incoming.Longitude != nil {
		lat, lon := *incoming.Latitude, *incoming.Longitude
		m.Latitude, m.Longitude = &lat, &lon
		m.GeoPrecision = incoming.GeoPrecision
	}
	if incoming.StartTime != nil {
		t := *incoming.StartTime
		m.StartTime = &t
	}
	if incoming.EndTime != nil {
		t := *incoming.EndTime
		m.EndTime = &t
	}
	if incoming.Class != "" {
		m.Class = incoming.Class
	}

	// Dimensions are the lens's complete current opinion, not an accretion.
	m.Dimensions = incoming.Dimensions

	m.Modules = upsertModules(m.Modules, incoming.Modules)
	m.Provenance = unionProvenance(m.Provenance, incoming.Provenance)

	if !entitiesEqual(stored.Merged, out.Merged) {
		out.UpdatedAt = now.UTC()
	}
	return out
}

func upsertModules(stored, incoming map[string]any) map[string]any {
	if len(incoming) == 0 {
		return stored
	}
	out := make(map[string]any, len(stored)+len(incoming))
	for ns, tree := range stored {
		out[ns] = tree
	}
	for ns, tree := range incoming {
		out[ns] = merge.MergeTrees(out[ns], tree, merge.LeafMeta{}, merge.LeafMeta{}, merge.IncomingChooser)
	}
	return out
}

func unionProvenance(stored, incoming model.Provenance) model.Provenance {
	out := stored

	seen := make(map[string]bool, len(stored.ContributingSources))
	for _, s := range stored.ContributingSources {
		seen[s] = true
	}
	for _, s := range incoming.ContributingSources {
		if !seen[s] {
			out.ContributingSources = append(out.ContributingSources, s)
			seen[s] = true
		}
	}
	sort.Strings(out.ContributingSources)

	if len(incoming.ExternalIDs) > 0 {
		ids := make(map[string]string, len(stored.ExternalIDs)+len(incoming.ExternalIDs))
		for ns, id := range stored.ExternalIDs {
			ids[ns] = id
		}
		for ns, id := range incoming.ExternalIDs {
			if id != "" {
				ids[ns] = id
			}
		}
		out.ExternalIDs = ids
	}

	if incoming.PrimarySource != "" {
		out.PrimarySource = incoming.PrimarySource
	}
	if len(incoming.FieldConfidence) > 0 {
		conf := make(map[string]float64, len(stored.FieldConfidence)+len(incoming.FieldConfidence))
		for k, v := range stored.FieldConfidence {
			conf[k] = v
		}
		for k, v := range incoming.FieldConfidence {
			conf[k] = v
		}
		out.FieldConfidence = conf
	}
	return out
}

// entitiesEqual compares reconciled states via canonical serialization.
func entitiesEqual(a, b model.MergedEntity) bool {
	return merge.CanonicalJSON(a) == merge.CanonicalJSON(b)
}
