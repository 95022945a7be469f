// Package merge produces one deterministic MergedEntity per dedup group.
// Only registry metadata (trust, priority) and record content influence an
// outcome; source names never appear in a conditional.
package merge

import (
	"sort"
	"strings"
	"time"

	"lens/internal/classify"
	"lens/internal/model"
)

// Member is one group member with the registry metadata the strategies are
// allowed to consult.
type Member struct {
	Ann      *model.AnnotatedRecord
	Trust    float64
	Priority int // lower is higher priority
}

// Engine merges dedup groups. Stateless.
type Engine struct{}

// NewEngine creates a merge engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Merge resolves one group into a MergedEntity. Members are sorted by
// (-trust, source id, record id) before any field logic runs, so outcomes
// never depend on arrival order.
func (e *Engine) Merge(members []Member) model.MergedEntity {
	ordered := append([]Member(nil), members...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Trust != b.Trust {
			return a.Trust > b.Trust
		}
		if a.Ann.Record.SourceID != b.Ann.Record.SourceID {
			return a.Ann.Record.SourceID < b.Ann.Record.SourceID
		}
		return a.Ann.Record.ID < b.Ann.Record.ID
	})

	var out model.MergedEntity
	confidence := make(map[string]float64)

	e.mergeIdentity(ordered, &out, confidence)
	e.mergeGeo(ordered, &out, confidence)
	e.mergeContact(ordered, &out, confidence)
	e.mergeTimes(ordered, &out)
	e.mergeDimensions(ordered, &out)
	e.mergeModules(ordered, &out)
	e.mergeProvenance(ordered, &out, confidence)

	// Class is recomputed from the merged primitives so it stays a pure
	// function of the final record, independent of member ordering.
	out.Class = classify.Classify(&model.ExtractedRecord{
		Name:      out.Name,
		Latitude:  out.Latitude,
		Longitude: out.Longitude,
		Street:    out.Street,
		City:      out.City,
		Postcode:  out.Postcode,
		StartTime: out.StartTime,
		EndTime:   out.EndTime,
	})
	return out
}

// recordCompleteness counts non-missing primitive fields; the shared
// completeness measure for the identity and time strategies.
func recordCompleteness(rec *model.ExtractedRecord) int {
	n := 0
	for _, f := range []string{"name", "description", "street", "city", "postcode", "country", "phone", "email", "website"} {
		if rec.Field(f) != "" {
			n++
		}
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		n++
	}
	if rec.StartTime != nil {
		n++
	}
	if len(rec.RawCategories) > 0 {
		n++
	}
	if len(rec.ExternalIDs) > 0 {
		n++
	}
	return n
}

// pickString selects a string field value: trust, then record
// completeness, then registry priority, then source id. Members arrive
// pre-sorted by (-trust, source id, record id), so a stable scan that only
// replaces on a strict win realizes the full cascade.
func pickString(members []Member, get func(*model.ExtractedRecord) string) (string, Member, bool) {
	var best string
	var bestMember Member
	var bestScore [3]int
	found := false

	for _, m := range members {
		v := strings.TrimSpace(get(&m.Ann.Record))
		if model.IsMissing(v) {
			continue
		}
		// trust descends with the pre-sort; encode the remaining cascade.
		score := [3]int{
			int(m.Trust * 1e6),
			recordCompleteness(&m.Ann.Record),
			-m.Priority,
		}
		if !found || scoreGreater(score, bestScore) {
			best, bestMember, bestScore, found = v, m, score, true
		}
	}
	return best, bestMember, found
}

func scoreGreater(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func (e *Engine) mergeIdentity(members []Member, out *model.MergedEntity, confidence map[string]float64) {
	set := func(field string, dst *string, get func(*model.ExtractedRecord) string) {
		if v, m, ok := pickString(members, get); ok {
			*dst = v
			confidence[field] = m.Trust
		}
	}
	set("name", &out.Name, func(r *model.ExtractedRecord) string { return r.Name })
	set("description", &out.Description, func(r *model.ExtractedRecord) string { return r.Description })
	set("street", &out.Street, func(r *model.ExtractedRecord) string { return r.Street })
	set("city", &out.City, func(r *model.ExtractedRecord) string { return r.City })
	set("postcode", &out.Postcode, func(r *model.ExtractedRecord) string { return r.Postcode })
	set("country", &out.Country, func(r *model.ExtractedRecord) string { return r.Country })
}

// geoPrecisionRank orders the precision metadata values.
func geoPrecisionRank(p string) int {
	switch p {
	case "exact":
		return 3
	case "approximate":
		return 2
	case "locality":
		return 1
	}
	return 0
}

// mergeGeo selects one coordinate pair wholesale: precision metadata, then
// trust, then decimal precision, then priority, then source id. Never a
// centroid.
func (e *Engine) mergeGeo(members []Member, out *model.MergedEntity, confidence map[string]float64) {
	var best Member
	var bestScore [4]int
	found := false
	for _, m := range members {
		rec := &m.Ann.Record
		if rec.Latitude == nil || rec.Longitude == nil {
			continue
		}
		score := [4]int{
			geoPrecisionRank(rec.GeoPrecision),
			int(m.Trust * 1e6),
			rec.GeoDecimals,
			-m.Priority,
		}
		if !found || score4Greater(score, bestScore) {
			best, bestScore, found = m, score, true
		}
	}
	if !found {
		return
	}
	lat, lon := *best.Ann.Record.Latitude, *best.Ann.Record.Longitude
	out.Latitude = &lat
	out.Longitude = &lon
	out.GeoPrecision = best.Ann.Record.GeoPrecision
	confidence["coordinates"] = best.Trust
}

func score4Greater(a, b [4]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// contactQuality scores structural shape only; nothing is network-verified.
func contactQuality(field, v string) int {
	switch field {
	case "phone":
		score := 0
		if strings.HasPrefix(v, "+") {
			score += 2
		}
		digits := 0
		for _, r := range v {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 7 && digits <= 15 {
			score++
		}
		return score
	case "email":
		at := strings.IndexByte(v, '@')
		if at > 0 && strings.IndexByte(v[at:], '.') > 1 {
			return 2
		}
		return 0
	case "website":
		switch {
		case strings.HasPrefix(v, "https://"):
			return 2
		case strings.HasPrefix(v, "http://"):
			return 1
		}
		return 0
	}
	return 0
}

func (e *Engine) mergeContact(members []Member, out *model.MergedEntity, confidence map[string]float64) {
	pick := func(field string, dst *string, get func(*model.ExtractedRecord) string) {
		var best string
		var bestTrust float64
		var bestScore [3]int
		found := false
		for _, m := range members {
			v := strings.TrimSpace(get(&m.Ann.Record))
			if model.IsMissing(v) {
				continue
			}
			score := [3]int{
				contactQuality(field, v),
				int(m.Trust * 1e6),
				-m.Priority,
			}
			if !found || scoreGreater(score, bestScore) {
				best, bestTrust, bestScore, found = v, m.Trust, score, true
			}
		}
		if found {
			*dst = best
			confidence[field] = bestTrust
		}
	}
	pick("phone", &out.Phone, func(r *model.ExtractedRecord) string { return r.Phone })
	pick("email", &out.Email, func(r *model.ExtractedRecord) string { return r.Email })
	pick("website", &out.Website, func(r *model.ExtractedRecord) string { return r.Website })
}

func (e *Engine) mergeTimes(members []Member, out *model.MergedEntity) {
	pick := func(get func(*model.ExtractedRecord) *time.Time) *time.Time {
		var best *time.Time
		var bestScore [3]int
		for _, m := range members {
			v := get(&m.Ann.Record)
			if v == nil {
				continue
			}
			score := [3]int{
				int(m.Trust * 1e6),
				recordCompleteness(&m.Ann.Record),
				-m.Priority,
			}
			if best == nil || scoreGreater(score, bestScore) {
				t := *v
				best, bestScore = &t, score
			}
		}
		return best
	}
	out.StartTime = pick(func(r *model.ExtractedRecord) *time.Time { return r.StartTime })
	out.EndTime = pick(func(r *model.ExtractedRecord) *time.Time { return r.EndTime })
}

// mergeDimensions unions each canonical array: commutative, so no
// tie-break exists to get wrong.
func (e *Engine) mergeDimensions(members []Member, out *model.MergedEntity) {
	for _, name := range model.DimensionNames() {
		seen := make(map[string]bool)
		for _, m := range members {
			for _, v := range m.Ann.Dimensions.Get(name) {
				if v != "" {
					seen[v] = true
				}
			}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		out.Dimensions.Set(name, values)
	}
}

// mergeModules folds each member's module trees into the result in the
// pre-sorted order, so the structural merge's "keep existing on tie" rule
// lands on the higher-trust, lexicographically-earlier source.
func (e *Engine) mergeModules(members []Member, out *model.MergedEntity) {
	merged := make(map[string]any)
	meta := make(map[string]LeafMeta) // namespace -> winning side metadata

	for _, m := range members {
		namespaces := make([]string, 0, len(m.Ann.Modules))
		for ns := range m.Ann.Modules {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)

		for _, ns := range namespaces {
			srcMeta := LeafMeta{
				Trust:      m.Trust,
				Confidence: namespaceConfidence(m.Ann, ns),
				Priority:   m.Priority,
				Complete:   Completeness(m.Ann.Modules[ns]),
			}
			existing, ok := merged[ns]
			if !ok {
				merged[ns] = clone(m.Ann.Modules[ns])
				meta[ns] = srcMeta
				continue
			}
			merged[ns] = MergeTrees(existing, m.Ann.Modules[ns], meta[ns], srcMeta, TrustChooser)
			if TrustChooser(existing, m.Ann.Modules[ns], meta[ns], srcMeta) {
				meta[ns] = srcMeta
			}
		}
	}
	if len(merged) > 0 {
		out.Modules = merged
	}
}

// namespaceConfidence is the mean rule confidence across a member's leaves
// in one namespace; used as the per-leaf confidence tie-break input.
func namespaceConfidence(ann *model.AnnotatedRecord, ns string) float64 {
	prefix := ns + "."
	sum, n := 0.0, 0
	for path, conf := range ann.ModuleConfidence {
		if strings.HasPrefix(path, prefix) {
			sum += conf
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (e *Engine) mergeProvenance(members []Member, out *model.MergedEntity, confidence map[string]float64) {
	sources := make(map[string]bool)
	externalIDs := make(map[string]string)
	for _, m := range members {
		sources[m.Ann.Record.SourceID] = true
		// Pre-sorted order: the first (highest-trust) holder of a key wins.
		for ns, id := range m.Ann.Record.ExternalIDs {
			if id == "" {
				continue
			}
			if _, taken := externalIDs[ns]; !taken {
				externalIDs[ns] = id
			}
		}
	}

	contributing := make([]string, 0, len(sources))
	for s := range sources {
		contributing = append(contributing, s)
	}
	sort.Strings(contributing)

	out.Provenance = model.Provenance{
		ContributingSources: contributing,
		ExternalIDs:         externalIDs,
		FieldConfidence:     confidence,
	}
	if len(members) > 0 {
		// Members are pre-sorted; the head is the primary source.
		ordered := append([]Member(nil), members...)
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Trust != ordered[j].Trust {
				return ordered[i].Trust > ordered[j].Trust
			}
			return ordered[i].Ann.Record.SourceID < ordered[j].Ann.Record.SourceID
		})
		out.Provenance.PrimarySource = ordered[0].Ann.Record.SourceID
	}
	if len(externalIDs) == 0 {
		out.Provenance.ExternalIDs = nil
	}
	if len(confidence) == 0 {
		out.Provenance.FieldConfidence = nil
	}
}
