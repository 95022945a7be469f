// Package dedupe groups same-entity candidates across sources. Four tiers
// run in fixed priority order per pair; a higher-tier match short-circuits
// the lower tiers. Grouping only — no field-level decisions happen here.
package dedupe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"lens/internal/model"
)

// Fixed thresholds. These are part of the determinism contract: the test
// suite pins them, so changing one is a behavior change, not a tuning knob.
const (
	// TierExternalID .. TierFingerprint number the match tiers.
	TierExternalID  = 1
	TierGeo         = 2
	TierName        = 3
	TierFingerprint = 4

	// GeoDistanceMeters is the coordinate radius for tier 2.
	GeoDistanceMeters = 150.0
	// GeoNameSimilarity is the name floor that must also hold for tier 2.
	GeoNameSimilarity = 0.55
	// NameSimilarity is the tier-3 floor on normalized-name similarity.
	NameSimilarity = 0.85
)

// Matcher groups extracted records into DedupGroups.
type Matcher struct{}

// NewMatcher creates a matcher. All thresholds are fixed constants.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Group partitions the records. Records are compared pairwise in id order;
// matches union transitively. Each group reports the strongest tier that
// contributed an edge.
func (m *Matcher) Group(records []model.ExtractedRecord) []model.DedupGroup {
	ordered := append([]model.ExtractedRecord(nil), records...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	uf := newUnionFind(len(ordered))
	tiers := make([]int, len(ordered))
	for i := range tiers {
		tiers[i] = 0
	}

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			tier := MatchTier(&ordered[i], &ordered[j])
			if tier == 0 {
				continue
			}
			ri, rj := uf.find(i), uf.find(j)
			root := uf.union(ri, rj)
			best := tier
			for _, t := range []int{tiers[ri], tiers[rj]} {
				if t != 0 && t < best {
					best = t
				}
			}
			tiers[root] = best
		}
	}

	members := make(map[int][]string)
	rootTier := make(map[int]int)
	for i, rec := range ordered {
		root := uf.find(i)
		members[root] = append(members[root], rec.ID)
		if t := tiers[root]; t != 0 {
			rootTier[root] = t
		}
	}

	groups := make([]model.DedupGroup, 0, len(members))
	for root, ids := range members {
		sort.Strings(ids)
		tier := rootTier[root]
		if tier == 0 {
			tier = TierFingerprint // singleton; tier is informational only
		}
		groups = append(groups, model.DedupGroup{RecordIDs: ids, Tier: tier})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].RecordIDs[0] < groups[j].RecordIDs[0]
	})
	return groups
}

// MatchTier returns the strongest tier on which two records match, or 0.
func MatchTier(a, b *model.ExtractedRecord) int {
	if sharedExternalID(a, b) {
		return TierExternalID
	}
	if geoMatch(a, b) {
		return TierGeo
	}
	if NameSimilarityScore(a.Name, b.Name) >= NameSimilarity {
		return TierName
	}
	if Fingerprint(a) == Fingerprint(b) && Fingerprint(a) != "" {
		return TierFingerprint
	}
	return 0
}

// sharedExternalID is tier 1: exact match on any shared source-native key.
func sharedExternalID(a, b *model.ExtractedRecord) bool {
	for ns, id := range a.ExternalIDs {
		if id == "" {
			continue
		}
		if other, ok := b.ExternalIDs[ns]; ok && other == id {
			return true
		}
	}
	return false
}

// geoMatch is tier 2: coordinates within the fixed radius and names at
// least loosely similar.
func geoMatch(a, b *model.ExtractedRecord) bool {
	if a.Latitude == nil || a.Longitude == nil || b.Latitude == nil || b.Longitude == nil {
		return false
	}
	d := haversineMeters(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
	if d > GeoDistanceMeters {
		return false
	}
	return NameSimilarityScore(a.Name, b.Name) >= GeoNameSimilarity
}

// Fingerprint is the tier-4 content hash input: normalized name, city,
// postcode, and the first raw category.
func Fingerprint(rec *model.ExtractedRecord) string {
	name := NormalizeName(rec.Name)
	if name == "" {
		return ""
	}
	first := ""
	if len(rec.RawCategories) > 0 {
		first = strings.ToLower(rec.RawCategories[0])
	}
	return fmt.Sprintf("%s|%s|%s|%s",
		name,
		strings.ToLower(strings.TrimSpace(rec.City)),
		strings.ToLower(strings.TrimSpace(rec.Postcode)),
		first)
}

// NormalizeName case-folds, strips a leading article, drops punctuation,
// and collapses whitespace.
func NormalizeName(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	s := strings.TrimSpace(b.String())
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, article) {
			s = s[len(article):]
			break
		}
	}
	return s
}

// NameSimilarityScore is 1 - lev(a,b)/max(len) over normalized names.
// Empty names never match.
func NameSimilarityScore(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ra, rb := []rune(na), []rune(nb)
	dist := levenshtein(ra, rb)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(dist)/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}
