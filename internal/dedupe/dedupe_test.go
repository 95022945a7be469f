package dedupe

import (
	"math/rand"
	"reflect"
	"testing"

	"lens/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestMatchTier_ExternalIDWinsOverEverything(t *testing.T) {
	a := model.ExtractedRecord{
		ID: "a/1", Name: "Completely Different",
		ExternalIDs: map[string]string{"osm": "node/42"},
		Latitude:    ptr(55.95), Longitude: ptr(-3.19),
	}
	b := model.ExtractedRecord{
		ID: "b/1", Name: "Another Thing Entirely",
		ExternalIDs: map[string]string{"osm": "node/42"},
		Latitude:    ptr(55.95), Longitude: ptr(-3.19),
	}
	if tier := MatchTier(&a, &b); tier != TierExternalID {
		t.Errorf("Expected tier %d for shared external id, got %d", TierExternalID, tier)
	}
}

func TestMatchTier_EmptyExternalIDNeverMatches(t *testing.T) {
	a := model.ExtractedRecord{ID: "a/1", Name: "X", ExternalIDs: map[string]string{"osm": ""}}
	b := model.ExtractedRecord{ID: "b/1", Name: "Y", ExternalIDs: map[string]string{"osm": ""}}
	if tier := MatchTier(&a, &b); tier != 0 {
		t.Errorf("Expected no match on empty external ids, got tier %d", tier)
	}
}

func TestMatchTier_GeoRequiresNameAgreement(t *testing.T) {
	a := model.ExtractedRecord{
		ID: "a/1", Name: "Meadows Padel Courts",
		Latitude: ptr(55.9410), Longitude: ptr(-3.1920),
	}
	nearby := model.ExtractedRecord{
		ID: "b/1", Name: "The Meadows Padel Court",
		Latitude: ptr(55.9411), Longitude: ptr(-3.1921),
	}
	if tier := MatchTier(&a, &nearby); tier != TierGeo {
		t.Errorf("Expected tier %d for nearby similar names, got %d", TierGeo, tier)
	}

	unrelated := model.ExtractedRecord{
		ID: "c/1", Name: "Quartermile Dental Practice",
		Latitude: ptr(55.9411), Longitude: ptr(-3.1921),
	}
	if tier := MatchTier(&a, &unrelated); tier != 0 {
		t.Errorf("Expected no match for nearby unrelated names, got tier %d", tier)
	}
}

func TestMatchTier_GeoDistanceBound(t *testing.T) {
	a := model.ExtractedRecord{
		ID: "a/1", Name: "Meadows Padel Courts",
		Latitude: ptr(55.9410), Longitude: ptr(-3.1920),
	}
	// ~0.01 degrees latitude is over a kilometre: outside the radius.
	far := model.ExtractedRecord{
		ID: "b/1", Name: "Meadows Padel Courts",
		Latitude: ptr(55.9510), Longitude: ptr(-3.1920),
	}
	if tier := MatchTier(&a, &far); tier == TierGeo {
		t.Error("Expected no geo match beyond the distance bound")
	}
	// Name similarity still catches it at tier 3.
	if tier := MatchTier(&a, &far); tier != TierName {
		t.Errorf("Expected tier %d via name similarity, got %d", TierName, tier)
	}
}

func TestMatchTier_NameSimilarity(t *testing.T) {
	a := model.ExtractedRecord{ID: "a/1", Name: "The Meadows Tennis Courts"}
	b := model.ExtractedRecord{ID: "b/1", Name: "Meadows Tennis Court"}
	if tier := MatchTier(&a, &b); tier != TierName {
		t.Errorf("Expected tier %d, got %d", TierName, tier)
	}

	c := model.ExtractedRecord{ID: "c/1", Name: "Leith Victoria Swim Centre"}
	if tier := MatchTier(&a, &c); tier != 0 {
		t.Errorf("Expected no match for dissimilar names, got %d", tier)
	}
}

func TestNameSimilarityScore(t *testing.T) {
	if s := NameSimilarityScore("The Padel Hub", "padel hub"); s != 1 {
		t.Errorf("Expected article/case differences to normalize away, got %v", s)
	}
	if s := NameSimilarityScore("", "anything"); s != 0 {
		t.Errorf("Expected empty name to score 0, got %v", s)
	}
}

func TestFingerprint(t *testing.T) {
	a := model.ExtractedRecord{
		Name: "The Padel Hub!", City: "Edinburgh", Postcode: "EH3 9QG",
		RawCategories: []string{"Sports", "Leisure"},
	}
	b := model.ExtractedRecord{
		Name: "padel hub", City: "edinburgh", Postcode: "eh3 9qg",
		RawCategories: []string{"sports"},
	}
	if Fingerprint(&a) != Fingerprint(&b) {
		t.Errorf("Expected matching fingerprints:\n%q\n%q", Fingerprint(&a), Fingerprint(&b))
	}

	empty := model.ExtractedRecord{City: "Edinburgh"}
	if Fingerprint(&empty) != "" {
		t.Errorf("Expected empty fingerprint for nameless record, got %q", Fingerprint(&empty))
	}
}

func TestGroup_TransitiveUnion(t *testing.T) {
	// a~b via external id, b~c via name: all three must land in one group.
	records := []model.ExtractedRecord{
		{ID: "src1/1", Name: "Meadows Padel", ExternalIDs: map[string]string{"osm": "n1"}},
		{ID: "src2/1", Name: "The Meadows Padel", ExternalIDs: map[string]string{"osm": "n1"}},
		{ID: "src3/1", Name: "Meadows Padel"},
		{ID: "src4/1", Name: "Portobello Beach Volleyball"},
	}

	matcher := NewMatcher()
	groups := matcher.Group(records)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d: %+v", len(groups), groups)
	}
	if !reflect.DeepEqual(groups[0].RecordIDs, []string{"src1/1", "src2/1", "src3/1"}) {
		t.Errorf("Expected merged trio, got %v", groups[0].RecordIDs)
	}
	if groups[0].Tier != TierExternalID {
		t.Errorf("Expected strongest tier %d on the merged group, got %d", TierExternalID, groups[0].Tier)
	}
	if !reflect.DeepEqual(groups[1].RecordIDs, []string{"src4/1"}) {
		t.Errorf("Expected singleton group, got %v", groups[1].RecordIDs)
	}
}

func TestGroup_OrderIndependent(t *testing.T) {
	records := []model.ExtractedRecord{
		{ID: "a/1", Name: "Meadows Padel", ExternalIDs: map[string]string{"osm": "n1"}},
		{ID: "b/1", Name: "Meadows Padel Courts"},
		{ID: "c/1", Name: "Dunbar Harbour Seafood", City: "Dunbar"},
		{ID: "d/1", Name: "The Meadows Padel", ExternalIDs: map[string]string{"osm": "n1"}},
	}

	matcher := NewMatcher()
	want := matcher.Group(records)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]model.ExtractedRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := matcher.Group(shuffled)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("Expected grouping to ignore input order:\nwant %+v\ngot  %+v", want, got)
		}
	}
}
