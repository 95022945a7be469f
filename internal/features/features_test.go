package features

import (
	"reflect"
	"testing"

	"lens/internal/contract"
)

func testVocab() contract.Vocabulary {
	return contract.Vocabulary{
		Keywords: map[string][]string{
			"sports": {"padel", "tennis", "padel court"},
			"food":   {"ramen", "laksa"},
		},
		GeoIndicators:   []string{"in", "near"},
		CategoryMarkers: []string{"courts", "clubs"},
	}
}

func TestExtract_KeywordHits(t *testing.T) {
	f := Extract("Padel courts in Edinburgh", testVocab())

	if !f.MatchedList("sports") {
		t.Error("Expected sports list to match")
	}
	if f.MatchedList("food") {
		t.Error("Expected food list not to match")
	}
	hits := f.KeywordHits["sports"]
	if !reflect.DeepEqual(hits, []string{"padel"}) {
		t.Errorf("Expected hits [padel], got %v", hits)
	}
}

func TestExtract_MultiWordTerm(t *testing.T) {
	f := Extract("any padel court nearby?", testVocab())
	if !f.MatchedList("sports") {
		t.Error("Expected multi-word term 'padel court' to match")
	}
}

func TestExtract_GeoIntent(t *testing.T) {
	f := Extract("padel courts in edinburgh", testVocab())
	if !f.HasGeoIntent {
		t.Error("Expected geo intent from 'in'")
	}
	if !reflect.DeepEqual(f.GeoTerms, []string{"in"}) {
		t.Errorf("Expected geo terms [in], got %v", f.GeoTerms)
	}

	f = Extract("padel rules explained", testVocab())
	if f.HasGeoIntent {
		t.Error("Expected no geo intent without an indicator")
	}
}

func TestExtract_TokenBoundaries(t *testing.T) {
	// "in" must not match inside "painting"; "ramen" not inside "ornament".
	f := Extract("painting ornament", testVocab())
	if f.HasGeoIntent {
		t.Error("Expected no geo intent from substring 'in'")
	}
	if f.MatchedList("food") {
		t.Error("Expected no food match from substring 'ramen'")
	}
}

func TestExtract_CategorySignal(t *testing.T) {
	f := Extract("tennis clubs near leith", testVocab())
	if !f.LooksLikeCategory {
		t.Error("Expected category signal from 'clubs'")
	}
}

func TestExtract_EmptyVocabularyYieldsEmptyFeatures(t *testing.T) {
	f := Extract("padel courts in edinburgh", contract.Vocabulary{})
	if len(f.KeywordHits) != 0 || f.HasGeoIntent || f.LooksLikeCategory {
		t.Errorf("Expected empty features with empty vocabulary, got %+v", f)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	a := Extract("Padel & tennis COURTS in Edinburgh!", testVocab())
	b := Extract("Padel & tennis COURTS in Edinburgh!", testVocab())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Expected identical features across calls:\n%+v\n%+v", a, b)
	}
	if a.Normalized != "padel tennis courts in edinburgh" {
		t.Errorf("Unexpected normalization: %q", a.Normalized)
	}
}
