package merge

import (
	"reflect"
	"testing"
)

func TestMergeTrees_MissingSideNeverWins(t *testing.T) {
	high := LeafMeta{Trust: 0.9}
	low := LeafMeta{Trust: 0.1}

	if got := MergeTrees("kept", nil, low, high, TrustChooser); got != "kept" {
		t.Errorf("Expected missing incoming to lose regardless of trust, got %v", got)
	}
	if got := MergeTrees(nil, "incoming", high, low, TrustChooser); got != "incoming" {
		t.Errorf("Expected present incoming to beat missing existing, got %v", got)
	}
	if got := MergeTrees("kept", "", low, high, TrustChooser); got != "kept" {
		t.Errorf("Expected empty string to count as missing, got %v", got)
	}
}

func TestMergeTrees_ObjectsMergeKeyByKey(t *testing.T) {
	dst := map[string]any{
		"surface": "clay",
		"booking": map[string]any{"online": true},
	}
	src := map[string]any{
		"lighting": "floodlit",
		"booking":  map[string]any{"phone": "+441315551234"},
	}

	got := MergeTrees(dst, src, LeafMeta{Trust: 0.9}, LeafMeta{Trust: 0.5}, TrustChooser)
	want := map[string]any{
		"surface":  "clay",
		"lighting": "floodlit",
		"booking":  map[string]any{"online": true, "phone": "+441315551234"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected recursive key merge:\nwant %v\ngot  %v", want, got)
	}
}

func TestMergeTrees_ScalarArraysUnion(t *testing.T) {
	dst := []any{"clay", "hard"}
	src := []any{"hard", "grass"}

	got := MergeTrees(dst, src, LeafMeta{}, LeafMeta{}, TrustChooser)
	want := []any{"clay", "grass", "hard"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected sorted union, got %v", got)
	}

	// Union is idempotent: merging again changes nothing.
	again := MergeTrees(got, src, LeafMeta{}, LeafMeta{}, TrustChooser)
	if !reflect.DeepEqual(again, want) {
		t.Errorf("Expected idempotent union, got %v", again)
	}
}

func TestMergeTrees_ObjectArraysPickedWholesale(t *testing.T) {
	dst := []any{map[string]any{"day": "mon", "open": "09:00"}}
	src := []any{
		map[string]any{"day": "mon", "open": "08:00"},
		map[string]any{"day": "tue", "open": "09:00"},
	}

	got := MergeTrees(dst, src, LeafMeta{Trust: 0.3}, LeafMeta{Trust: 0.8}, TrustChooser)
	if !reflect.DeepEqual(got, src) {
		t.Errorf("Expected higher-trust object array wholesale, got %v", got)
	}

	got = MergeTrees(dst, src, LeafMeta{Trust: 0.8}, LeafMeta{Trust: 0.3}, TrustChooser)
	if !reflect.DeepEqual(got, dst) {
		t.Errorf("Expected existing object array to survive, got %v", got)
	}
}

func TestMergeTrees_ScalarConflictByTrustThenConfidence(t *testing.T) {
	got := MergeTrees("a", "b", LeafMeta{Trust: 0.5}, LeafMeta{Trust: 0.9}, TrustChooser)
	if got != "b" {
		t.Errorf("Expected trust to decide, got %v", got)
	}

	got = MergeTrees("a", "b",
		LeafMeta{Trust: 0.5, Confidence: 0.9},
		LeafMeta{Trust: 0.5, Confidence: 0.6}, TrustChooser)
	if got != "a" {
		t.Errorf("Expected confidence to break the trust tie, got %v", got)
	}

	// Full tie keeps the existing side.
	got = MergeTrees("a", "b", LeafMeta{Trust: 0.5}, LeafMeta{Trust: 0.5}, TrustChooser)
	if got != "a" {
		t.Errorf("Expected existing side on a full tie, got %v", got)
	}
}

func TestMergeTrees_TypeMismatchPicksOneSide(t *testing.T) {
	got := MergeTrees("twelve", float64(12), LeafMeta{Trust: 0.2}, LeafMeta{Trust: 0.7}, TrustChooser)
	if got != float64(12) {
		t.Errorf("Expected higher-trust side on type mismatch, got %v", got)
	}
}

func TestMergeTrees_IncomingChooserOverwrites(t *testing.T) {
	got := MergeTrees("old", "new", LeafMeta{Trust: 1}, LeafMeta{Trust: 0}, IncomingChooser)
	if got != "new" {
		t.Errorf("Expected incoming to win under IncomingChooser, got %v", got)
	}
	// But missingness still protects stored data.
	got = MergeTrees("old", nil, LeafMeta{}, LeafMeta{}, IncomingChooser)
	if got != "old" {
		t.Errorf("Expected missing incoming never to erase, got %v", got)
	}
}

func TestMergeTrees_DoesNotAliasInputs(t *testing.T) {
	dst := map[string]any{"nested": map[string]any{"k": "v"}}
	src := map[string]any{"other": "x"}
	got := MergeTrees(dst, src, LeafMeta{}, LeafMeta{}, TrustChooser).(map[string]any)

	got["nested"].(map[string]any)["k"] = "mutated"
	if dst["nested"].(map[string]any)["k"] != "v" {
		t.Error("Expected merged tree not to alias the input")
	}
}
