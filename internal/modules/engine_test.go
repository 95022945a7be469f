package modules

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"lens/internal/contract"
	"lens/internal/llm"
	"lens/internal/model"
)

func testContext(mods []contract.ModuleDef) contract.ExecutionContext {
	c := &contract.Contract{
		ID:       "test",
		Doc:      contract.Document{ModuleDefinitions: mods},
		Patterns: make(map[string]*regexp.Regexp),
	}
	for _, mod := range mods {
		for _, field := range mod.Fields {
			if field.Pattern != "" {
				c.Patterns[field.ID] = regexp.MustCompile(field.Pattern)
			}
		}
	}
	return contract.NewExecutionContext(c)
}

func annotated(rec model.ExtractedRecord, activities ...string) *model.AnnotatedRecord {
	return &model.AnnotatedRecord{
		Record:     rec,
		Dimensions: model.CanonicalDimensions{Activities: activities},
		Class:      model.ClassPlace,
	}
}

// fakeProvider returns canned fields and records what it was asked for.
type fakeProvider struct {
	fields   map[string]any
	err      error
	requests []llm.ExtractRequest
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Extract(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ExtractResponse{Fields: p.fields, Model: "fake"}, nil
}
func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func courtsModule(fields ...contract.FieldRule) contract.ModuleDef {
	return contract.ModuleDef{
		Namespace: "courts",
		Trigger: contract.ModuleTrigger{
			Dimension: "activities",
			Values:    []string{"activity.padel"},
		},
		Fields: fields,
	}
}

func TestTriggered(t *testing.T) {
	trigger := contract.ModuleTrigger{Dimension: "activities", Values: []string{"activity.padel"}}

	if !Triggered(trigger, annotated(model.ExtractedRecord{}, "activity.padel", "activity.tennis")) {
		t.Error("Expected intersecting dimensions to trigger")
	}
	if Triggered(trigger, annotated(model.ExtractedRecord{}, "activity.tennis")) {
		t.Error("Expected disjoint dimensions not to trigger")
	}

	trigger.EntityClass = "event"
	if Triggered(trigger, annotated(model.ExtractedRecord{}, "activity.padel")) {
		t.Error("Expected class condition to block a place")
	}
}

func TestApply_DeterministicKinds(t *testing.T) {
	ec := testContext([]contract.ModuleDef{courtsModule(
		contract.FieldRule{ID: "f-count", Path: "count", Kind: "number", Pattern: `(\d+) courts?`},
		contract.FieldRule{ID: "f-surface", Path: "surface", Kind: "pattern", Pattern: `(clay|artificial|hard) (?:courts?|surface)`},
		contract.FieldRule{ID: "f-covered", Path: "covered", Kind: "lookup", LookupField: "name",
			Lookup: map[string]string{"meadows padel dome": "yes"}},
	)})

	ann := annotated(model.ExtractedRecord{
		Name:        "Meadows Padel Dome",
		Description: "4 courts with artificial surface",
	}, "activity.padel")

	res := NewEngine(nil, nil).Apply(context.Background(), ec, ann)
	if res.RuleErrors != 0 || res.ExtractionErrors != 0 {
		t.Fatalf("Expected clean run, got %+v", res)
	}

	tree := ann.Modules["courts"].(map[string]any)
	if tree["count"] != float64(4) {
		t.Errorf("Expected count 4, got %v", tree["count"])
	}
	if tree["surface"] != "artificial" {
		t.Errorf("Expected surface capture, got %v", tree["surface"])
	}
	if tree["covered"] != "yes" {
		t.Errorf("Expected lookup hit, got %v", tree["covered"])
	}
	if ann.ModuleConfidence["courts.count"] != 1 {
		t.Errorf("Expected default confidence 1, got %v", ann.ModuleConfidence["courts.count"])
	}
}

func TestApply_UntriggeredModuleNeverAttached(t *testing.T) {
	ec := testContext([]contract.ModuleDef{courtsModule(
		contract.FieldRule{ID: "f-count", Path: "count", Kind: "number", Pattern: `(\d+)`},
	)})

	ann := annotated(model.ExtractedRecord{Description: "4 courts"}, "activity.tennis")
	NewEngine(nil, nil).Apply(context.Background(), ec, ann)
	if _, ok := ann.Modules["courts"]; ok {
		t.Error("Expected no module attachment without a trigger")
	}
}

func TestApply_GenerativeFillsOnlyUnsetFields(t *testing.T) {
	provider := &fakeProvider{fields: map[string]any{
		"count":   float64(99),
		"booking": "online",
	}}
	ec := testContext([]contract.ModuleDef{courtsModule(
		contract.FieldRule{ID: "f-count", Path: "count", Kind: "number", Pattern: `(\d+) courts?`},
		contract.FieldRule{ID: "g-count", Path: "count", Kind: "generative", Type: "number"},
		contract.FieldRule{ID: "g-booking", Path: "booking", Kind: "generative", Type: "string", Confidence: 0.5},
	)})

	ann := annotated(model.ExtractedRecord{Description: "4 courts, book online"}, "activity.padel")
	NewEngine(provider, nil).Apply(context.Background(), ec, ann)

	if len(provider.requests) != 1 {
		t.Fatalf("Expected one batched call per module, got %d", len(provider.requests))
	}
	// count was set deterministically: it must not appear in the request.
	for _, f := range provider.requests[0].Fields {
		if f.Path == "count" {
			t.Error("Expected deterministic field to be excluded from the generative batch")
		}
	}

	tree := ann.Modules["courts"].(map[string]any)
	if tree["count"] != float64(4) {
		t.Errorf("Expected deterministic count to survive, got %v", tree["count"])
	}
	if tree["booking"] != "online" {
		t.Errorf("Expected generative booking, got %v", tree["booking"])
	}
	if ann.ModuleConfidence["courts.booking"] != 0.5 {
		t.Errorf("Expected declared confidence 0.5, got %v", ann.ModuleConfidence["courts.booking"])
	}
}

func TestApply_GenerativeFailureDegrades(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}
	ec := testContext([]contract.ModuleDef{courtsModule(
		contract.FieldRule{ID: "f-count", Path: "count", Kind: "number", Pattern: `(\d+) courts?`},
		contract.FieldRule{ID: "g-booking", Path: "booking", Kind: "generative", Type: "string"},
	)})

	ann := annotated(model.ExtractedRecord{Description: "4 courts"}, "activity.padel")
	res := NewEngine(provider, nil).Apply(context.Background(), ec, ann)

	if res.ExtractionErrors != 1 {
		t.Errorf("Expected one extraction error, got %d", res.ExtractionErrors)
	}
	// Deterministic fields must survive the failure.
	tree := ann.Modules["courts"].(map[string]any)
	if tree["count"] != float64(4) {
		t.Errorf("Expected deterministic fields to survive provider failure, got %v", tree["count"])
	}
}

func TestApply_ApplyIfGatesGenerativeFields(t *testing.T) {
	provider := &fakeProvider{fields: map[string]any{}}
	ec := testContext([]contract.ModuleDef{courtsModule(
		contract.FieldRule{ID: "g-indoor", Path: "indoor", Kind: "generative", Type: "string",
			ApplyIf: &contract.Condition{Dimension: "access", Values: []string{"access.indoor"}}},
	)})

	ann := annotated(model.ExtractedRecord{Description: "courts"}, "activity.padel")
	NewEngine(provider, nil).Apply(context.Background(), ec, ann)
	if len(provider.requests) != 0 {
		t.Error("Expected no generative call when apply_if fails")
	}
}

func TestApply_Normalizers(t *testing.T) {
	ec := testContext([]contract.ModuleDef{courtsModule(
		contract.FieldRule{ID: "f-surface", Path: "surface", Kind: "pattern",
			Pattern: `(CLAY|HARD) courts`, Normalize: []string{"lowercase", "trim"}},
		contract.FieldRule{ID: "f-tags", Path: "tags", Kind: "pattern",
			Pattern: `(floodlit)`, Normalize: []string{"wrap_list"}},
	)})

	ann := annotated(model.ExtractedRecord{Description: "CLAY courts, floodlit"}, "activity.padel")
	NewEngine(nil, nil).Apply(context.Background(), ec, ann)

	tree := ann.Modules["courts"].(map[string]any)
	if tree["surface"] != "clay" {
		t.Errorf("Expected lowercased surface, got %v", tree["surface"])
	}
	if !reflect.DeepEqual(tree["tags"], []any{"floodlit"}) {
		t.Errorf("Expected wrapped list, got %v", tree["tags"])
	}
}

func TestWriteAndReadPath(t *testing.T) {
	tree := map[string]any{}
	writePath(tree, "booking.phone.number", "+44131")
	if v, ok := readPath(tree, "booking.phone.number"); !ok || v != "+44131" {
		t.Errorf("Expected nested write/read roundtrip, got %v (%v)", v, ok)
	}
	if _, ok := readPath(tree, "booking.missing"); ok {
		t.Error("Expected absent path to report not found")
	}
}
