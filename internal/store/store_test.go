package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"lens/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "lens.db"))
	if err != nil {
		t.Fatalf("Expected store to open, got %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mergedFixture() model.MergedEntity {
	return model.MergedEntity{
		Name:  "Meadows Padel Courts",
		City:  "Edinburgh",
		Phone: "+44 131 555 0000",
		Class: model.ClassPlace,
		Dimensions: model.CanonicalDimensions{
			Activities: []string{"activity.padel"},
			Access:     []string{},
			PlaceTypes: []string{},
			Roles:      []string{},
		},
		Provenance: model.Provenance{
			ContributingSources: []string{"courtfinder"},
		},
	}
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	entity, created, err := st.Upsert(ctx, mergedFixture(), now)
	if err != nil {
		t.Fatalf("Expected upsert to succeed, got %v", err)
	}
	if !created {
		t.Error("Expected first upsert to create")
	}
	if entity.Slug != "meadows-padel-courts-edinburgh" {
		t.Errorf("Unexpected slug %q", entity.Slug)
	}

	update := mergedFixture()
	update.Description = "Four covered courts."
	update.Provenance.ContributingSources = []string{"townlistings"}

	later := now.Add(time.Hour)
	entity, created, err = st.Upsert(ctx, update, later)
	if err != nil {
		t.Fatalf("Expected second upsert to succeed, got %v", err)
	}
	if created {
		t.Error("Expected second upsert to update, not create")
	}
	if entity.Merged.Description != "Four covered courts." {
		t.Errorf("Expected description applied, got %q", entity.Merged.Description)
	}
	if !reflect.DeepEqual(entity.Merged.Provenance.ContributingSources, []string{"courtfinder", "townlistings"}) {
		t.Errorf("Expected source union, got %v", entity.Merged.Provenance.ContributingSources)
	}
	if !entity.CreatedAt.Equal(now) {
		t.Errorf("Expected CreatedAt preserved, got %v", entity.CreatedAt)
	}
}

func TestUpsert_IdempotentRerun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	first, _, err := st.Upsert(ctx, mergedFixture(), now)
	if err != nil {
		t.Fatalf("Expected upsert to succeed, got %v", err)
	}
	second, _, err := st.Upsert(ctx, mergedFixture(), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Expected rerun to succeed, got %v", err)
	}
	if !reflect.DeepEqual(first.Merged, second.Merged) {
		t.Errorf("Expected identical stored state after rerun:\n%+v\n%+v", first.Merged, second.Merged)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("Expected UpdatedAt unchanged on a no-op rerun, got %v vs %v",
			first.UpdatedAt, second.UpdatedAt)
	}
}

func TestUpsert_RejectsNamelessEntity(t *testing.T) {
	st := openTestStore(t)
	if _, _, err := st.Upsert(context.Background(), model.MergedEntity{}, time.Now()); err == nil {
		t.Error("Expected error for entity with no sluggable name")
	}
}

func TestGetAndList(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := st.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	a := mergedFixture()
	b := mergedFixture()
	b.Name = "Leith Padel Arena"
	if _, _, err := st.Upsert(ctx, a, now); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if _, _, err := st.Upsert(ctx, b, now); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	got, err := st.Get(ctx, "meadows-padel-courts-edinburgh")
	if err != nil {
		t.Fatalf("Expected entity, got %v", err)
	}
	if got.Merged.Phone != "+44 131 555 0000" {
		t.Errorf("Unexpected entity payload: %+v", got.Merged)
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("Expected listing, got %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(all))
	}
	if all[0].Slug > all[1].Slug {
		t.Errorf("Expected slug order, got %q then %q", all[0].Slug, all[1].Slug)
	}
}

func TestArtifacts_WriteOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a := model.NewRawArtifact("courtfinder", "padel", []byte(`{"ok":true}`), time.Now())
	if err := st.SaveArtifact(ctx, a); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}
	// Identical content: a no-op, not an error.
	if err := st.SaveArtifact(ctx, a); err != nil {
		t.Fatalf("Expected duplicate save to be a no-op, got %v", err)
	}

	has, err := st.HasArtifact(ctx, "courtfinder", "padel", a.ContentHash)
	if err != nil {
		t.Fatalf("Expected lookup to succeed, got %v", err)
	}
	if !has {
		t.Error("Expected artifact to be present")
	}
	has, _ = st.HasArtifact(ctx, "courtfinder", "padel", "otherhash")
	if has {
		t.Error("Expected different content hash to be absent")
	}
}
