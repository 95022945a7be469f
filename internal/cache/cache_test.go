package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("Expected miss for unknown key")
	}
	if err := c.Set("k", []byte("payload"), 0); err != nil {
		t.Fatalf("Expected set to succeed, got %v", err)
	}
	val, found := c.Get("k")
	if !found || !bytes.Equal(val, []byte("payload")) {
		t.Errorf("Expected payload back, got %q found=%v", val, found)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Expected delete to succeed, got %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("Expected miss after delete")
	}
}

func TestDiskCache_PersistsAndExpires(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("artifact", []byte(`{"ok":true}`), 0); err != nil {
		t.Fatalf("Expected set to succeed, got %v", err)
	}
	val, found := c.Get("artifact")
	if !found || !bytes.Equal(val, []byte(`{"ok":true}`)) {
		t.Errorf("Expected payload back, got %q found=%v", val, found)
	}

	// An already-expired entry is removed on read.
	if err := c.Set("stale", []byte("old"), -time.Second); err != nil {
		t.Fatalf("Expected set to succeed, got %v", err)
	}
	if _, found := c.Get("stale"); found {
		t.Error("Expected expired entry to miss")
	}
	if _, found := c.Get("stale"); found {
		t.Error("Expected expired entry to stay gone")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Minute)
	c := &LayeredCache{memory: mem, disk: disk}

	// Seed disk only, as a fresh process would find it.
	if err := disk.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("seed disk: %v", err)
	}
	if _, found := mem.Get("k"); found {
		t.Fatal("Expected memory tier empty before first read")
	}

	val, found := c.Get("k")
	if !found || !bytes.Equal(val, []byte("v")) {
		t.Fatalf("Expected disk hit through the layered cache, got %q found=%v", val, found)
	}
	if _, found := mem.Get("k"); !found {
		t.Error("Expected disk hit to be promoted into memory")
	}
}

func TestLayeredCache_SetWritesBothTiers(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Minute)
	c := &LayeredCache{memory: mem, disk: disk}

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Expected set to succeed, got %v", err)
	}
	if _, found := mem.Get("k"); !found {
		t.Error("Expected value in the memory tier")
	}
	if _, found := disk.Get("k"); !found {
		t.Error("Expected value in the disk tier")
	}

	if err := c.Delete("k"); err != nil {
		t.Fatalf("Expected delete to succeed, got %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("Expected miss after delete")
	}
}

func TestArtifactKeys(t *testing.T) {
	if ArtifactKey("a", "q") == ArtifactKey("b", "q") {
		t.Error("Expected distinct keys per source")
	}
	if ArtifactKey("a", "q") != ArtifactKey("a", "q") {
		t.Error("Expected stable keys")
	}
	// The separator keeps ("ab","c") and ("a","bc") apart.
	if ArtifactKey("ab", "c") == ArtifactKey("a", "bc") {
		t.Error("Expected source/query boundary to matter")
	}
	if SeenKey("a", "q", "h1") == SeenKey("a", "q", "h2") {
		t.Error("Expected distinct seen keys per content hash")
	}
}
