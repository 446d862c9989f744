package vectorindex

import (
	"path/filepath"
	"testing"

	"aigent/internal/memtier"
)

func TestPutAndTopKReturnsNearestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "vectors.db"), 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put("near", memtier.Semantic, []float32{1, 0, 0}); err != nil {
		t.Fatalf("put near: %v", err)
	}
	if err := store.Put("far", memtier.Episodic, []float32{0, 0, 1}); err != nil {
		t.Fatalf("put far: %v", err)
	}

	neighbors, err := store.TopK([]float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(neighbors) == 0 || neighbors[0].EntryID != "near" {
		t.Fatalf("expected 'near' to be the closest neighbor, got %+v", neighbors)
	}
}

func TestPutOverwritesPreviousEmbedding(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "vectors.db"), 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put("e1", memtier.Core, []float32{1, 0}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put("e1", memtier.Core, []float32{0, 1}); err != nil {
		t.Fatalf("re-put: %v", err)
	}

	neighbors, err := store.TopK([]float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].EntryID != "e1" {
		t.Fatalf("expected exactly one neighbor 'e1', got %+v", neighbors)
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "vectors.db"), 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put("gone", memtier.Procedural, []float32{1, 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Remove("gone"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	neighbors, err := store.TopK([]float32{1, 1}, 5)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	for _, n := range neighbors {
		if n.EntryID == "gone" {
			t.Fatal("expected removed entry to be absent from results")
		}
	}
}

func TestPutRejectsWrongDimensionality(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "vectors.db"), 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put("bad", memtier.Core, []float32{1, 0}); err == nil {
		t.Fatal("expected dimensionality mismatch to error")
	}
}
