package store

import (
	"context"
	"errors"
	"testing"

	"github.com/tessera-ai/tessera/rag"
)

func TestMemoryStoreAddGet(t *testing.T) {
	s := NewMemoryStore()

	chunks := []rag.Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Content: "first", Embedding: []float64{1, 0}},
		{ID: "b", DocumentID: "doc-1", Ordinal: 1, Content: "second", Embedding: []float64{0, 1}},
	}
	if err := s.Add(context.Background(), chunks); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	got, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Content != "first" {
		t.Fatalf("expected content %q, got %q", "first", got.Content)
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, rag.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreAssignsIDs(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Add(context.Background(), []rag.Chunk{
		{DocumentID: "doc-1", Content: "anonymous", Embedding: []float64{1}},
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	snap, _ := s.Snapshot(context.Background())
	for chunk := range snap.All() {
		if chunk.ID == "" {
			t.Fatal("expected generated chunk ID")
		}
	}
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Add(context.Background(), []rag.Chunk{
		{ID: "a", DocumentID: "doc-1", Embedding: []float64{1, 0, 0}},
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	err := s.Add(context.Background(), []rag.Chunk{
		{ID: "b", DocumentID: "doc-1", Embedding: []float64{1, 0}},
	})
	var dim *rag.DimensionError
	if !errors.As(err, &dim) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if dim.Want != 3 || dim.Got != 2 {
		t.Fatalf("unexpected dimensions: want=%d got=%d", dim.Want, dim.Got)
	}

	// The offending batch must not be partially applied.
	if _, err := s.Get(context.Background(), "b"); !errors.Is(err, rag.ErrNotFound) {
		t.Fatalf("expected rejected chunk to be absent, got %v", err)
	}
}

func TestMemoryStoreDeleteDocument(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Add(context.Background(), []rag.Chunk{
		{ID: "a", DocumentID: "doc-1", Embedding: []float64{1, 0}},
		{ID: "b", DocumentID: "doc-1", Embedding: []float64{0, 1}},
		{ID: "c", DocumentID: "doc-2", Embedding: []float64{1, 1}},
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	removed, err := s.DeleteDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	snap, _ := s.Snapshot(context.Background())
	if snap.Len() != 1 {
		t.Fatalf("expected 1 chunk left, got %d", snap.Len())
	}

	removed, err = s.DeleteDocument(context.Background(), "doc-1")
	if err != nil || removed != 0 {
		t.Fatalf("expected no-op delete, got %d, %v", removed, err)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Add(context.Background(), []rag.Chunk{
		{ID: "a", DocumentID: "doc-1", Embedding: []float64{1, 0}},
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	snap, _ := s.Snapshot(context.Background())

	if err := s.Add(context.Background(), []rag.Chunk{
		{ID: "b", DocumentID: "doc-2", Embedding: []float64{0, 1}},
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if _, err := s.DeleteDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// The earlier snapshot still sees the pre-write contents.
	if snap.Len() != 1 {
		t.Fatalf("expected snapshot to keep 1 chunk, got %d", snap.Len())
	}
	if _, ok := snap.Get("a"); !ok {
		t.Fatal("expected deleted chunk to stay visible in old snapshot")
	}
	if _, ok := snap.Get("b"); ok {
		t.Fatal("expected new chunk to be invisible in old snapshot")
	}

	fresh, _ := s.Snapshot(context.Background())
	if fresh.Len() != 1 {
		t.Fatalf("expected fresh snapshot with 1 chunk, got %d", fresh.Len())
	}
	if _, ok := fresh.Get("b"); !ok {
		t.Fatal("expected new chunk in fresh snapshot")
	}
}

func TestMemoryStoreEmptyAfterDeleteResetsDims(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Add(context.Background(), []rag.Chunk{
		{ID: "a", DocumentID: "doc-1", Embedding: []float64{1, 0, 0}},
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if _, err := s.DeleteDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// A fully drained store accepts a new dimensionality.
	if err := s.Add(context.Background(), []rag.Chunk{
		{ID: "b", DocumentID: "doc-2", Embedding: []float64{1, 0}},
	}); err != nil {
		t.Fatalf("expected dims reset after drain, got %v", err)
	}
}
