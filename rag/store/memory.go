package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/rag"
)

// MemoryStore keeps chunks in memory behind a copy-on-write snapshot.
// Writers rebuild the snapshot under an exclusive lock and swap the pointer,
// so retrieval reads taken before a write keep seeing the old contents.
type MemoryStore struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.snap.Store(newSnapshot(nil, 0))
	return s
}

// Add stores or updates the provided chunks. The first batch establishes the
// embedding dimensionality; any chunk deviating from it rejects the whole
// batch with a DimensionError.
func (s *MemoryStore) Add(_ context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	dims := cur.dims
	for i := range chunks {
		if dims == 0 {
			dims = len(chunks[i].Embedding)
		}
		if len(chunks[i].Embedding) == 0 || len(chunks[i].Embedding) != dims {
			return &rag.DimensionError{Want: dims, Got: len(chunks[i].Embedding)}
		}
	}

	next := make([]rag.Chunk, len(cur.chunks), len(cur.chunks)+len(chunks))
	copy(next, cur.chunks)
	index := make(map[string]int, len(next))
	for i, c := range next {
		index[c.ID] = i
	}

	for _, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = uuid.NewString()
		}
		if chunk.Metadata == nil {
			chunk.Metadata = make(map[string]any)
		}
		if i, ok := index[chunk.ID]; ok {
			next[i] = chunk
		} else {
			index[chunk.ID] = len(next)
			next = append(next, chunk)
		}
	}

	s.snap.Store(newSnapshot(next, dims))
	return nil
}

// Get returns the chunk with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (rag.Chunk, error) {
	chunk, ok := s.snap.Load().Get(id)
	if !ok {
		return rag.Chunk{}, fmt.Errorf("%q: %w", id, rag.ErrNotFound)
	}
	return chunk, nil
}

// DeleteDocument removes every chunk of the document and reports the count.
func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := make([]rag.Chunk, 0, len(cur.chunks))
	removed := 0
	for _, c := range cur.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		next = append(next, c)
	}
	if removed == 0 {
		return 0, nil
	}

	dims := cur.dims
	if len(next) == 0 {
		dims = 0
	}
	s.snap.Store(newSnapshot(next, dims))
	return removed, nil
}

// Snapshot returns the current immutable view of the store.
func (s *MemoryStore) Snapshot(_ context.Context) (rag.Snapshot, error) {
	return s.snap.Load(), nil
}

// Documents lists the distinct document IDs currently held, sorted.
func (s *MemoryStore) Documents() []string {
	cur := s.snap.Load()
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range cur.chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	sort.Strings(ids)
	return ids
}
