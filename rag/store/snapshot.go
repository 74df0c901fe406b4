package store

import (
	"iter"

	"github.com/tessera-ai/tessera/rag"
)

// snapshot is an immutable chunk set shared by the store backends. Once
// published it is never modified, so readers need no locking.
type snapshot struct {
	chunks []rag.Chunk
	byID   map[string]int
	dims   int
}

func newSnapshot(chunks []rag.Chunk, dims int) *snapshot {
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}
	return &snapshot{chunks: chunks, byID: byID, dims: dims}
}

func (s *snapshot) Len() int  { return len(s.chunks) }
func (s *snapshot) Dims() int { return s.dims }

func (s *snapshot) Get(id string) (rag.Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return rag.Chunk{}, false
	}
	return s.chunks[i], true
}

func (s *snapshot) All() iter.Seq[rag.Chunk] {
	return func(yield func(rag.Chunk) bool) {
		for _, c := range s.chunks {
			if !yield(c) {
				return
			}
		}
	}
}
