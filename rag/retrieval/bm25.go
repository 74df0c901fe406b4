package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/tessera-ai/tessera/rag"
)

// BM25 parameters: k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

type bm25Doc struct {
	id    string
	terms map[string]float64
	len   float64
}

// BM25Index scores lexical relevance between a query and the snapshot's
// chunks. Like DenseIndex it is immutable once built.
type BM25Index struct {
	docs      []bm25Doc
	idf       map[string]float64
	avgDocLen float64
}

// NewBM25Index builds the sparse index over the snapshot. A chunk's stored
// term weights are used when present; otherwise its content is tokenized with
// the shared Tokenize policy.
func NewBM25Index(snap rag.Snapshot) *BM25Index {
	idx := &BM25Index{idf: make(map[string]float64)}

	docFreq := make(map[string]int)
	var totalLen float64
	for chunk := range snap.All() {
		terms := chunk.Terms
		if len(terms) == 0 {
			terms = TermWeights(chunk.Content)
		}
		var docLen float64
		for term, count := range terms {
			docLen += count
			docFreq[term]++
		}
		totalLen += docLen
		idx.docs = append(idx.docs, bm25Doc{id: chunk.ID, terms: terms, len: docLen})
	}
	sort.Slice(idx.docs, func(i, j int) bool { return idx.docs[i].id < idx.docs[j].id })

	n := float64(len(idx.docs))
	if n > 0 {
		idx.avgDocLen = totalLen / n
	}
	for term, df := range docFreq {
		idx.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
	return idx
}

// Len reports the number of indexed chunks.
func (x *BM25Index) Len() int { return len(x.docs) }

// Search returns up to k chunks by descending BM25 score, ties broken by
// chunk ID. Chunks sharing no term with the query are omitted.
func (x *BM25Index) Search(ctx context.Context, query string, k int) ([]rag.RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x.docs) == 0 {
		return nil, rag.ErrEmptyStore
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var results []rag.RankedResult
	for _, doc := range x.docs {
		score := x.score(tokens, doc)
		if score == 0 {
			continue
		}
		results = append(results, rag.RankedResult{ChunkID: doc.id, Score: score, Stage: rag.StageSparse})
	}

	// docs are sorted by ID, so a stable sort keeps ID order on ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (x *BM25Index) score(queryTokens []string, doc bm25Doc) float64 {
	if doc.len == 0 || x.avgDocLen == 0 {
		return 0
	}
	var score float64
	for _, token := range queryTokens {
		tf := doc.terms[token]
		if tf == 0 {
			continue
		}
		idf := x.idf[token]
		if idf == 0 {
			idf = math.Log(float64(len(x.docs)) + 1.0)
		}
		numerator := tf * (bm25K1 + 1)
		denominator := tf + bm25K1*(1-bm25B+bm25B*doc.len/x.avgDocLen)
		score += idf * (numerator / denominator)
	}
	return score
}
