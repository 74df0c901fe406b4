package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/tessera-ai/tessera/rag"
)

type generatorFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func candidates() []rag.Chunk {
	return []rag.Chunk{
		{ID: "a", Ordinal: 0, Content: "cats are mammals"},
		{ID: "b", Ordinal: 1, Content: "dogs are mammals"},
		{ID: "c", Ordinal: 2, Content: "stock market rose today"},
	}
}

func TestRerankBatchScoring(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "[9, 7, 1]", nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	results, err := r.Rerank(context.Background(), "mammals", candidates(), 2)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(results))
	}
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" {
		t.Fatalf("expected [a b], got [%s %s]", results[0].ChunkID, results[1].ChunkID)
	}
	if results[0].Score != 9 {
		t.Fatalf("expected score 9, got %.1f", results[0].Score)
	}
	for _, r := range results {
		if r.Stage != rag.StageReranked {
			t.Fatalf("expected reranked stage, got %s", r.Stage)
		}
	}
}

func TestRerankResultsAreSubsetOfCandidates(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "[5, 5, 5]", nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	cands := candidates()
	results, err := r.Rerank(context.Background(), "query", cands, 10)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	if len(results) > len(cands) {
		t.Fatalf("more results than candidates: %d", len(results))
	}
	known := map[string]bool{}
	for _, c := range cands {
		known[c.ID] = true
	}
	for _, res := range results {
		if !known[res.ChunkID] {
			t.Fatalf("result %s not in candidate set", res.ChunkID)
		}
	}
}

func TestRerankTieBreakByOrdinal(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "[5, 5, 5]", nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	results, err := r.Rerank(context.Background(), "query", candidates(), 3)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].ChunkID != want {
			t.Fatalf("expected ordinal tie-break order [a b c], got %v", results)
		}
	}
}

func TestRerankFallsBackToIndividualScoring(t *testing.T) {
	batchCalls := 0
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		if strings.Contains(prompt, "JSON array") {
			batchCalls++
			return "no scores here", nil
		}
		if strings.Contains(prompt, "cats") {
			return `{"score": 8}`, nil
		}
		return `{"score": 2}`, nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	results, err := r.Rerank(context.Background(), "cats", candidates(), 3)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	if batchCalls == 0 {
		t.Fatal("expected a batch attempt first")
	}
	if results[0].ChunkID != "a" || results[0].Score != 8 {
		t.Fatalf("expected a with score 8 first, got %s %.1f", results[0].ChunkID, results[0].Score)
	}
}

func TestRerankIsolatesCandidateFailures(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		if strings.Contains(prompt, "JSON array") {
			return "", errors.New("batch unavailable")
		}
		if strings.Contains(prompt, "dogs") {
			return "", errors.New("scoring unavailable")
		}
		return `{"score": 6}`, nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	results, err := r.Rerank(context.Background(), "query", candidates(), 3)
	if err != nil {
		t.Fatalf("expected partial-failure tolerance, got %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// The failed candidate sinks to the bottom with the floor score.
	if results[2].ChunkID != "b" || results[2].Score != 0 {
		t.Fatalf("expected b with floor score last, got %s %.1f", results[2].ChunkID, results[2].Score)
	}
}

func TestRerankAllFailuresReturnsGenerateError(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", errors.New("provider down")
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	_, err := r.Rerank(context.Background(), "query", candidates(), 3)
	var genErr *rag.GenerateError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerateError, got %v", err)
	}
}

func TestRerankRejectsWrongRatingCount(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		if strings.Contains(prompt, "JSON array") {
			return "[9, 7]", nil // one rating short
		}
		return `{"score": 4}`, nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	results, err := r.Rerank(context.Background(), "query", candidates(), 3)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	// Fallback path scored everything 4.
	for _, res := range results {
		if res.Score != 4 {
			t.Fatalf("expected fallback scores, got %v", results)
		}
	}
}

func TestRerankRejectsOutOfRangeRatings(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		if strings.Contains(prompt, "JSON array") {
			return "[42, 7, 1]", nil // violates the 0-10 schema
		}
		return `{"score": 3}`, nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	results, err := r.Rerank(context.Background(), "query", candidates(), 3)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	for _, res := range results {
		if res.Score != 3 {
			t.Fatalf("expected schema rejection to trigger fallback, got %v", results)
		}
	}
}

func TestRerankCancellation(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Rerank(ctx, "query", candidates(), 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRerankDeterministic(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "[3, 9, 3]", nil
	})
	r := NewLLMReranker(gen, WithLogger(discardLogger()), WithAttempts(1))

	var prev []rag.RankedResult
	for i := 0; i < 5; i++ {
		results, err := r.Rerank(context.Background(), "query", candidates(), 3)
		if err != nil {
			t.Fatalf("rerank failed: %v", err)
		}
		if prev != nil {
			for j := range results {
				if results[j] != prev[j] {
					t.Fatalf("non-deterministic order on run %d: %v vs %v", i, results, prev)
				}
			}
		}
		prev = results
	}
	if prev[0].ChunkID != "b" {
		t.Fatalf("expected b first, got %s", prev[0].ChunkID)
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := NewLLMReranker(generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", fmt.Errorf("should not be called")
	}), WithLogger(discardLogger()))

	results, err := r.Rerank(context.Background(), "query", nil, 3)
	if err != nil || results != nil {
		t.Fatalf("expected empty no-op, got %v, %v", results, err)
	}
}
