// Package rerank reorders retrieval candidates with LLM relevance scoring
// against the original user query.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-ai/tessera/rag"
)

const (
	// Candidates are capped to keep the batched prompt within budget.
	maxCandidateChars = 500
	// Scores live on a 0-10 scale; failed candidates get the floor.
	minScore = 0
	maxScore = 10
)

var batchTemplate = rag.MustPromptTemplate("rerank-batch", `Given the query: "{{.Query}}"

Rate the relevance of each document passage to this query on a scale of 0-10, where:
- 10: Highly relevant, directly answers the query
- 5: Somewhat relevant, contains related information
- 0: Not relevant

Documents:
{{range .Documents}}
{{.N}}. {{.Text}}
{{end}}
Respond only with a JSON array of {{len .Documents}} numbers, e.g. [8, 3, 9].`)

var singleTemplate = rag.MustPromptTemplate("rerank-single", `Given the query: "{{.Query}}"

Rate the relevance of the following document passage to this query on a scale of 0-10.

Passage:
{{.Document}}

Respond only with JSON of the form {"score": <number>}.`)

// ratingsSchema validates the batched response shape before it is trusted.
var ratingsSchema = mustResolve(&jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type:    "number",
		Minimum: ptr(float64(minScore)),
		Maximum: ptr(float64(maxScore)),
	},
})

// LLMReranker scores candidates with a generative call. It first tries one
// batched ratings prompt; if the batch fails or returns an unusable payload
// it falls back to scoring candidates independently under a concurrency
// bound, assigning the floor score to individual failures.
type LLMReranker struct {
	gen         rag.Generator
	timeout     time.Duration
	maxTokens   int
	attempts    int
	concurrency int
	logger      *slog.Logger
}

// Option configures an LLMReranker.
type Option func(*LLMReranker)

// WithTimeout bounds each scoring call.
func WithTimeout(d time.Duration) Option {
	return func(r *LLMReranker) {
		r.timeout = d
	}
}

// WithMaxTokens sets the generation budget per call.
func WithMaxTokens(n int) Option {
	return func(r *LLMReranker) {
		r.maxTokens = n
	}
}

// WithAttempts sets the retry budget for transient scoring failures.
func WithAttempts(n int) Option {
	return func(r *LLMReranker) {
		r.attempts = n
	}
}

// WithConcurrency bounds concurrent per-candidate scoring calls.
func WithConcurrency(n int) Option {
	return func(r *LLMReranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the reranker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *LLMReranker) {
		r.logger = logger
	}
}

// NewLLMReranker creates a reranker around the generator.
func NewLLMReranker(gen rag.Generator, opts ...Option) *LLMReranker {
	r := &LLMReranker{
		gen:         gen,
		timeout:     30 * time.Second,
		maxTokens:   200,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank scores the candidates against the query and returns at most topK
// results by descending relevance, ties broken by chunk ordinal then ID.
// It returns a GenerateError only when every scoring path failed; the caller
// decides whether to degrade to the pre-rerank order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []rag.Chunk, topK int) ([]rag.RankedResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if r.gen == nil {
		return nil, &rag.GenerateError{Op: "rerank", Err: fmt.Errorf("no generator configured")}
	}

	scores, err := r.scoreBatch(ctx, query, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("batched rerank failed, scoring candidates individually", "error", err)
		scores, err = r.scoreEach(ctx, query, candidates)
		if err != nil {
			return nil, err
		}
	}

	results := make([]rag.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = rag.RankedResult{ChunkID: c.ID, Score: scores[i], Stage: rag.StageReranked}
	}
	ordinals := make(map[string]int, len(candidates))
	for _, c := range candidates {
		ordinals[c.ID] = c.Ordinal
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		oi, oj := ordinals[results[i].ChunkID], ordinals[results[j].ChunkID]
		if oi != oj {
			return oi < oj
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results[:topK], nil
}

func (r *LLMReranker) scoreBatch(ctx context.Context, query string, candidates []rag.Chunk) ([]float64, error) {
	type numberedDoc struct {
		N    int
		Text string
	}
	docs := make([]numberedDoc, len(candidates))
	for i, c := range candidates {
		docs[i] = numberedDoc{N: i + 1, Text: clip(c.Content, maxCandidateChars)}
	}
	prompt, err := batchTemplate.Render(map[string]any{"Query": query, "Documents": docs})
	if err != nil {
		return nil, err
	}

	out, err := r.generate(ctx, "rerank", prompt)
	if err != nil {
		return nil, err
	}

	start, end := strings.Index(out, "["), strings.LastIndex(out, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no ratings array in response")
	}
	raw := out[start : end+1]

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("invalid ratings payload: %w", err)
	}
	if err := ratingsSchema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("ratings failed schema validation: %w", err)
	}

	items := gjson.Parse(raw).Array()
	if len(items) != len(candidates) {
		return nil, fmt.Errorf("expected %d ratings, got %d", len(candidates), len(items))
	}
	scores := make([]float64, len(items))
	for i, item := range items {
		scores[i] = clamp(item.Float())
	}
	return scores, nil
}

func (r *LLMReranker) scoreEach(ctx context.Context, query string, candidates []rag.Chunk) ([]float64, error) {
	scores := make([]float64, len(candidates))
	failures := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			prompt, err := singleTemplate.Render(map[string]any{
				"Query":    query,
				"Document": clip(c.Content, maxCandidateChars),
			})
			if err != nil {
				return err
			}
			out, err := r.generate(gctx, "rerank-candidate", prompt)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Isolated failure: this candidate gets the floor score.
				r.logger.Warn("candidate scoring failed", "chunk", c.ID, "error", err)
				scores[i] = minScore
				failures[i] = true
				return nil
			}
			scores[i] = clamp(gjson.Get(out, "score").Float())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	if failed == len(candidates) {
		return nil, &rag.GenerateError{Op: "rerank", Err: fmt.Errorf("all %d candidate scores failed", failed)}
	}
	return scores, nil
}

func (r *LLMReranker) generate(ctx context.Context, op, prompt string) (string, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return rag.Generate(callCtx, r.gen, op, prompt, r.maxTokens, r.attempts)
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func clamp(score float64) float64 {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

func ptr[T any](v T) *T { return &v }

func mustResolve(schema *jsonschema.Schema) *jsonschema.Resolved {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return resolved
}
