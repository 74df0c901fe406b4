// Package hyde implements query optimization via Hypothetical Document
// Embeddings: the generator writes plausible answer passages which the caller
// embeds and uses as additional retrieval queries.
package hyde

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/tessera-ai/tessera/rag"
)

var promptTemplate = rag.MustPromptTemplate("hyde", `Given the question: "{{.Query}}"

Write {{.N}} different hypothetical document passages that would perfectly answer this question. Each passage should be detailed and comprehensive.

Respond with a JSON array of {{.N}} strings, one passage per element, and nothing else.`)

// Expander generates hypothetical answer documents for a query. A failed or
// empty generation degrades to zero hypotheticals so the caller can fall back
// to the raw query vector; it never fails the request.
type Expander struct {
	gen       rag.Generator
	timeout   time.Duration
	maxTokens int
	attempts  int
	logger    *slog.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithTimeout bounds each generative call.
func WithTimeout(d time.Duration) Option {
	return func(e *Expander) {
		e.timeout = d
	}
}

// WithMaxTokens sets the generation budget per call.
func WithMaxTokens(n int) Option {
	return func(e *Expander) {
		e.maxTokens = n
	}
}

// WithAttempts sets the retry budget for transient generation failures.
func WithAttempts(n int) Option {
	return func(e *Expander) {
		e.attempts = n
	}
}

// WithLogger sets the expander logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) {
		e.logger = logger
	}
}

// NewExpander creates a HyDE expander around the generator.
func NewExpander(gen rag.Generator, opts ...Option) *Expander {
	e := &Expander{
		gen:       gen,
		timeout:   30 * time.Second,
		maxTokens: 800,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns up to n hypothetical document texts for the query.
func (e *Expander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if e.gen == nil || n <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	prompt, err := promptTemplate.Render(map[string]any{"Query": query, "N": n})
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := rag.Generate(callCtx, e.gen, "hyde", prompt, e.maxTokens, e.attempts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("hyde expansion degraded", "error", err)
		return nil, nil
	}

	passages := parsePassages(out, n)
	if len(passages) == 0 {
		e.logger.Warn("hyde expansion produced no passages")
	}
	return passages, nil
}

// parsePassages extracts up to n passages from the model output. A JSON array
// of strings is preferred; a numbered or bulleted list is accepted as a
// fallback for models that ignore the format instruction.
func parsePassages(text string, n int) []string {
	text = stripFences(text)

	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		if parsed := gjson.Parse(text[start : end+1]); parsed.IsArray() {
			var passages []string
			for _, item := range parsed.Array() {
				passage := strings.TrimSpace(item.String())
				if passage != "" {
					passages = append(passages, passage)
				}
				if len(passages) == n {
					break
				}
			}
			if len(passages) > 0 {
				return passages
			}
		}
	}

	var passages []string
	for _, line := range strings.Split(text, "\n") {
		line = stripListMarker(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		passages = append(passages, line)
		if len(passages) == n {
			break
		}
	}
	return passages
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// stripListMarker removes a leading "1."/"1)" or bullet marker. Digits not
// followed by a marker are content ("42 percent of...") and stay intact.
func stripListMarker(line string) string {
	rest := strings.TrimLeftFunc(line, unicode.IsDigit)
	if rest != line {
		if strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, ")") {
			return strings.TrimSpace(strings.TrimLeft(rest, ".)"))
		}
		return line
	}
	return strings.TrimSpace(strings.TrimLeft(line, "-*"))
}
