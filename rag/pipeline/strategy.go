package pipeline

import "github.com/tessera-ai/tessera/rag/retrieval"

// Strategy derives the tuning for one query before the pipeline runs. It is
// the hook for per-query policy, deciding things like skipping HyDE for
// keyword-looking queries without touching the state machine itself.
type Strategy func(query string) Config

// IdentityStrategy applies the same base config to every query.
func IdentityStrategy(base Config) Strategy {
	return func(string) Config {
		return base
	}
}

// KeywordStrategy disables HyDE for short keyword-style queries, where a
// hypothetical answer passage adds latency without improving recall. Queries
// with fewer than minTokens tokens run retrieval-only expansion.
func KeywordStrategy(base Config, minTokens int) Strategy {
	if minTokens <= 0 {
		minTokens = 4
	}
	return func(query string) Config {
		c := base
		if len(retrieval.Tokenize(query)) < minTokens {
			c.HyDEEnabled = false
		}
		return c
	}
}
