package pipeline

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tessera-ai/tessera/rag/retrieval"
)

// Config is the immutable per-request tuning surface. Orchestrators hold one
// by value; strategies derive adjusted copies per query.
type Config struct {
	// ChunkSize and ChunkOverlap feed the ingestion chunker.
	ChunkSize    int
	ChunkOverlap int
	// TopKRetrieval is how many fused candidates enter reranking.
	TopKRetrieval int
	// RerankTopK is how many results the pipeline finally returns.
	RerankTopK int
	// HyDEEnabled toggles query expansion.
	HyDEEnabled             bool
	HyDENumHypotheticalDocs int
	// HybridSearchAlpha weights dense rankings in fusion; sparse rankings
	// get the complement. Must be in [0, 1].
	HybridSearchAlpha float64
	// FusionK is the RRF smoothing constant.
	FusionK int
	// GenerationTimeout bounds each external generative call.
	GenerationTimeout time.Duration
	// RerankConcurrency bounds concurrent per-candidate scoring calls.
	RerankConcurrency int
}

// DefaultConfig returns the tuning values used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		ChunkSize:               1000,
		ChunkOverlap:            200,
		TopKRetrieval:           20,
		RerankTopK:              5,
		HyDEEnabled:             true,
		HyDENumHypotheticalDocs: 3,
		HybridSearchAlpha:       0.7,
		FusionK:                 retrieval.DefaultFusionK,
		GenerationTimeout:       30 * time.Second,
		RerankConcurrency:       4,
	}
}

// normalized clamps out-of-range values back to usable defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.TopKRetrieval <= 0 {
		c.TopKRetrieval = d.TopKRetrieval
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = d.RerankTopK
	}
	if c.HyDENumHypotheticalDocs <= 0 {
		c.HyDENumHypotheticalDocs = d.HyDENumHypotheticalDocs
	}
	if c.HybridSearchAlpha < 0 || c.HybridSearchAlpha > 1 {
		c.HybridSearchAlpha = d.HybridSearchAlpha
	}
	if c.FusionK <= 0 {
		c.FusionK = d.FusionK
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = d.GenerationTimeout
	}
	if c.RerankConcurrency <= 0 {
		c.RerankConcurrency = d.RerankConcurrency
	}
	return c
}

// ConfigFromEnv builds a Config from the environment, loading a .env file
// first when one exists. Unset or malformed variables keep their defaults.
//
// Recognized keys: CHUNK_SIZE, CHUNK_OVERLAP, TOP_K_RETRIEVAL, RERANK_TOP_K,
// HYDE_ENABLED, HYDE_NUM_HYPOTHETICAL_DOCS, HYBRID_SEARCH_ALPHA,
// GENERATION_TIMEOUT, RERANK_CONCURRENCY.
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	c := DefaultConfig()
	c.ChunkSize = envInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.TopKRetrieval = envInt("TOP_K_RETRIEVAL", c.TopKRetrieval)
	c.RerankTopK = envInt("RERANK_TOP_K", c.RerankTopK)
	c.HyDEEnabled = envBool("HYDE_ENABLED", c.HyDEEnabled)
	c.HyDENumHypotheticalDocs = envInt("HYDE_NUM_HYPOTHETICAL_DOCS", c.HyDENumHypotheticalDocs)
	c.HybridSearchAlpha = envFloat("HYBRID_SEARCH_ALPHA", c.HybridSearchAlpha)
	c.GenerationTimeout = envDuration("GENERATION_TIMEOUT", c.GenerationTimeout)
	c.RerankConcurrency = envInt("RERANK_CONCURRENCY", c.RerankConcurrency)
	return c.normalized()
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
