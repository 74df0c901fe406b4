// Package anthropic adapts the Anthropic Messages API to the pipeline's
// Generator interface.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tessera-ai/tessera/rag"
)

var _ rag.Generator = (*Generator)(nil)

const defaultModel = "claude-sonnet-4-20250514"

// Generator issues single-turn completion calls. The zero temperature keeps
// rerank scoring and query expansion as deterministic as the API allows.
type Generator struct {
	client      anthropic.Client
	model       anthropic.Model
	temperature float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(g *Generator) {
		g.model = anthropic.Model(model)
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithClient replaces the default client, e.g. to inject request options.
func WithClient(client anthropic.Client) Option {
	return func(g *Generator) {
		g.client = client
	}
}

// NewGenerator creates a generator. Without WithClient the API key is read
// from ANTHROPIC_API_KEY.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		client: anthropic.NewClient(),
		model:  anthropic.Model(defaultModel),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGeneratorWithKey creates a generator with an explicit API key.
func NewGeneratorWithKey(apiKey string, opts ...Option) *Generator {
	g := NewGenerator(opts...)
	g.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	return g
}

// Generate sends the prompt as a single user message and returns the
// concatenated text content of the reply.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       g.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(g.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
