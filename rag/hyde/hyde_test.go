package hyde

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type generatorFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestExpandParsesJSONArray(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return `["Cats are mammals because they nurse their young.", "Feline biology places cats among mammals."]`, nil
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(1))

	docs, err := e.Expand(context.Background(), "are cats mammals?", 2)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(docs))
	}
	if docs[0] != "Cats are mammals because they nurse their young." {
		t.Fatalf("unexpected first passage: %q", docs[0])
	}
}

func TestExpandParsesFencedJSON(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "```json\n[\"one passage\"]\n```", nil
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(1))

	docs, err := e.Expand(context.Background(), "question", 1)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(docs) != 1 || docs[0] != "one passage" {
		t.Fatalf("unexpected passages: %v", docs)
	}
}

func TestExpandFallsBackToNumberedList(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "1. First hypothetical passage.\n2. Second hypothetical passage.\n3. Third passage that exceeds n.", nil
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(1))

	docs, err := e.Expand(context.Background(), "question", 2)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(docs))
	}
	if docs[0] != "First hypothetical passage." {
		t.Fatalf("unexpected first passage: %q", docs[0])
	}
}

func TestExpandKeepsLeadingNumbersInContent(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "42 percent of adults own cats.\n7 in 10 dogs are mammals.", nil
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(1))

	docs, err := e.Expand(context.Background(), "question", 2)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(docs))
	}
	if docs[0] != "42 percent of adults own cats." {
		t.Fatalf("leading number stripped from content: %q", docs[0])
	}
	if docs[1] != "7 in 10 dogs are mammals." {
		t.Fatalf("leading number stripped from content: %q", docs[1])
	}
}

func TestExpandDegradesOnFailure(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", errors.New("rate limited")
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(1))

	docs, err := e.Expand(context.Background(), "question", 3)
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected zero passages, got %d", len(docs))
	}
}

func TestExpandPropagatesCancellation(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(1), WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Expand(ctx, "question", 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExpandSkipsWhenDisabled(t *testing.T) {
	called := false
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		called = true
		return "[]", nil
	})
	e := NewExpander(gen, WithLogger(discardLogger()))

	docs, err := e.Expand(context.Background(), "question", 0)
	if err != nil || docs != nil {
		t.Fatalf("expected nil result for n=0, got %v, %v", docs, err)
	}
	if called {
		t.Fatal("expected no generator call for n=0")
	}
}

func TestExpandRetriesTransientFailure(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return `["recovered passage"]`, nil
	})
	e := NewExpander(gen, WithLogger(discardLogger()), WithAttempts(2))

	docs, err := e.Expand(context.Background(), "question", 1)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(docs) != 1 || calls != 2 {
		t.Fatalf("expected retry to recover, docs=%v calls=%d", docs, calls)
	}
}
