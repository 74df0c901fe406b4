package rag

import (
	"context"
	"time"
)

const (
	defaultAttempts = 3
	initialBackoff  = 200 * time.Millisecond
)

// Generate calls the generator with bounded retries. Transient failures are
// retried with doubling backoff; cancellation cuts the retry loop short.
// The exhausted error is wrapped in a GenerateError tagged with op.
func Generate(ctx context.Context, gen Generator, op, prompt string, maxTokens, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	var lastErr error
	backoff := initialBackoff
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := gen.Generate(ctx, prompt, maxTokens)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", &GenerateError{Op: op, Err: lastErr}
}
