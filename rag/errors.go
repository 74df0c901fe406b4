package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a chunk ID is not present in the store.
	ErrNotFound = errors.New("chunk not found")
	// ErrEmptyStore is returned by retrievers when no chunks are indexed.
	ErrEmptyStore = errors.New("no chunks indexed")
)

// DimensionError rejects an ingestion batch whose embedding length differs
// from the store's established dimensionality.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// GenerateError wraps a failed or exhausted generative call. Components treat
// it as a degradation signal rather than a fatal pipeline error.
type GenerateError struct {
	Op  string
	Err error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Op, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// PipelineError carries the stage at which a retrieval request failed.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
