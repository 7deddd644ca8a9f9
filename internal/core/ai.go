package core

import (
	"context"
	"errors"
	"fmt"
)

// EmbeddingProvider turns texts into fixed-dimension vectors, one per input
// in the same order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Embedding provider failure classes. Wrapped by provider implementations so
// the pipeline can pick a retry policy without knowing the vendor.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidInput = errors.New("invalid input")
)

// EmbedOutcome is the per-chunk result of an embedding pass. Exactly one of
// Vector and Err is set.
type EmbedOutcome struct {
	Vector []float32
	Err    error
}

// DimensionError reports a vector whose size does not match the configured
// model, which would corrupt the repository's embedding space.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}
