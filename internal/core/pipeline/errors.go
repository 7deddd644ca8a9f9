package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/temiloluwa-oss/arkiva/internal/core"
)

// Class is the retry policy bucket for a collaborator failure.
type Class int

const (
	// ClassTransient errors (timeouts, throttling) are retried with backoff
	// at the same state, up to the configured attempt budget.
	ClassTransient Class = iota
	// ClassPermanent errors (unsupported format, unextractable content) move
	// the item to failed with no retry.
	ClassPermanent
	// ClassQuota is terminal like ClassPermanent but carries a distinct
	// user-facing reason: the document is fine, the OCR window is spent.
	ClassQuota
)

// inputError forces permanent classification for a failure the pipeline
// itself diagnosed.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

// Permanent builds an error that will never be retried.
func Permanent(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// PartialError reports an embedding pass where some chunks succeeded and some
// did not. The item fails, but stored chunks and completed embeddings are
// kept and stay searchable by keyword.
type PartialError struct {
	Embedded int
	Total    int
	Cause    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("embedded %d of %d chunks: %v", e.Embedded, e.Total, e.Cause)
}

func (e *PartialError) Unwrap() error { return e.Cause }

// Classify maps a collaborator error to its retry class. Unknown errors are
// treated as transient: the attempt budget bounds them anyway, and retrying
// an unknown failure is cheaper than wrongly discarding a document.
func Classify(err error) Class {
	var (
		input   *inputError
		partial *PartialError
		dim     *core.DimensionError
	)
	switch {
	case errors.Is(err, core.ErrQuotaExceeded):
		return ClassQuota
	case errors.Is(err, core.ErrInvalidInput),
		errors.As(err, &input),
		errors.As(err, &partial),
		errors.As(err, &dim):
		return ClassPermanent
	case errors.Is(err, core.ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}
	return ClassTransient
}
