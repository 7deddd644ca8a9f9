package core

import (
	"context"
	"errors"
	"io"
)

// ErrNeedsOCR signals that a blob has no usable text layer and must go
// through the OCR fallback.
var ErrNeedsOCR = errors.New("needs ocr")

// ErrQuotaExceeded signals that the OCR free-tier page budget for the current
// window is exhausted. Distinct from a permanent extraction failure so the
// caller can tell "try again next window" from "this document cannot be
// processed".
var ErrQuotaExceeded = errors.New("ocr quota exceeded")

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
	GetFile(ctx context.Context, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor pulls raw text out of a stored blob. Returns ErrNeedsOCR when
// the declared content type is a PDF/image format and the text layer is
// missing or below the configured minimum length.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// OcrState is the provider-side state reported for a submitted OCR job.
type OcrState int

const (
	OcrPending OcrState = iota
	OcrDone
	OcrError
)

// OcrResult carries the outcome of one poll.
type OcrResult struct {
	State  OcrState
	Text   string
	Pages  int
	Reason string
}

// OcrClient submits blobs for OCR and reports job progress.
type OcrClient interface {
	StartJob(ctx context.Context, blobKey string) (jobID string, err error)
	JobStatus(ctx context.Context, jobID string) (OcrResult, error)
}

// QuotaStore is the shared page counter for the OCR free-tier window.
// Consume is a single atomic read-and-increment across all workers.
type QuotaStore interface {
	Consume(ctx context.Context, pages int) (used int64, err error)
	Used(ctx context.Context) (int64, error)
	Limit() int64
}
