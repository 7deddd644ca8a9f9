package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Repository is the owning scope for ingested items. It pins the embedding
// space (model + dimension) so vectors from different models never mix.
type Repository struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	EmbedModel string    `db:"embed_model" json:"embed_model"`
	EmbedDim   int       `db:"embed_dim" json:"embed_dim"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ItemKind is the closed set of ingestable source kinds.
type ItemKind string

const (
	KindDocument ItemKind = "document"
	KindURL      ItemKind = "url"
	KindText     ItemKind = "text"
)

func (k ItemKind) Valid() bool {
	switch k {
	case KindDocument, KindURL, KindText:
		return true
	}
	return false
}

// ItemStatus is the processing state of a repository item. Transitions are
// driven exclusively by the ingestion pipeline.
type ItemStatus string

const (
	StatusPending     ItemStatus = "pending"
	StatusExtracting  ItemStatus = "extracting"
	StatusAwaitingOCR ItemStatus = "awaiting_ocr"
	StatusChunking    ItemStatus = "chunking"
	StatusEmbedding   ItemStatus = "embedding"
	StatusEmbedded    ItemStatus = "embedded"
	StatusCompleted   ItemStatus = "completed"
	StatusFailed      ItemStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ItemStatus) Terminal() bool {
	switch s {
	case StatusEmbedded, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// transitions is the full state machine. Failure is reachable from any
// non-terminal state and is therefore not listed per-state.
var transitions = map[ItemStatus][]ItemStatus{
	StatusPending:     {StatusExtracting, StatusChunking},
	StatusExtracting:  {StatusChunking, StatusAwaitingOCR},
	StatusAwaitingOCR: {StatusChunking},
	StatusChunking:    {StatusEmbedding, StatusCompleted},
	StatusEmbedding:   {StatusEmbedded},
}

// CanTransition reports whether moving from s to next is legal.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// RepositoryItem is one ingested unit: an uploaded document, a URL, or
// inline text. Source holds the blob key, the URL, or the raw text,
// depending on Kind.
type RepositoryItem struct {
	ID            string            `db:"id" json:"id"`
	RepositoryID  string            `db:"repository_id" json:"repository_id"`
	Kind          ItemKind          `db:"kind" json:"kind"`
	Name          string            `db:"name" json:"name"`
	Source        string            `db:"source" json:"source"`
	Metadata      map[string]string `db:"metadata" json:"metadata,omitempty"`
	Status        ItemStatus        `db:"status" json:"status"`
	Error         string            `db:"error" json:"error,omitempty"`
	AttemptCount  int               `db:"attempt_count" json:"attempt_count"`
	ExtractedText string            `db:"extracted_text" json:"-"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time        `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Deleted reports whether the item has been soft-deleted.
func (it *RepositoryItem) Deleted() bool {
	return it.DeletedAt != nil
}

// Chunk is one retrievable unit of content derived from an item. Embedding
// stays nil until the embedding step attaches a vector.
type Chunk struct {
	ID         string            `db:"id" json:"id"`
	ItemID     string            `db:"item_id" json:"item_id"`
	Ordinal    int               `db:"ordinal" json:"ordinal"`
	Content    string            `db:"content" json:"content"`
	Embedding  []float32         `db:"embedding" json:"-"`
	TokenCount int               `db:"token_count" json:"token_count"`
	Metadata   map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// OcrJobStatus tracks the provider-side state of an OCR submission.
type OcrJobStatus string

const (
	OcrSubmitted OcrJobStatus = "submitted"
	OcrSucceeded OcrJobStatus = "succeeded"
	OcrFailed    OcrJobStatus = "failed"
)

// OcrJob records one outstanding OCR submission for quota accounting
// and crash recovery.
type OcrJob struct {
	ID            string       `db:"id" json:"id"`
	ItemID        string       `db:"item_id" json:"item_id"`
	ProviderJobID string       `db:"provider_job_id" json:"provider_job_id"`
	Status        OcrJobStatus `db:"status" json:"status"`
	PageCount     int          `db:"page_count" json:"page_count"`
	SubmittedAt   time.Time    `db:"submitted_at" json:"submitted_at"`
}
