package core

import (
	"context"
	"errors"
	"time"

	"github.com/temiloluwa-oss/arkiva/internal/models"
)

// ErrNotFound is returned by lookups for rows that do not exist or are
// soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrGone is returned by writes whose target item was soft-deleted while the
// write was in flight. The pipeline treats it as a silent stop, never as a
// reason to resurrect the item.
var ErrGone = errors.New("item deleted")

// KeywordHit is one lexical match with its normalized rank and the item
// context needed for fusion and tie-breaking.
type KeywordHit struct {
	Chunk         models.Chunk
	ItemName      string
	ItemCreatedAt time.Time
	Rank          float64
}

// SemanticHit is one vector match. Distance is cosine distance in [0,2].
type SemanticHit struct {
	Chunk         models.Chunk
	ItemName      string
	ItemCreatedAt time.Time
	Distance      float64
}

// DbClient defines all persistence operations the service needs. It abstracts
// Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateRepository(ctx context.Context, repo *models.Repository) error
	GetRepositoryByID(ctx context.Context, id string) (*models.Repository, error)
	ListRepositoriesByUser(ctx context.Context, userID string) ([]models.Repository, error)

	CreateItem(ctx context.Context, item *models.RepositoryItem) error
	GetItemByID(ctx context.Context, id string) (*models.RepositoryItem, error)
	ListItemsByRepository(ctx context.Context, repositoryID string) ([]models.RepositoryItem, error)
	// ListUnfinishedItems returns every live item not in a terminal status,
	// oldest first. Used to resume work after a restart.
	ListUnfinishedItems(ctx context.Context) ([]models.RepositoryItem, error)
	SoftDeleteItem(ctx context.Context, id string) error

	// TransitionItem applies a status-guarded conditional update: the new
	// status (and optional error message) is written only if the persisted
	// status still equals from. Returns false when the guard did not match.
	TransitionItem(ctx context.Context, id string, from, to models.ItemStatus, errMsg string) (bool, error)
	// SetExtractedText stages extracted content on the item so a restart can
	// resume from chunking without redoing extraction or OCR.
	SetExtractedText(ctx context.Context, id, text string) error
	// BumpItemAttempt increments the attempt counter and returns the new value.
	BumpItemAttempt(ctx context.Context, id string) (int, error)
	// ResetItemForReingestion moves a terminal item back to pending with a
	// clean error, attempt counter and staged text. Returns false when the
	// item is not in a terminal state or is soft-deleted; in-flight items
	// cannot be re-ingested.
	ResetItemForReingestion(ctx context.Context, id string) (bool, error)

	// ReplaceChunks atomically swaps the full chunk set for an item. Fails
	// with ErrGone if the item was soft-deleted.
	ReplaceChunks(ctx context.Context, itemID string, chunks []models.Chunk) error
	GetChunksByItem(ctx context.Context, itemID string) ([]models.Chunk, error)
	// AttachEmbedding sets a chunk's vector. Fails with ErrGone if the owning
	// item was soft-deleted.
	AttachEmbedding(ctx context.Context, chunkID string, embedding []float32) error

	CreateOcrJob(ctx context.Context, job *models.OcrJob) error
	UpdateOcrJob(ctx context.Context, id string, status models.OcrJobStatus, pageCount int) error
	GetOcrJobByItem(ctx context.Context, itemID string) (*models.OcrJob, error)

	KeywordSearch(ctx context.Context, repositoryID, query string, limit int) ([]KeywordHit, error)
	SemanticSearch(ctx context.Context, repositoryID string, queryVec []float32, limit int) ([]SemanticHit, error)

	Close() error
}
