package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/logger"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

// Enqueuer schedules freshly created items for background processing.
type Enqueuer interface {
	Enqueue(itemID string)
}

type ItemService struct {
	db      core.DbClient
	storage core.ObjectClient
	queue   Enqueuer
	log     *zap.Logger
}

func NewItemService(db core.DbClient, storage core.ObjectClient, queue Enqueuer) *ItemService {
	return &ItemService{db: db, storage: storage, queue: queue, log: logger.Named("items")}
}

// CreateDocument uploads the blob, records the item and schedules ingestion.
// The item's Source is the object key, not the public URL, so the bucket can
// move without rewriting rows.
func (s *ItemService) CreateDocument(ctx context.Context, repo *models.Repository, name, filename, contentType string, data []byte) (*models.RepositoryItem, error) {
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	itemID := uuid.NewString()
	key := objectKey(repo.UserID, repo.ID, itemID, filename)

	if _, err := s.storage.UploadFile(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}

	item := &models.RepositoryItem{
		ID:           itemID,
		RepositoryID: repo.ID,
		Kind:         models.KindDocument,
		Name:         displayName(name, filename),
		Source:       key,
		Metadata:     map[string]string{"filename": filename, "content_type": contentType},
		Status:       models.StatusPending,
	}
	if err := s.db.CreateItem(ctx, item); err != nil {
		// The row is the source of truth; an orphaned blob is just garbage
		// to collect, so clean it up best effort.
		if derr := s.storage.DeleteFile(ctx, key); derr != nil {
			s.log.Warn("orphaned blob left behind", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}

	s.queue.Enqueue(item.ID)
	return item, nil
}

// CreateURL records a url-kind item and schedules ingestion.
func (s *ItemService) CreateURL(ctx context.Context, repo *models.Repository, name, rawURL string) (*models.RepositoryItem, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("source must be an absolute http(s) url")
	}

	item := &models.RepositoryItem{
		ID:           uuid.NewString(),
		RepositoryID: repo.ID,
		Kind:         models.KindURL,
		Name:         displayName(name, u.Host+u.Path),
		Source:       u.String(),
		Status:       models.StatusPending,
	}
	if err := s.db.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	s.queue.Enqueue(item.ID)
	return item, nil
}

// CreateText records inline text. Text items skip extraction and embedding.
func (s *ItemService) CreateText(ctx context.Context, repo *models.Repository, name, text string) (*models.RepositoryItem, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text content is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("text items require a name")
	}

	item := &models.RepositoryItem{
		ID:           uuid.NewString(),
		RepositoryID: repo.ID,
		Kind:         models.KindText,
		Name:         strings.TrimSpace(name),
		Source:       text,
		Status:       models.StatusPending,
	}
	if err := s.db.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	s.queue.Enqueue(item.ID)
	return item, nil
}

// GetInRepository loads an item and checks it belongs to the given repository.
// Soft-deleted items are hidden here: the unfiltered load exists for the
// pipeline, which needs to see the tombstone to stop processing.
func (s *ItemService) GetInRepository(ctx context.Context, repoID, itemID string) (*models.RepositoryItem, error) {
	item, err := s.db.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.RepositoryID != repoID || item.Deleted() {
		return nil, core.ErrNotFound
	}
	return item, nil
}

// Reingest re-runs the pipeline for an item already in a terminal state.
// The chunker is deterministic, so identical content yields an identical
// chunk set; changed chunking parameters take effect on the next run.
func (s *ItemService) Reingest(ctx context.Context, repoID, itemID string) error {
	item, err := s.GetInRepository(ctx, repoID, itemID)
	if err != nil {
		return err
	}
	ok, err := s.db.ResetItemForReingestion(ctx, item.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("item is still being processed")
	}
	s.queue.Enqueue(item.ID)
	return nil
}

func (s *ItemService) ListByRepository(ctx context.Context, repoID string) ([]models.RepositoryItem, error) {
	return s.db.ListItemsByRepository(ctx, repoID)
}

// Delete soft-deletes the item so it disappears from listings and search
// immediately, then removes the backing blob. A blob cleanup failure never
// undoes the delete.
func (s *ItemService) Delete(ctx context.Context, repoID, itemID string) error {
	item, err := s.GetInRepository(ctx, repoID, itemID)
	if err != nil {
		return err
	}
	if err := s.db.SoftDeleteItem(ctx, item.ID); err != nil {
		return err
	}
	if item.Kind == models.KindDocument {
		if err := s.storage.DeleteFile(ctx, item.Source); err != nil && !errors.Is(err, core.ErrNotFound) {
			s.log.Warn("blob cleanup failed", zap.String("key", item.Source), zap.Error(err))
		}
	}
	return nil
}

func displayName(name, fallback string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallback
}

// objectKey builds a consistent S3 key layout.
func objectKey(userID, repoID, itemID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "" {
		filename = "upload"
	}
	return path.Join("users", userID, "repositories", repoID, "items", itemID, filename)
}
