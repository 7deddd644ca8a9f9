package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

// ErrForbidden is returned when a caller touches a repository they do not own.
var ErrForbidden = errors.New("repository does not belong to caller")

type RepositoryService struct {
	db core.DbClient

	// The repository pins the embedding space at creation time so every
	// vector inside it comes from one model.
	embedModel string
	embedDim   int
}

func NewRepositoryService(db core.DbClient, embedModel string, embedDim int) *RepositoryService {
	return &RepositoryService{db: db, embedModel: embedModel, embedDim: embedDim}
}

func (s *RepositoryService) Create(ctx context.Context, userID, name string) (*models.Repository, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("repository name is required")
	}
	repo := &models.Repository{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		EmbedModel: s.embedModel,
		EmbedDim:   s.embedDim,
	}
	if err := s.db.CreateRepository(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// GetOwned loads a repository and verifies the caller owns it.
func (s *RepositoryService) GetOwned(ctx context.Context, userID, repoID string) (*models.Repository, error) {
	repo, err := s.db.GetRepositoryByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if repo.UserID != userID {
		return nil, ErrForbidden
	}
	return repo, nil
}

func (s *RepositoryService) ListByUser(ctx context.Context, userID string) ([]models.Repository, error) {
	return s.db.ListRepositoriesByUser(ctx, userID)
}
