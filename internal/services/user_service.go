package services

import (
	"context"
	"errors"
	"strings"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

// ErrInvalidUser rejects signups with a malformed email or a missing hash.
var ErrInvalidUser = errors.New("invalid user payload")

// UserService owns account records. Emails are normalized here, in one place,
// so the unique index holds no matter how callers spell them.
type UserService struct {
	db core.DbClient
}

func NewUserService(db core.DbClient) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Create(ctx context.Context, u *models.User) error {
	if u == nil || u.PasswordHash == "" {
		return ErrInvalidUser
	}
	email, ok := normalizeEmail(u.Email)
	if !ok {
		return ErrInvalidUser
	}
	u.Email = email
	return s.db.CreateUser(ctx, u)
}

// GetByEmail looks up the account under the normalized address. An address
// that could never have been stored is just a miss.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized, ok := normalizeEmail(email)
	if !ok {
		return nil, core.ErrNotFound
	}
	return s.db.GetUserByEmail(ctx, normalized)
}

func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", false
	}
	return email, true
}
