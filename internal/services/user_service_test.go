package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

type userStubDB struct {
	core.DbClient
	created []*models.User
	queried []string
}

func (s *userStubDB) CreateUser(_ context.Context, u *models.User) error {
	s.created = append(s.created, u)
	return nil
}

func (s *userStubDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.queried = append(s.queried, email)
	for _, u := range s.created {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

func TestCreateUserNormalizesEmail(t *testing.T) {
	db := &userStubDB{}
	svc := NewUserService(db)

	u := &models.User{ID: "u-1", Email: "  Ada@Example.COM ", PasswordHash: "hash"}
	require.NoError(t, svc.Create(context.Background(), u))

	require.Len(t, db.created, 1)
	assert.Equal(t, "ada@example.com", db.created[0].Email)
}

func TestCreateUserRejectsBadPayloads(t *testing.T) {
	svc := NewUserService(&userStubDB{})

	for _, u := range []*models.User{
		nil,
		{Email: "ada@example.com"},
		{Email: "", PasswordHash: "hash"},
		{Email: "no-at-sign", PasswordHash: "hash"},
		{Email: "@example.com", PasswordHash: "hash"},
		{Email: "trailing@", PasswordHash: "hash"},
		{Email: "spa ce@example.com", PasswordHash: "hash"},
	} {
		assert.ErrorIs(t, svc.Create(context.Background(), u), ErrInvalidUser)
	}
}

func TestGetByEmailMatchesAnyCasing(t *testing.T) {
	db := &userStubDB{}
	svc := NewUserService(db)

	require.NoError(t, svc.Create(context.Background(), &models.User{ID: "u-1", Email: "ada@example.com", PasswordHash: "hash"}))

	got, err := svc.GetByEmail(context.Background(), "ADA@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)

	_, err = svc.GetByEmail(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NotContains(t, db.queried, "not-an-email", "junk never reaches the database")
}
