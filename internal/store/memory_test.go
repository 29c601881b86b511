package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/medrec-api/internal/models"
)

func TestMemoryUserStore_EmailIsCaseInsensitiveAndUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	u := &models.User{FirstName: "Ada", Email: "Ada@Example.com", Password: "hash"}
	require.NoError(t, s.Create(ctx, u))
	assert.Equal(t, "ada@example.com", u.Email)
	assert.False(t, u.ID.IsZero())

	err := s.Create(ctx, &models.User{Email: "ADA@example.com "})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	found, err := s.FindByEmail(ctx, "ADA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "hash", found.Password)

	byID, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.Password)

	exists, err := s.EmailExists(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryUserStore_UpdateProfileRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	a := &models.User{Email: "a@example.com"}
	b := &models.User{Email: "b@example.com"}
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	b.Email = "A@example.com"
	assert.ErrorIs(t, s.UpdateProfile(ctx, b), ErrDuplicateEmail)

	assert.ErrorIs(t, s.UpdateProfile(ctx, &models.User{ID: primitive.NewObjectID()}), ErrNotFound)
}

func TestMemoryUserStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	u := &models.User{FirstName: "Ada", LastName: "L", Email: "ada@example.com", Password: "hash", Role: models.RolePatient}
	require.NoError(t, s.Create(ctx, u))

	require.NoError(t, s.Delete(ctx, u.ID))
	assert.Zero(t, s.Count())
	assert.ErrorIs(t, s.Delete(ctx, u.ID), ErrNotFound)

	exists, err := s.EmailExists(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryRefreshTokenLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRefreshTokenLedger()
	user := primitive.NewObjectID()
	other := primitive.NewObjectID()
	now := time.Now()

	_, err := l.FindByUser(ctx, user)
	assert.ErrorIs(t, err, ErrNotFound)

	older := &models.RefreshToken{UserID: user, TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}
	newer := &models.RefreshToken{UserID: user, TokenHash: "h2", ExpiresAt: now.Add(time.Hour)}
	stale := &models.RefreshToken{UserID: other, TokenHash: "h3", ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, l.Store(ctx, older))
	require.NoError(t, l.Store(ctx, newer))
	require.NoError(t, l.Store(ctx, stale))

	got, err := l.FindByUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.TokenHash)

	n, err := l.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.DeleteOne(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = l.DeleteOne(ctx, newer.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "second delete of the same row finds nothing")

	got, err = l.FindByUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.TokenHash)

	n, err = l.DeleteByUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, l.All())
}

func TestMemoryImageStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryImageStore("/api/v1/users/images")

	img, err := s.Save(ctx, "me.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/users/images/"+img.PublicID, img.URL)

	rc, ct, err := s.Open(ctx, img.PublicID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.Delete(ctx, img.PublicID))
	assert.ErrorIs(t, s.Delete(ctx, img.PublicID), ErrNotFound)
}
