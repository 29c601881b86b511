package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/harentsoaR/medrec-api/internal/models"
)

func newTestCodec(opts ...CodecOption) *TokenCodec {
	opts = append([]CodecOption{WithHashCost(bcrypt.MinCost)}, opts...)
	return NewTokenCodec([]byte("access-secret"), []byte("refresh-secret"), opts...)
}

func testUser() *models.User {
	doctor := primitive.NewObjectID()
	return &models.User{
		ID:             primitive.NewObjectID(),
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@example.com",
		Role:           models.RolePatient,
		AssignedDoctor: &doctor,
	}
}

func TestSignAccessToken_SetsExpectedClaims(t *testing.T) {
	codec := newTestCodec()
	user := testUser()

	token, err := codec.SignAccessToken(user)
	require.NoError(t, err)

	claims, err := codec.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.Subject)
	assert.Equal(t, models.RolePatient, claims.Role)
	assert.Equal(t, "Ada Lovelace", claims.Name)
	assert.Equal(t, user.AssignedDoctor.Hex(), claims.AssignedDoctor)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 2*time.Second)
}

func TestSignAccessToken_MissingSecret(t *testing.T) {
	codec := NewTokenCodec(nil, []byte("refresh-secret"))

	_, err := codec.SignAccessToken(testUser())
	assert.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestSignRefreshToken_HashMatchesOnlyItsToken(t *testing.T) {
	codec := newTestCodec()
	user := testUser()

	first, err := codec.SignRefreshToken(user)
	require.NoError(t, err)
	second, err := codec.SignRefreshToken(user)
	require.NoError(t, err)

	assert.NotEqual(t, first.Raw, second.Raw)
	assert.NotEqual(t, first.Raw, first.Hash)
	assert.True(t, codec.CompareRefreshToken(first.Raw, first.Hash))
	assert.False(t, codec.CompareRefreshToken(second.Raw, first.Hash))
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), first.ExpiresAt, 2*time.Second)

	claims, err := codec.VerifyRefreshToken(first.Raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.Subject)
	assert.Equal(t, models.RolePatient, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestVerify_Expired(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	issuer := newTestCodec(WithClock(past))
	verifier := newTestCodec()
	user := testUser()

	access, err := issuer.SignAccessToken(user)
	require.NoError(t, err)
	refresh, err := issuer.SignRefreshToken(user)
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(access)
	assert.ErrorIs(t, err, ErrTokenExpired)
	_, err = verifier.VerifyRefreshToken(refresh.Raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_Invalid(t *testing.T) {
	codec := newTestCodec()
	other := NewTokenCodec([]byte("other-access"), []byte("other-refresh"))
	user := testUser()

	foreign, err := other.SignAccessToken(user)
	require.NoError(t, err)
	good, err := codec.SignAccessToken(user)
	require.NoError(t, err)
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": user.ID.Hex(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: foreign},
		{name: "tampered payload", token: tampered},
		{name: "malformed", token: "not-a-jwt"},
		{name: "empty", token: ""},
		{name: "alg none", token: none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.VerifyAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.NotErrorIs(t, err, ErrTokenExpired)
		})
	}
}

func TestVerify_AccessAndRefreshSecretsAreNotInterchangeable(t *testing.T) {
	codec := newTestCodec()
	user := testUser()

	access, err := codec.SignAccessToken(user)
	require.NoError(t, err)
	refresh, err := codec.SignRefreshToken(user)
	require.NoError(t, err)

	_, err = codec.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = codec.VerifyAccessToken(refresh.Raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("y-password", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "y-password", hash)
	assert.True(t, CheckPasswordHash("y-password", hash))
	assert.False(t, CheckPasswordHash("x", hash))
}
