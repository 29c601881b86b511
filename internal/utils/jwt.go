package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/harentsoaR/medrec-api/internal/models"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrSecretNotConfigured = errors.New("token secret is not configured")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("invalid token")
)

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	Role           models.Role `json:"role"`
	Name           string      `json:"name,omitempty"`
	AssignedDoctor string      `json:"assignedDoctor,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The jti keeps two tokens
// issued to the same user within one second distinct.
type RefreshClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssuedRefreshToken is a freshly signed refresh token together with the
// hash that goes to the ledger.
type IssuedRefreshToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// TokenCodec signs and verifies access and refresh tokens with two
// independent HS256 secrets. It performs no I/O.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	hashCost      int
	now           func() time.Time
}

type CodecOption func(*TokenCodec)

func WithTTL(access, refresh time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if access > 0 {
			c.accessTTL = access
		}
		if refresh > 0 {
			c.refreshTTL = refresh
		}
	}
}

// WithHashCost sets the bcrypt cost used for refresh token hashes.
func WithHashCost(cost int) CodecOption {
	return func(c *TokenCodec) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			c.hashCost = cost
		}
	}
}

// WithClock overrides the issuing clock. Verification uses the same clock.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(accessSecret, refreshSecret []byte, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		hashCost:      bcrypt.DefaultCost,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccessToken creates a new access token for the given user.
func (c *TokenCodec) SignAccessToken(user *models.User) (string, error) {
	if len(c.accessSecret) == 0 {
		return "", fmt.Errorf("access token: %w", ErrSecretNotConfigured)
	}
	now := c.now()
	claims := AccessClaims{
		Role: user.Role,
		Name: user.DisplayName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	if user.AssignedDoctor != nil {
		claims.AssignedDoctor = user.AssignedDoctor.Hex()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.accessSecret)
}

// SignRefreshToken creates a new refresh token and its storable hash.
func (c *TokenCodec) SignRefreshToken(user *models.User) (*IssuedRefreshToken, error) {
	if len(c.refreshSecret) == 0 {
		return nil, fmt.Errorf("refresh token: %w", ErrSecretNotConfigured)
	}
	now := c.now()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return nil, err
	}
	hash, err := c.HashRefreshToken(raw)
	if err != nil {
		return nil, err
	}
	// Truncated to the precision of the signed exp claim.
	return &IssuedRefreshToken{Raw: raw, Hash: hash, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// HashRefreshToken returns a salted one-way hash of a raw refresh token.
// The SHA-256 step keeps the bcrypt input under its 72 byte limit.
func (c *TokenCodec) HashRefreshToken(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(digest(raw), c.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}
	return string(hash), nil
}

// CompareRefreshToken reports whether raw matches a hash produced by HashRefreshToken.
func (c *TokenCodec) CompareRefreshToken(raw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), digest(raw)) == nil
}

// VerifyAccessToken validates a given access token string.
func (c *TokenCodec) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	if len(c.accessSecret) == 0 {
		return nil, fmt.Errorf("access token: %w", ErrSecretNotConfigured)
	}
	claims := &AccessClaims{}
	if err := c.parse(tokenStr, claims, c.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates a given refresh token string.
func (c *TokenCodec) VerifyRefreshToken(tokenStr string) (*RefreshClaims, error) {
	if len(c.refreshSecret) == 0 {
		return nil, fmt.Errorf("refresh token: %w", ErrSecretNotConfigured)
	}
	claims := &RefreshClaims{}
	if err := c.parse(tokenStr, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case err != nil:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid:
		return ErrTokenInvalid
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return nil
}

func digest(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return []byte(hex.EncodeToString(sum[:]))
}
