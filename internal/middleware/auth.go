package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/store"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

// Gin context keys set by the access gate.
const (
	ClaimsKey      = "claims"
	AccessTokenKey = "accessToken"
	UserKey        = "user"
)

// UserFinder loads a user without its password hash.
type UserFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// VerifyToken requires a valid bearer access token and stores its claims
// and raw value in the context.
func VerifyToken(codec *utils.TokenCodec, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, http.StatusUnauthorized, "No token provided")
			return
		}

		claims, err := codec.VerifyAccessToken(token)
		switch {
		case errors.Is(err, utils.ErrTokenExpired):
			abort(c, http.StatusUnauthorized, "Token expired")
			return
		case errors.Is(err, utils.ErrSecretNotConfigured):
			log.Error("auth: access secret missing", zap.Error(err))
			abort(c, http.StatusInternalServerError, "Server error.")
			return
		case err != nil:
			log.Debug("auth: rejected token", zap.String("path", c.Request.URL.Path), zap.Error(err))
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(AccessTokenKey, token)
		c.Next()
	}
}

// Authorize lets the request through only when the token role is one of
// roles. A request without claims is treated as having no role.
func Authorize(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusForbidden, "Forbidden: insufficient role")
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "Forbidden: insufficient role")
	}
}

// HydrateUser loads the token subject from the store and attaches it to the
// context. It must run after VerifyToken.
func HydrateUser(users UserFinder, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		id, err := primitive.ObjectIDFromHex(claims.Subject)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := users.FindByID(c.Request.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			abort(c, http.StatusNotFound, "User not found")
			return
		case err != nil:
			log.Error("auth: load user", zap.String("user_id", claims.Subject), zap.Error(err))
			abort(c, http.StatusInternalServerError, "Server error.")
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func ClaimsFrom(c *gin.Context) (*utils.AccessClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.AccessClaims)
	return claims, ok && claims != nil
}

func AccessTokenFrom(c *gin.Context) string {
	return c.GetString(AccessTokenKey)
}

func UserFrom(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}
