package services

import (
	"context"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/medrec-api/internal/models"
)

// UserStore is the credential store. FindByEmail is the only read that
// returns the password hash.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	UpdateProfile(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// RefreshTokenLedger persists hashed refresh tokens. Only SessionManager
// mutates it. DeleteOne reports how many rows it removed so two callers
// racing on the same row can tell which one won.
type RefreshTokenLedger interface {
	Store(ctx context.Context, t *models.RefreshToken) error
	FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.RefreshToken, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.RefreshToken, error)
	DeleteOne(ctx context.Context, id primitive.ObjectID) (int64, error)
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipient primitive.ObjectID, limit int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipient primitive.ObjectID) (*models.Notification, error)
}

// ImageStore is the object storage used for profile pictures.
type ImageStore interface {
	Save(ctx context.Context, filename, contentType string, data []byte) (*models.UserImage, error)
	Delete(ctx context.Context, publicID string) error
	Open(ctx context.Context, publicID string) (io.ReadCloser, string, error)
}
