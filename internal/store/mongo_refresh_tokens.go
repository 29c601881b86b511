package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/medrec-api/internal/models"
)

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// MongoRefreshTokenLedger stores hashed refresh tokens. Nothing here enforces
// one row per user; the session layer decides that.
type MongoRefreshTokenLedger struct {
	coll *mongo.Collection
}

func NewMongoRefreshTokenLedger(db *mongo.Database) *MongoRefreshTokenLedger {
	return &MongoRefreshTokenLedger{coll: db.Collection(RefreshTokensCollection)}
}

func (l *MongoRefreshTokenLedger) Store(ctx context.Context, t *models.RefreshToken) error {
	now := time.Now().UTC()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	if _, err := l.coll.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindByUser returns the newest record for the user.
func (l *MongoRefreshTokenLedger) FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.RefreshToken, error) {
	var t models.RefreshToken
	opts := options.FindOne().SetSort(newestFirst)
	if err := l.coll.FindOne(ctx, bson.M{"userId": userID}, opts).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &t, nil
}

func (l *MongoRefreshTokenLedger) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.RefreshToken, error) {
	cursor, err := l.coll.Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var tokens []models.RefreshToken
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("decode refresh tokens: %w", err)
	}
	return tokens, nil
}

func (l *MongoRefreshTokenLedger) DeleteOne(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := l.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete refresh token: %w", err)
	}
	return res.DeletedCount, nil
}

func (l *MongoRefreshTokenLedger) DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := l.coll.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteExpired removes every record whose expiry is before now.
func (l *MongoRefreshTokenLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := l.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.DeletedCount, nil
}
