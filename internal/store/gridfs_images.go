package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/medrec-api/internal/models"
)

// GridFSImages stores profile images in a GridFS bucket and serves them
// back under baseURL/<id>.
type GridFSImages struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewGridFSImages(db *mongo.Database, baseURL string) (*GridFSImages, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(ImagesBucket))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSImages{bucket: bucket, baseURL: baseURL}, nil
}

func (g *GridFSImages) Save(_ context.Context, filename, contentType string, data []byte) (*models.UserImage, error) {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	id, err := g.bucket.UploadFromStream(filename, bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	return &models.UserImage{URL: g.baseURL + "/" + id.Hex(), PublicID: id.Hex()}, nil
}

func (g *GridFSImages) Delete(_ context.Context, publicID string) error {
	id, err := primitive.ObjectIDFromHex(publicID)
	if err != nil {
		return ErrNotFound
	}
	if err := g.bucket.Delete(id); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// Open returns a reader over the image bytes and its content type.
func (g *GridFSImages) Open(_ context.Context, publicID string) (io.ReadCloser, string, error) {
	id, err := primitive.ObjectIDFromHex(publicID)
	if err != nil {
		return nil, "", ErrNotFound
	}
	stream, err := g.bucket.OpenDownloadStream(id)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open image: %w", err)
	}

	contentType := "application/octet-stream"
	if f := stream.GetFile(); f != nil && f.Metadata != nil {
		if ct, ok := f.Metadata.Lookup("contentType").StringValueOK(); ok {
			contentType = ct
		}
	}
	return stream, contentType, nil
}
