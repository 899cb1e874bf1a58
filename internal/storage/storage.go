package storage

import (
	"context"
	"errors"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

var ErrObjectNotFound = errors.New("object not found")

//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=mocks/mock.go -package=mocks
type ObjectStore interface {
	// Exists reports whether a single object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of all objects under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// PutBytes writes an object.
	PutBytes(ctx context.Context, path string, data []byte, contentType string) error

	// GetBytes reads an object; ErrObjectNotFound when absent.
	GetBytes(ctx context.Context, path string) ([]byte, error)

	// GetSnapshot loads a username's persisted record set. The second
	// return is false when no snapshot exists yet.
	GetSnapshot(ctx context.Context, username string) (domain.RecordSet, bool, error)

	// PutSnapshot persists a record set as the username's snapshot.
	PutSnapshot(ctx context.Context, set domain.RecordSet) error
}
