package runlog

import (
	"context"
	"errors"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

var ErrNotFound = errors.New("sync run not found")

//go:generate go run go.uber.org/mock/mockgen -source=runlog.go -destination=mocks/mock.go -package=mocks
type Repository interface {
	// Create records the start of a run.
	Create(ctx context.Context, run domain.SyncRun) error

	// Finish closes a run with its final status and counters.
	Finish(ctx context.Context, id string, status domain.RunStatus, processed, skipped int, errMsg string) error

	// GetLatestByUsername returns the most recent runs for a username,
	// newest first, limited by count.
	GetLatestByUsername(ctx context.Context, username string, count int) ([]*domain.SyncRun, error)

	// GetByID returns a single run, ErrNotFound when no row matches.
	GetByID(ctx context.Context, id string) (*domain.SyncRun, error)

	// CleanupOldRecords deletes runs older than the given duration string.
	CleanupOldRecords(ctx context.Context, olderThan string) (int64, error)
}
