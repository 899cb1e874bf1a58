package audit

import (
	"context"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// Client reconciles a username's record set against what object storage
// actually contains, in both directions.
type Client interface {
	// Verify runs the two reconciliation passes and persists the updated
	// snapshot only when something changed.
	Verify(ctx context.Context, username string) (Report, error)
}

// Report describes what an audit found and did.
type Report struct {
	Set domain.RecordSet

	// RemovedIDs are records whose claimed storage no longer exists.
	RemovedIDs []string

	// AdmittedIDs are placeholder records synthesized for stored media
	// that no surviving record claimed.
	AdmittedIDs []string

	// Persisted is true when a changed snapshot was written. A repeated
	// audit on a stable system reports false here.
	Persisted bool
}

func (r Report) Changed() bool {
	return len(r.RemovedIDs) > 0 || len(r.AdmittedIDs) > 0
}
