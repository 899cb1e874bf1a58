package status

import "context"

// Run statuses reported after each major phase. These are notifications for
// the UI, never a control dependency of the pipelines.
const (
	StateInitializing    = "initializing"
	StateFetchingProfile = "fetching_profile"
	StateInProgress      = "in_progress"
	StateCompleted       = "completed"
	StateFailed          = "failed"
)

// Status is the coarse per-username progress document.
type Status struct {
	Status      string
	Message     string
	Error       string
	CurrentPost int
	TotalPosts  int
}

// Sink persists per-username status documents. Sync (scrape/enrich) and
// verification runs live in separate documents so the UI can show both.
type Sink interface {
	SetSync(ctx context.Context, username string, st Status) error
	GetSync(ctx context.Context, username string) (Status, bool, error)

	SetVerify(ctx context.Context, username string, st Status) error
	GetVerify(ctx context.Context, username string) (Status, bool, error)
}

// Noop discards status updates; used when no status store is configured.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) SetSync(context.Context, string, Status) error { return nil }
func (Noop) GetSync(context.Context, string) (Status, bool, error) {
	return Status{}, false, nil
}
func (Noop) SetVerify(context.Context, string, Status) error { return nil }
func (Noop) GetVerify(context.Context, string) (Status, bool, error) {
	return Status{}, false, nil
}
