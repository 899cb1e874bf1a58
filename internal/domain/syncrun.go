package domain

import "time"

// RunKind names the three pipelines the service executes.
type RunKind string

const (
	RunKindScrape RunKind = "scrape"
	RunKindEnrich RunKind = "enrich"
	RunKindVerify RunKind = "verify"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SyncRun is one logged execution of a pipeline for a username.
type SyncRun struct {
	ID         string
	Username   string
	Kind       RunKind
	Status     RunStatus
	Processed  int
	Skipped    int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}
