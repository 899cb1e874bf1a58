package syncer

import (
	"context"

	"github.com/ousepachn/insta-media-sync/internal/audit"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/enrich"
)

// Client runs the three pipelines the service exposes. Every run is
// serialized per username, logged to the run history and reported to the
// status sink as it progresses.
type Client interface {
	// Scrape fetches the newest posts for a username, merges them into the
	// prior record set, persists the snapshot and downloads any media not
	// yet stored. When processWithAI is set, a catch-up enrichment pass
	// runs afterwards.
	Scrape(ctx context.Context, username string, maxPosts int, processWithAI bool) (ScrapeResult, error)

	// ProcessAI runs an enrichment-only pass over an existing snapshot.
	// It fails when the username was never scraped.
	ProcessAI(ctx context.Context, username string, mode domain.ProcessMode) (enrich.Summary, error)

	// Verify reconciles the snapshot against stored media in both
	// directions and persists the corrected snapshot when it changed.
	Verify(ctx context.Context, username string) (audit.Report, error)

	// ScheduleSync starts the cron-driven scrape and verify cycle for the
	// configured usernames. It returns immediately; jobs run until the
	// context backing the scheduler is stopped.
	ScheduleSync(ctx context.Context) error
}

// ScrapeResult summarizes one scrape run.
type ScrapeResult struct {
	Created    int
	Updated    int
	Skipped    int
	Downloaded int
	Enriched   int
	Total      int
}
