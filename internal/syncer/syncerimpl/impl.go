package syncerimpl

import (
	"context"
	"fmt"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/ousepachn/insta-media-sync/internal/audit"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/enrich"
	"github.com/ousepachn/insta-media-sync/internal/fetcher"
	"github.com/ousepachn/insta-media-sync/internal/guard"
	"github.com/ousepachn/insta-media-sync/internal/indexer"
	"github.com/ousepachn/insta-media-sync/internal/mediapath"
	"github.com/ousepachn/insta-media-sync/internal/merge"
	"github.com/ousepachn/insta-media-sync/internal/notifier"
	"github.com/ousepachn/insta-media-sync/internal/repositories/runlog"
	"github.com/ousepachn/insta-media-sync/internal/status"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	"github.com/ousepachn/insta-media-sync/internal/syncer"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	pkgerrors "github.com/ousepachn/insta-media-sync/pkg/errors"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/ousepachn/insta-media-sync/pkg/pacer"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Fetcher  fetcher.Client
	Store    storage.ObjectStore
	Enricher enrich.Client
	Auditor  audit.Client
	Indexer  indexer.Client
	Status   status.Sink
	Notifier notifier.Client
	RunLog   runlog.Repository
	Guard    *guard.Guard
	Config   *config.Config
	Logger   logger.Logger
}

type SyncerImpl struct {
	Fetcher  fetcher.Client
	Store    storage.ObjectStore
	Enricher enrich.Client
	Auditor  audit.Client
	Indexer  indexer.Client
	Status   status.Sink
	Notifier notifier.Client
	RunLog   runlog.Repository
	Guard    *guard.Guard
	Config   *config.Config
	Logger   logger.Logger

	itemPacer pacer.Pacer
	now       func() time.Time
}

var _ syncer.Client = (*SyncerImpl)(nil)

func New(opts Opts) *SyncerImpl {
	return &SyncerImpl{
		Fetcher:   opts.Fetcher,
		Store:     opts.Store,
		Enricher:  opts.Enricher,
		Auditor:   opts.Auditor,
		Indexer:   opts.Indexer,
		Status:    opts.Status,
		Notifier:  opts.Notifier,
		RunLog:    opts.RunLog,
		Guard:     opts.Guard,
		Config:    opts.Config,
		Logger:    opts.Logger.WithComponent("Syncer"),
		itemPacer: pacer.NewFixedInterval(opts.Config.Fetcher.ItemDelay),
		now:       time.Now,
	}
}

// Scrape is the main pipeline: fetch, merge, persist, download, and
// optionally enrich. The snapshot is written before media downloads start
// so an interrupted run never loses merged metadata; the verify pipeline
// reconciles any media the interruption left behind.
func (s *SyncerImpl) Scrape(ctx context.Context, username string, maxPosts int, processWithAI bool) (syncer.ScrapeResult, error) {
	release, err := s.Guard.Acquire(username)
	if err != nil {
		return syncer.ScrapeResult{}, err
	}
	defer release()

	runID := s.startRun(ctx, username, domain.RunKindScrape)
	s.setSync(ctx, username, status.Status{Status: status.StateInitializing})
	s.Logger.Info("Scrape run started", "username", username, "max_posts", maxPosts, "process_with_ai", processWithAI)

	var res syncer.ScrapeResult
	set, err := s.scrape(ctx, username, maxPosts, &res)
	if err != nil {
		s.failRun(ctx, runID, username, domain.RunKindScrape, err)
		return res, err
	}

	if processWithAI {
		enriched, summary, err := s.enrichAndIndex(ctx, set, domain.ProcessModeUpdateRemaining)
		if err != nil {
			// Metadata and media are already safe; report the run as
			// failed but keep what the scrape produced.
			s.failRun(ctx, runID, username, domain.RunKindScrape, err)
			return res, err
		}
		set = enriched
		res.Enriched = summary.Processed
	}

	res.Total = set.Len()
	s.setSync(ctx, username, status.Status{
		Status:     status.StateCompleted,
		Message:    fmt.Sprintf("Processed %d posts", set.Len()),
		TotalPosts: set.Len(),
	})
	s.finishRun(ctx, runID, domain.RunStatusCompleted, res.Created+res.Updated, res.Skipped, "")
	s.Logger.Info("Scrape run completed", "username", username,
		"created", res.Created, "updated", res.Updated, "downloaded", res.Downloaded, "enriched", res.Enriched)
	return res, nil
}

func (s *SyncerImpl) scrape(ctx context.Context, username string, maxPosts int, res *syncer.ScrapeResult) (domain.RecordSet, error) {
	prior, _, err := s.Store.GetSnapshot(ctx, username)
	if err != nil {
		return domain.RecordSet{}, pkgerrors.Wrap(err, "failed to load prior snapshot")
	}

	s.setSync(ctx, username, status.Status{Status: status.StateFetchingProfile})

	batch, err := s.Fetcher.FetchPosts(ctx, username, maxPosts)
	if err != nil {
		// The prior snapshot stays untouched on any fetch failure.
		return domain.RecordSet{}, err
	}

	merged := merge.Merge(prior, batch, username, s.now)
	for _, skip := range merged.Skipped {
		s.Logger.Warn("Skipping unusable post", "username", username, "error", skip)
	}
	res.Created = merged.Created
	res.Updated = merged.Updated
	res.Skipped = len(merged.Skipped)

	if merged.Set.IsEmpty() && !prior.IsEmpty() {
		return domain.RecordSet{}, pkgerrors.ErrEmptySnapshotRefused
	}

	if err := s.Store.PutSnapshot(ctx, merged.Set); err != nil {
		return domain.RecordSet{}, pkgerrors.Wrap(err, "failed to persist snapshot")
	}

	downloaded, err := s.downloadMedia(ctx, merged.Set)
	res.Downloaded = downloaded
	if err != nil {
		return domain.RecordSet{}, err
	}

	return merged.Set, nil
}

// downloadMedia stores every media object the set references that is not
// already present. Per-object failures are logged and skipped; only a
// cancelled context aborts the pass.
func (s *SyncerImpl) downloadMedia(ctx context.Context, set domain.RecordSet) (int, error) {
	downloaded := 0
	for i, rec := range set.Records {
		s.setSync(ctx, set.Username, status.Status{
			Status:      status.StateInProgress,
			CurrentPost: i + 1,
			TotalPosts:  set.Len(),
		})

		if rec.StorageLocation == "" {
			continue
		}

		for idx, url := range rec.MediaURLs {
			dest := rec.StorageLocation
			if rec.MediaType == domain.MediaTypeAlbum {
				dest = mediapath.AlbumItemPath(rec.StorageLocation, idx, url)
			} else if idx > 0 {
				break
			}

			exists, err := s.Store.Exists(ctx, dest)
			if err != nil {
				return downloaded, pkgerrors.Wrap(err, "failed to check stored media")
			}
			if exists {
				continue
			}

			if err := s.itemPacer.Wait(ctx); err != nil {
				return downloaded, err
			}

			data, err := s.Fetcher.DownloadMedia(ctx, url)
			if err != nil {
				if ctx.Err() != nil {
					return downloaded, ctx.Err()
				}
				s.Logger.Warn("Failed to download media, skipping object",
					"post_id", rec.PostID, "path", dest, "error", err)
				continue
			}
			if err := s.Store.PutBytes(ctx, dest, data, contentTypeFor(dest)); err != nil {
				s.Logger.Warn("Failed to store media, skipping object",
					"post_id", rec.PostID, "path", dest, "error", err)
				continue
			}
			downloaded++
		}
	}
	return downloaded, nil
}

// ProcessAI enriches an already-scraped username without refetching.
func (s *SyncerImpl) ProcessAI(ctx context.Context, username string, mode domain.ProcessMode) (enrich.Summary, error) {
	release, err := s.Guard.Acquire(username)
	if err != nil {
		return enrich.Summary{}, err
	}
	defer release()

	runID := s.startRun(ctx, username, domain.RunKindEnrich)
	s.setSync(ctx, username, status.Status{Status: status.StateInitializing})
	s.Logger.Info("Enrichment run started", "username", username, "mode", mode)

	set, found, err := s.Store.GetSnapshot(ctx, username)
	if err != nil {
		err = pkgerrors.Wrap(err, "failed to load snapshot")
		s.failRun(ctx, runID, username, domain.RunKindEnrich, err)
		return enrich.Summary{}, err
	}
	if !found {
		err = pkgerrors.Wrap(pkgerrors.ErrNotFound, "original scraping data not found, run a scrape first")
		s.failRun(ctx, runID, username, domain.RunKindEnrich, err)
		return enrich.Summary{}, err
	}

	s.setSync(ctx, username, status.Status{Status: status.StateInProgress, TotalPosts: set.Len()})

	_, summary, err := s.enrichAndIndex(ctx, set, mode)
	if err != nil {
		s.failRun(ctx, runID, username, domain.RunKindEnrich, err)
		return summary, err
	}

	s.setSync(ctx, username, status.Status{
		Status:     status.StateCompleted,
		Message:    fmt.Sprintf("Enriched %d posts", summary.Processed),
		TotalPosts: set.Len(),
	})
	s.finishRun(ctx, runID, domain.RunStatusCompleted, summary.Processed, summary.Skipped, "")
	s.Logger.Info("Enrichment run completed", "username", username,
		"processed", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// enrichAndIndex runs one enrichment pass, persists the result and mirrors
// completed records into the vector index. A skip pass writes nothing.
func (s *SyncerImpl) enrichAndIndex(ctx context.Context, set domain.RecordSet, mode domain.ProcessMode) (domain.RecordSet, enrich.Summary, error) {
	enriched, summary, err := s.Enricher.Process(ctx, set, mode)
	if err != nil {
		return set, summary, err
	}
	if mode == domain.ProcessModeSkip {
		return enriched, summary, nil
	}

	if enriched.IsEmpty() && !set.IsEmpty() {
		return set, summary, pkgerrors.ErrEmptySnapshotRefused
	}
	if err := s.Store.PutSnapshot(ctx, enriched); err != nil {
		return set, summary, pkgerrors.Wrap(err, "failed to persist enriched snapshot")
	}
	if err := s.Indexer.UpsertRecords(ctx, enriched); err != nil {
		// The snapshot is the source of truth; indexing catches up on the
		// next pass.
		s.Logger.Warn("Failed to update vector index", "username", enriched.Username, "error", err)
	}
	return enriched, summary, nil
}

// Verify delegates to the auditor under the same per-username guard and
// run logging as the other pipelines.
func (s *SyncerImpl) Verify(ctx context.Context, username string) (audit.Report, error) {
	release, err := s.Guard.Acquire(username)
	if err != nil {
		return audit.Report{}, err
	}
	defer release()

	runID := s.startRun(ctx, username, domain.RunKindVerify)
	s.setVerify(ctx, username, status.Status{Status: status.StateInProgress})
	s.Logger.Info("Verify run started", "username", username)

	report, err := s.Auditor.Verify(ctx, username)
	if err != nil {
		s.setVerify(ctx, username, status.Status{Status: status.StateFailed, Error: err.Error()})
		s.finishRun(ctx, runID, domain.RunStatusFailed, 0, 0, err.Error())
		s.Notifier.NotifyFailure(username, string(domain.RunKindVerify), err.Error())
		return report, err
	}

	s.setVerify(ctx, username, status.Status{
		Status: status.StateCompleted,
		Message: fmt.Sprintf("Removed %d stale records, admitted %d stored posts",
			len(report.RemovedIDs), len(report.AdmittedIDs)),
		TotalPosts: report.Set.Len(),
	})
	s.finishRun(ctx, runID, domain.RunStatusCompleted, len(report.RemovedIDs)+len(report.AdmittedIDs), 0, "")
	s.Logger.Info("Verify run completed", "username", username,
		"removed", len(report.RemovedIDs), "admitted", len(report.AdmittedIDs), "persisted", report.Persisted)
	return report, nil
}

func (s *SyncerImpl) startRun(ctx context.Context, username string, kind domain.RunKind) string {
	run := domain.SyncRun{
		ID:        uuid.NewString(),
		Username:  username,
		Kind:      kind,
		Status:    domain.RunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.RunLog.Create(ctx, run); err != nil {
		// Run history is advisory; the pipeline proceeds without it.
		s.Logger.Warn("Failed to record run start", "username", username, "kind", kind, "error", err)
	}
	return run.ID
}

func (s *SyncerImpl) finishRun(ctx context.Context, id string, st domain.RunStatus, processed, skipped int, errMsg string) {
	if err := s.RunLog.Finish(ctx, id, st, processed, skipped, errMsg); err != nil {
		s.Logger.Warn("Failed to record run finish", "run_id", id, "error", err)
	}
}

func (s *SyncerImpl) failRun(ctx context.Context, runID, username string, kind domain.RunKind, cause error) {
	s.Logger.Error("Run failed", "username", username, "kind", kind, "error", cause)
	s.setSync(ctx, username, status.Status{Status: status.StateFailed, Error: cause.Error()})
	s.finishRun(ctx, runID, domain.RunStatusFailed, 0, 0, cause.Error())
	s.Notifier.NotifyFailure(username, string(kind), cause.Error())
}

func (s *SyncerImpl) setSync(ctx context.Context, username string, st status.Status) {
	if err := s.Status.SetSync(ctx, username, st); err != nil {
		s.Logger.Warn("Failed to write sync status", "username", username, "error", err)
	}
}

func (s *SyncerImpl) setVerify(ctx context.Context, username string, st status.Status) {
	if err := s.Status.SetVerify(ctx, username, st); err != nil {
		s.Logger.Warn("Failed to write verify status", "username", username, "error", err)
	}
}

func contentTypeFor(objectPath string) string {
	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
