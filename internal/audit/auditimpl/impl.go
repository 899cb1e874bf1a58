package auditimpl

import (
	"context"
	"fmt"
	"path"

	"github.com/ousepachn/insta-media-sync/internal/audit"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/mediapath"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	pkgerrors "github.com/ousepachn/insta-media-sync/pkg/errors"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Storage storage.ObjectStore
	Logger  logger.Logger
}

type Auditor struct {
	Storage storage.ObjectStore
	Logger  logger.Logger
}

var _ audit.Client = (*Auditor)(nil)

func New(opts Opts) *Auditor {
	return &Auditor{
		Storage: opts.Storage,
		Logger:  opts.Logger.WithComponent("Auditor"),
	}
}

// Verify heals the two drift directions a partial write can leave behind:
// a record whose media vanished, and a stored object no record claims.
// When neither pass changes anything the snapshot is left untouched, so
// back-to-back audits on a stable system write nothing.
func (a *Auditor) Verify(ctx context.Context, username string) (audit.Report, error) {
	prior, _, err := a.Storage.GetSnapshot(ctx, username)
	if err != nil {
		return audit.Report{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	report := audit.Report{Set: prior.Clone()}
	report.Set.Username = username

	if err := a.removeMissingMedia(ctx, &report); err != nil {
		return audit.Report{}, err
	}
	if err := a.admitUnreferencedMedia(ctx, &report); err != nil {
		return audit.Report{}, err
	}

	if !report.Changed() {
		a.Logger.Info("Audit found no drift", "username", username, "records", report.Set.Len())
		return report, nil
	}

	if report.Set.IsEmpty() && !prior.IsEmpty() {
		return audit.Report{}, pkgerrors.ErrEmptySnapshotRefused
	}

	if err := a.Storage.PutSnapshot(ctx, report.Set); err != nil {
		return audit.Report{}, fmt.Errorf("failed to persist audited snapshot: %w", err)
	}
	report.Persisted = true

	a.Logger.Info("Audit repaired drift", "username", username,
		"removed", len(report.RemovedIDs), "admitted", len(report.AdmittedIDs))
	return report, nil
}

// removeMissingMedia drops every record whose claimed storage is gone. A
// record referencing vanished media is worse than no record: it poisons
// enrichment and search with content that cannot be shown.
func (a *Auditor) removeMissingMedia(ctx context.Context, report *audit.Report) error {
	kept := report.Set.Records[:0]
	for _, rec := range report.Set.Records {
		ok, err := a.mediaExists(ctx, rec)
		if err != nil {
			return fmt.Errorf("failed to check media for %s: %w", rec.PostID, err)
		}
		if !ok {
			a.Logger.Warn("Record claims missing media, removing",
				"post_id", rec.PostID, "location", rec.StorageLocation)
			report.RemovedIDs = append(report.RemovedIDs, rec.PostID)
			continue
		}
		kept = append(kept, rec)
	}
	report.Set.Records = kept
	return nil
}

func (a *Auditor) mediaExists(ctx context.Context, rec domain.PostRecord) (bool, error) {
	if rec.StorageLocation == "" {
		// No media was ever resolvable for this post; nothing to verify.
		return true, nil
	}
	if rec.MediaType == domain.MediaTypeAlbum {
		// An album owns a set of objects under its prefix; one survivor
		// is enough to keep the record.
		objects, err := a.Storage.List(ctx, rec.StorageLocation+"/")
		if err != nil {
			return false, err
		}
		return len(objects) > 0, nil
	}
	return a.Storage.Exists(ctx, rec.StorageLocation)
}

// admitUnreferencedMedia lists everything under the username's media root
// and synthesizes a placeholder record for any object the naming convention
// traces to a post no surviving record covers. Storage and metadata must
// never silently diverge in the orphan-object direction.
func (a *Auditor) admitUnreferencedMedia(ctx context.Context, report *audit.Report) error {
	username := report.Set.Username
	objects, err := a.Storage.List(ctx, mediapath.MediaRoot(username)+"/")
	if err != nil {
		return fmt.Errorf("failed to list media root: %w", err)
	}

	admitted := map[string]bool{}
	for _, objectPath := range objects {
		postID, mt, ok := mediapath.Parse(objectPath, username)
		if !ok {
			a.Logger.Debug("Object outside naming convention, ignoring", "path", objectPath)
			continue
		}
		if report.Set.Contains(postID) || admitted[postID] {
			continue
		}

		location := objectPath
		if mt == domain.MediaTypeAlbum {
			location = path.Join(mediapath.MediaRoot(username), mediapath.ObjectBase(postID, mt))
		}

		a.Logger.Warn("Stored media has no record, admitting placeholder",
			"post_id", postID, "media_type", mt, "path", objectPath)
		report.Set.Records = append(report.Set.Records, domain.PostRecord{
			PostID:          postID,
			Username:        username,
			MediaType:       mt,
			MediaURLs:       []string{},
			StorageLocation: location,
		})
		report.AdmittedIDs = append(report.AdmittedIDs, postID)
		admitted[postID] = true
	}
	return nil
}
