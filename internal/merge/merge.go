package merge

import (
	"fmt"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/mediapath"
)

// Clock supplies the wall-clock fallback for timestamp resolution. Injected
// so tests can pin it.
type Clock func() time.Time

// NormalizationError reports a single raw post that could not be admitted.
// It is a per-record error: the caller logs it and continues the batch.
type NormalizationError struct {
	Index  int
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize post at index %d: %s", e.Index, e.Reason)
}

// Result is the outcome of merging one fetch batch into a prior set.
type Result struct {
	Set     domain.RecordSet
	Created int
	Updated int
	Skipped []error
}

// Merge combines a freshly fetched batch with the prior record set. Every
// post ID appears exactly once in the result, prior enrichment state is
// never discarded, and fresher descriptive fields overwrite missing or
// placeholder prior values. An empty batch returns the prior set unchanged:
// a fetch that found nothing must never clear existing history. A batch
// where every candidate fails normalization behaves the same way.
func Merge(prior domain.RecordSet, batch []domain.RawPost, username string, now Clock) Result {
	res := Result{Set: prior.Clone()}
	res.Set.Username = username

	if len(batch) == 0 {
		return res
	}

	for i, raw := range batch {
		var priorRec *domain.PostRecord
		if idx := res.Set.Find(raw.ID); raw.ID != "" && idx >= 0 {
			priorRec = &res.Set.Records[idx]
		}

		cand, err := Normalize(raw, username, priorRec, now)
		if err != nil {
			res.Skipped = append(res.Skipped, &NormalizationError{Index: i, Reason: err.Error()})
			continue
		}

		if priorRec != nil {
			patch(priorRec, cand)
			res.Updated++
			continue
		}
		res.Set.Records = append(res.Set.Records, cand)
		res.Created++
	}

	return res
}

// Normalize turns one raw fetched post into a candidate record. The
// enrichment group of a candidate is always pending; merging decides
// whether it replaces anything.
//
// Timestamp precedence, applied in this exact order:
//  1. taken_at when present and positive
//  2. device_timestamp when present and positive
//  3. the prior record's resolved timestamp for the same post ID
//  4. the current wall clock, as a last resort only
//
// Falling through to the clock before consulting the prior record would
// lose a previously resolved timestamp on every re-run.
func Normalize(raw domain.RawPost, username string, prior *domain.PostRecord, now Clock) (domain.PostRecord, error) {
	if raw.ID == "" {
		return domain.PostRecord{}, fmt.Errorf("missing post id")
	}

	mt, known := domain.ParseMediaType(raw.MediaName)
	if !known {
		// Admit with the safest fallback rather than dropping the post.
		mt = domain.MediaTypePost
	}

	urls := extractMediaURLs(raw, mt)

	rec := domain.PostRecord{
		PostID:          raw.ID,
		Username:        username,
		Caption:         raw.CaptionText(),
		Timestamp:       resolveTimestamp(raw, prior, now),
		LikeCount:       raw.LikeCount,
		CommentCount:    raw.CommentCount,
		MediaType:       mt,
		MediaURLs:       urls,
		StorageLocation: mediapath.Location(username, raw.ID, mt, urls),
	}
	return rec, nil
}

func resolveTimestamp(raw domain.RawPost, prior *domain.PostRecord, now Clock) time.Time {
	if raw.TakenAt > 0 {
		return time.Unix(raw.TakenAt, 0).UTC()
	}
	if raw.DeviceTimestamp > 0 {
		return time.Unix(raw.DeviceTimestamp, 0).UTC()
	}
	if prior != nil && !prior.Timestamp.IsZero() {
		return prior.Timestamp
	}
	return now().UTC()
}

func extractMediaURLs(raw domain.RawPost, mt domain.MediaType) []string {
	switch mt {
	case domain.MediaTypeAlbum:
		urls := make([]string, 0, len(raw.CarouselMedia))
		for _, item := range raw.CarouselMedia {
			// Order defines carousel position; keep it exactly.
			switch {
			case item.VideoURL != "":
				urls = append(urls, item.VideoURL)
			case item.ThumbnailURL != "":
				urls = append(urls, item.ThumbnailURL)
			}
		}
		return urls
	case domain.MediaTypeReel:
		if raw.VideoURL != "" {
			return []string{raw.VideoURL}
		}
		if raw.ThumbnailURL != "" {
			return []string{raw.ThumbnailURL}
		}
	default:
		if raw.ThumbnailURL != "" {
			return []string{raw.ThumbnailURL}
		}
		if raw.VideoURL != "" {
			return []string{raw.VideoURL}
		}
	}
	return nil
}

// patch backfills a candidate's descriptive fields onto the prior record
// for the same post ID. Captured descriptive fields are immutable: the
// candidate only fills values the prior record is missing. The one
// exception is media URLs, which are signed and expire; a re-fetch
// refreshes them so later download passes keep working. The enrichment
// group is never touched here; that is the enrichment tracker's job alone.
func patch(prior *domain.PostRecord, cand domain.PostRecord) {
	if prior.Caption == "" {
		prior.Caption = cand.Caption
	}
	if prior.Timestamp.IsZero() {
		prior.Timestamp = cand.Timestamp
	}
	if prior.LikeCount == 0 {
		prior.LikeCount = cand.LikeCount
	}
	if prior.CommentCount == 0 {
		prior.CommentCount = cand.CommentCount
	}
	if len(cand.MediaURLs) > 0 {
		prior.MediaURLs = cand.MediaURLs
		if cand.StorageLocation != "" {
			prior.StorageLocation = cand.StorageLocation
		}
	}
}
