package fetcher

import (
	"context"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// Client fetches post data from the external scraping API. The pagination
// protocol is the API's own; callers only see the flattened batch.
type Client interface {
	// FetchPosts returns up to maxCount of the newest posts for a username.
	// Fewer may be returned; an error means the run-level fetch failed.
	FetchPosts(ctx context.Context, username string, maxCount int) ([]domain.RawPost, error)

	// DownloadMedia fetches the bytes behind a media source URL.
	DownloadMedia(ctx context.Context, url string) ([]byte, error)
}
