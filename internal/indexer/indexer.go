package indexer

import (
	"context"
	"errors"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// ErrNotConfigured is returned by query operations when no vector index
// endpoint is configured.
var ErrNotConfigured = errors.New("vector index not configured")

// Match is one semantic search hit, ranked by the index.
type Match struct {
	PostID      string  `json:"post_id"`
	Score       float64 `json:"score"`
	Username    string  `json:"username"`
	Caption     string  `json:"caption"`
	Description string  `json:"description"`
	MediaType   string  `json:"media_type"`
}

// Client mirrors enriched records into the vector index and answers
// semantic queries against it. Ranking behavior belongs to the index.
type Client interface {
	// UpsertRecords indexes every record with a completed enrichment.
	// Pending records are skipped; they have nothing to embed yet.
	UpsertRecords(ctx context.Context, set domain.RecordSet) error

	// Query embeds the query text and returns the topK closest indexed
	// records with their metadata.
	Query(ctx context.Context, query string, topK int) ([]Match, error)
}

// Noop is used when no vector index is configured.
type Noop struct{}

var _ Client = Noop{}

func (Noop) UpsertRecords(context.Context, domain.RecordSet) error { return nil }

func (Noop) Query(context.Context, string, int) ([]Match, error) {
	return nil, ErrNotConfigured
}
