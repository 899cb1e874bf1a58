package analyzer

import (
	"context"
	"errors"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// ErrEmptyAnalysis is returned when the model answers with no content.
// An empty answer is a failure, never a silently-empty success.
var ErrEmptyAnalysis = errors.New("analysis returned no content")

// Client runs AI content analysis against stored media objects.
type Client interface {
	// AnalyzeImage describes the image object at path. The caption gives
	// the model conversational context and may be empty.
	AnalyzeImage(ctx context.Context, path string, caption string) (domain.Findings, error)

	// AnalyzeVideo describes the video object at path.
	AnalyzeVideo(ctx context.Context, path string) (domain.Findings, error)
}

// Embedder produces text embeddings for the vector index sync.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
