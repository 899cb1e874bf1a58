package pineconeimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/analyzer"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/indexer"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/ousepachn/insta-media-sync/pkg/retry"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config   *config.Config
	Logger   logger.Logger
	Embedder analyzer.Embedder
}

// Pinecone pushes enriched records into a Pinecone-style REST index.
type Pinecone struct {
	http     *http.Client
	endpoint string
	apiKey   string
	embedder analyzer.Embedder
	logger   logger.Logger
}

var _ indexer.Client = (*Pinecone)(nil)

func New(opts Opts) *Pinecone {
	return &Pinecone{
		http:     &http.Client{Timeout: 30 * time.Second},
		endpoint: strings.TrimRight(opts.Config.Indexer.Endpoint, "/"),
		apiKey:   opts.Config.Indexer.APIKey,
		embedder: opts.Embedder,
		logger:   opts.Logger.WithComponent("Indexer"),
	}
}

type vector struct {
	ID       string            `json:"id"`
	Values   []float64         `json:"values"`
	Metadata map[string]string `json:"metadata"`
}

type upsertRequest struct {
	Vectors []vector `json:"vectors"`
}

func (p *Pinecone) UpsertRecords(ctx context.Context, set domain.RecordSet) error {
	var vectors []vector
	for _, rec := range set.Records {
		if !rec.Enrichment.Complete() {
			continue
		}

		values, err := p.embedder.Embed(ctx, rec.Enrichment.Description)
		if err != nil {
			// One failed embedding should not block the rest of the batch.
			p.logger.Warn("Failed to embed record, skipping", "post_id", rec.PostID, "error", err)
			continue
		}

		vectors = append(vectors, vector{
			ID:     rec.PostID,
			Values: values,
			Metadata: map[string]string{
				"username":    rec.Username,
				"caption":     rec.Caption,
				"description": rec.Enrichment.Description,
				"media_type":  string(rec.MediaType),
			},
		})
	}

	if len(vectors) == 0 {
		return nil
	}
	return p.upsert(ctx, vectors)
}

func (p *Pinecone) upsert(ctx context.Context, vectors []vector) error {
	payload, err := json.Marshal(upsertRequest{Vectors: vectors})
	if err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/vectors/upsert", bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Api-Key", p.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			err := fmt.Errorf("index returned status %d: %s", resp.StatusCode, body)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return retry.Permanent(err)
		}
		return nil
	}

	if err := retry.Do(ctx, p.logger, "IndexUpsert", operation, retry.DefaultConfig()); err != nil {
		return err
	}
	p.logger.Info("Upserted vectors", "count", len(vectors))
	return nil
}

type queryRequest struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

// Query embeds the query text and asks the index for the topK closest
// vectors, returning each match's stored metadata.
func (p *Pinecone) Query(ctx context.Context, query string, topK int) ([]indexer.Match, error) {
	if topK <= 0 {
		topK = 5
	}

	values, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	payload, err := json.Marshal(queryRequest{Vector: values, TopK: topK, IncludeMetadata: true})
	if err != nil {
		return nil, err
	}

	var decoded queryResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/query", bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Api-Key", p.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			err := fmt.Errorf("index returned status %d: %s", resp.StatusCode, body)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return retry.Permanent(err)
		}
		decoded = queryResponse{}
		return json.NewDecoder(resp.Body).Decode(&decoded)
	}

	if err := retry.Do(ctx, p.logger, "IndexQuery", operation, retry.DefaultConfig()); err != nil {
		return nil, err
	}

	matches := make([]indexer.Match, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		matches = append(matches, indexer.Match{
			PostID:      m.ID,
			Score:       m.Score,
			Username:    m.Metadata["username"],
			Caption:     m.Metadata["caption"],
			Description: m.Metadata["description"],
			MediaType:   m.Metadata["media_type"],
		})
	}
	p.logger.Info("Query completed", "matches", len(matches))
	return matches, nil
}
