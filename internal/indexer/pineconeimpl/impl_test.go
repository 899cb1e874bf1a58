package pineconeimpl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.texts = append(f.texts, text)
	return []float64{0.1, 0.2, 0.3}, nil
}

func newTestClient(server *httptest.Server, emb *fakeEmbedder) *Pinecone {
	cfg := &config.Config{}
	cfg.Indexer.Endpoint = server.URL
	cfg.Indexer.APIKey = "test-key"
	return New(Opts{
		Config:   cfg,
		Logger:   logger.New(logger.Opts{}),
		Embedder: emb,
	})
}

func TestQueryReturnsRankedMatches(t *testing.T) {
	var gotBody queryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matches":[
			{"id":"p1","score":0.91,"metadata":{"username":"alice","caption":"golden hour","description":"a sunset over the harbor","media_type":"post"}},
			{"id":"p2","score":0.67,"metadata":{"username":"alice","description":"boats at dusk","media_type":"reel"}}
		]}`))
	}))
	defer server.Close()

	emb := &fakeEmbedder{}
	client := newTestClient(server, emb)

	matches, err := client.Query(context.Background(), "sunset", 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"sunset"}, emb.texts)
	assert.Equal(t, 2, gotBody.TopK)
	assert.True(t, gotBody.IncludeMetadata)

	require.Len(t, matches, 2)
	assert.Equal(t, "p1", matches[0].PostID)
	assert.Equal(t, 0.91, matches[0].Score)
	assert.Equal(t, "a sunset over the harbor", matches[0].Description)
	assert.Equal(t, "reel", matches[1].MediaType)
}

func TestQueryDefaultsTopK(t *testing.T) {
	var gotBody queryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"matches":[]}`))
	}))
	defer server.Close()

	matches, err := newTestClient(server, &fakeEmbedder{}).Query(context.Background(), "sunset", 0)

	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 5, gotBody.TopK)
}

func TestQueryRejectedByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server, &fakeEmbedder{}).Query(context.Background(), "sunset", 3)

	require.Error(t, err)
}

func TestUpsertSkipsPendingRecords(t *testing.T) {
	var gotBody upsertRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/vectors/upsert", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	emb := &fakeEmbedder{}
	client := newTestClient(server, emb)

	processedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	set := domain.RecordSet{
		Username: "alice",
		Records: []domain.PostRecord{
			{PostID: "p1", Username: "alice", MediaType: domain.MediaTypePost},
			{
				PostID:    "p2",
				Username:  "alice",
				MediaType: domain.MediaTypePost,
				Enrichment: domain.Enrichment{
					Description: "a sunset over the harbor",
					ProcessedAt: &processedAt,
				},
			},
		},
	}

	require.NoError(t, client.UpsertRecords(context.Background(), set))

	assert.Equal(t, []string{"a sunset over the harbor"}, emb.texts)
	require.Len(t, gotBody.Vectors, 1)
	assert.Equal(t, "p2", gotBody.Vectors[0].ID)
	assert.Equal(t, "a sunset over the harbor", gotBody.Vectors[0].Metadata["description"])
}
