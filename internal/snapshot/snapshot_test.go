package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSet() domain.RecordSet {
	processedAt := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	return domain.RecordSet{
		Username: "alice",
		Records: []domain.PostRecord{
			{
				PostID:          "p1",
				Username:        "alice",
				Caption:         "first post",
				Timestamp:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				LikeCount:       10,
				CommentCount:    2,
				MediaType:       domain.MediaTypePost,
				MediaURLs:       []string{"https://cdn.example.com/p1.jpg"},
				StorageLocation: "instagram/alice/media/post__p1__post.jpg",
				Enrichment: domain.Enrichment{
					Description: "a dog on a beach",
					Findings:    domain.Findings{Description: "a dog on a beach", Style: "candid photo"},
					ProcessedAt: &processedAt,
				},
			},
			{
				PostID:    "a1",
				Username:  "alice",
				Timestamp: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				MediaType: domain.MediaTypeAlbum,
				MediaURLs: []string{
					"https://cdn.example.com/a1-0.jpg",
					"https://cdn.example.com/a1-1.jpg",
				},
				StorageLocation: "instagram/alice/media/post__a1__album",
			},
		},
	}
}

func TestRoundTripIsLossless(t *testing.T) {
	set := sampleSet()

	data, err := Encode(set, time.Now())
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, set.Username, decoded.Username)
	require.Equal(t, set.Len(), decoded.Len())

	enriched := decoded.Records[decoded.Find("p1")]
	assert.True(t, enriched.Enrichment.Complete())
	assert.Equal(t, "a dog on a beach", enriched.Enrichment.Description)
	assert.Equal(t, "candid photo", enriched.Enrichment.Findings.Style)

	pending := decoded.Records[decoded.Find("a1")]
	assert.Nil(t, pending.Enrichment.ProcessedAt)
	assert.Equal(t, set.Records[1].MediaURLs, pending.MediaURLs)
}

func TestEncodeWritesListsNeverNull(t *testing.T) {
	set := domain.RecordSet{
		Username: "alice",
		Records:  []domain.PostRecord{{PostID: "p1", MediaType: domain.MediaTypePost}},
	}

	data, err := Encode(set, time.Now())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	records := doc["records"].([]any)
	row := records[0].(map[string]any)

	urls, ok := row["media_urls"].([]any)
	require.True(t, ok, "media_urls must be a JSON array, not null")
	assert.Empty(t, urls)
	assert.Nil(t, row["enrichment_timestamp"])
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	data := []byte(`{"version": 99, "username": "alice", "records": []}`)

	_, err := Decode(data)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestDecodeToleratesUnknownMediaType(t *testing.T) {
	set := sampleSet()
	data, err := Encode(set, time.Now())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["records"].([]any)[0].(map[string]any)["media_type"] = "igtv"
	patched, err := json.Marshal(doc)
	require.NoError(t, err)

	decoded, err := Decode(patched)
	require.NoError(t, err)
	assert.Equal(t, domain.MediaTypePost, decoded.Records[decoded.Find("p1")].MediaType)
}
