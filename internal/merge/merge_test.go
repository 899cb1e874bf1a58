package merge

import (
	"testing"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func rawPost(id string, takenAt int64) domain.RawPost {
	return domain.RawPost{
		ID:           id,
		MediaName:    "post",
		TakenAt:      takenAt,
		ThumbnailURL: "https://cdn.example.com/" + id + ".jpg?sig=abc",
	}
}

func TestMergeCreatesNewRecords(t *testing.T) {
	res := Merge(domain.RecordSet{}, []domain.RawPost{
		rawPost("p1", 1700000000),
		rawPost("p2", 1700000100),
	}, "alice", fixedClock)

	require.Equal(t, 2, res.Created)
	require.Equal(t, 0, res.Updated)
	require.Empty(t, res.Skipped)
	require.Equal(t, "alice", res.Set.Username)
	require.Equal(t, 2, res.Set.Len())

	rec := res.Set.Records[res.Set.Find("p1")]
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.Timestamp)
	assert.Equal(t, "instagram/alice/media/post__p1__post.jpg", rec.StorageLocation)
	assert.False(t, rec.Enrichment.Complete())
}

func TestMergeIsDuplicateFree(t *testing.T) {
	prior := Merge(domain.RecordSet{}, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock).Set

	res := Merge(prior, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock)

	require.Equal(t, 0, res.Created)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 1, res.Set.Len())
}

func TestMergePreservesEnrichment(t *testing.T) {
	processedAt := fixedNow.Add(-time.Hour)
	prior := domain.RecordSet{
		Username: "alice",
		Records: []domain.PostRecord{{
			PostID:    "p1",
			Username:  "alice",
			MediaType: domain.MediaTypePost,
			Timestamp: time.Unix(1700000000, 0).UTC(),
			Enrichment: domain.Enrichment{
				Description: "a sunset over the harbor",
				Findings:    domain.Findings{Description: "a sunset over the harbor"},
				ProcessedAt: &processedAt,
			},
		}},
	}

	refetched := rawPost("p1", 1700000000)
	refetched.LikeCount = 42
	res := Merge(prior, []domain.RawPost{refetched}, "alice", fixedClock)

	rec := res.Set.Records[res.Set.Find("p1")]
	assert.Equal(t, 42, rec.LikeCount)
	assert.True(t, rec.Enrichment.Complete())
	assert.Equal(t, "a sunset over the harbor", rec.Enrichment.Description)
	assert.Equal(t, processedAt, *rec.Enrichment.ProcessedAt)
}

func TestMergeBackfillsCaptionAndCounts(t *testing.T) {
	prior := Merge(domain.RecordSet{}, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock).Set

	updated := rawPost("p1", 1700000000)
	updated.Caption = &domain.RawCaption{Text: "edited caption"}
	updated.LikeCount = 7
	updated.CommentCount = 3

	res := Merge(prior, []domain.RawPost{updated}, "alice", fixedClock)

	rec := res.Set.Records[res.Set.Find("p1")]
	assert.Equal(t, "edited caption", rec.Caption)
	assert.Equal(t, 7, rec.LikeCount)
	assert.Equal(t, 3, rec.CommentCount)
}

func TestMergeKeepsCapturedDescriptiveFields(t *testing.T) {
	first := rawPost("p1", 1700000000)
	first.Caption = &domain.RawCaption{Text: "original caption"}
	first.LikeCount = 10
	first.CommentCount = 4
	prior := Merge(domain.RecordSet{}, []domain.RawPost{first}, "alice", fixedClock).Set

	refetched := rawPost("p1", 1700000000)
	refetched.Caption = &domain.RawCaption{Text: "rewritten caption"}
	refetched.LikeCount = 99
	refetched.CommentCount = 50

	res := Merge(prior, []domain.RawPost{refetched}, "alice", fixedClock)

	rec := res.Set.Records[res.Set.Find("p1")]
	assert.Equal(t, "original caption", rec.Caption)
	assert.Equal(t, 10, rec.LikeCount)
	assert.Equal(t, 4, rec.CommentCount)
}

func TestMergeRefreshesExpiredMediaURLs(t *testing.T) {
	prior := Merge(domain.RecordSet{}, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock).Set

	refetched := rawPost("p1", 1700000000)
	refetched.ThumbnailURL = "https://cdn.example.com/p1.jpg?sig=fresh"

	res := Merge(prior, []domain.RawPost{refetched}, "alice", fixedClock)

	rec := res.Set.Records[res.Set.Find("p1")]
	assert.Equal(t, []string{"https://cdn.example.com/p1.jpg?sig=fresh"}, rec.MediaURLs)
}

func TestMergeEmptyBatchLeavesPriorUnchanged(t *testing.T) {
	prior := Merge(domain.RecordSet{}, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock).Set

	res := Merge(prior, nil, "alice", fixedClock)

	require.Equal(t, 0, res.Created)
	require.Equal(t, 0, res.Updated)
	require.Equal(t, prior.Len(), res.Set.Len())
}

func TestMergeAllNormalizationFailuresLeavePriorUnchanged(t *testing.T) {
	prior := Merge(domain.RecordSet{}, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock).Set

	res := Merge(prior, []domain.RawPost{{MediaName: "post"}, {MediaName: "reel"}}, "alice", fixedClock)

	require.Len(t, res.Skipped, 2)
	require.Equal(t, 0, res.Created)
	require.Equal(t, prior.Len(), res.Set.Len())

	var nerr *NormalizationError
	require.ErrorAs(t, res.Skipped[0], &nerr)
	assert.Equal(t, 0, nerr.Index)
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	prior := Merge(domain.RecordSet{}, []domain.RawPost{rawPost("p1", 1700000000)}, "alice", fixedClock).Set

	updated := rawPost("p1", 1700000000)
	updated.LikeCount = 99
	_ = Merge(prior, []domain.RawPost{updated}, "alice", fixedClock)

	assert.Equal(t, 0, prior.Records[0].LikeCount)
}

func TestNormalizeTimestampPrecedence(t *testing.T) {
	priorTS := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	prior := &domain.PostRecord{PostID: "p1", Timestamp: priorTS}

	t.Run("taken_at wins", func(t *testing.T) {
		raw := rawPost("p1", 1700000000)
		raw.DeviceTimestamp = 1600000000
		rec, err := Normalize(raw, "alice", prior, fixedClock)
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.Timestamp)
	})

	t.Run("device timestamp second", func(t *testing.T) {
		raw := rawPost("p1", 0)
		raw.DeviceTimestamp = 1600000000
		rec, err := Normalize(raw, "alice", prior, fixedClock)
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1600000000, 0).UTC(), rec.Timestamp)
	})

	t.Run("prior record third", func(t *testing.T) {
		rec, err := Normalize(rawPost("p1", 0), "alice", prior, fixedClock)
		require.NoError(t, err)
		assert.Equal(t, priorTS, rec.Timestamp)
	})

	t.Run("wall clock last", func(t *testing.T) {
		rec, err := Normalize(rawPost("p1", 0), "alice", nil, fixedClock)
		require.NoError(t, err)
		assert.Equal(t, fixedNow, rec.Timestamp)
	})
}

func TestNormalizeUnknownMediaTypeDefaultsToPost(t *testing.T) {
	raw := rawPost("p1", 1700000000)
	raw.MediaName = "igtv"

	rec, err := Normalize(raw, "alice", nil, fixedClock)

	require.NoError(t, err)
	assert.Equal(t, domain.MediaTypePost, rec.MediaType)
}

func TestNormalizeRejectsMissingID(t *testing.T) {
	_, err := Normalize(domain.RawPost{MediaName: "post"}, "alice", nil, fixedClock)
	require.Error(t, err)
}

func TestNormalizeAlbumKeepsCarouselOrder(t *testing.T) {
	raw := domain.RawPost{
		ID:        "a1",
		MediaName: "album",
		TakenAt:   1700000000,
		CarouselMedia: []domain.RawCarouselItem{
			{ThumbnailURL: "https://cdn.example.com/first.jpg"},
			{VideoURL: "https://cdn.example.com/second.mp4", ThumbnailURL: "https://cdn.example.com/second.jpg"},
			{ThumbnailURL: "https://cdn.example.com/third.jpg"},
		},
	}

	rec, err := Normalize(raw, "alice", nil, fixedClock)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example.com/first.jpg",
		"https://cdn.example.com/second.mp4",
		"https://cdn.example.com/third.jpg",
	}, rec.MediaURLs)
	assert.Equal(t, "instagram/alice/media/post__a1__album", rec.StorageLocation)
}

func TestNormalizeReelPrefersVideoURL(t *testing.T) {
	raw := domain.RawPost{
		ID:           "r1",
		MediaName:    "reel",
		TakenAt:      1700000000,
		VideoURL:     "https://cdn.example.com/r1.mp4",
		ThumbnailURL: "https://cdn.example.com/r1.jpg",
	}

	rec, err := Normalize(raw, "alice", nil, fixedClock)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/r1.mp4"}, rec.MediaURLs)
	assert.Equal(t, "instagram/alice/media/post__r1__reel.mp4", rec.StorageLocation)
}
