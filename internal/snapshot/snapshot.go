package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// Version is the snapshot schema version. Bump on any breaking change to
// the row shape; Decode rejects versions it does not understand.
const Version = 1

// document is the persisted snapshot shape. The adapter owns this schema:
// list-valued fields stay ordered JSON arrays, findings stay a JSON object,
// and a never-set enrichment timestamp is JSON null, distinct from the zero
// time and from an empty string.
type document struct {
	Version     int         `json:"version"`
	Username    string      `json:"username"`
	GeneratedAt time.Time   `json:"generated_at"`
	Records     []recordRow `json:"records"`
}

type recordRow struct {
	PostID          string          `json:"post_id"`
	Username        string          `json:"username"`
	Caption         string          `json:"caption"`
	Timestamp       time.Time       `json:"timestamp"`
	LikeCount       int             `json:"like_count"`
	CommentCount    int             `json:"comment_count"`
	MediaType       string          `json:"media_type"`
	MediaURLs       []string        `json:"media_urls"`
	StorageLocation string          `json:"storage_location"`
	Description     string          `json:"enrichment_description"`
	Findings        domain.Findings `json:"enrichment_results"`
	ProcessedAt     *time.Time      `json:"enrichment_timestamp"`
}

// Encode serializes a RecordSet into a snapshot document.
func Encode(set domain.RecordSet, now time.Time) ([]byte, error) {
	doc := document{
		Version:     Version,
		Username:    set.Username,
		GeneratedAt: now.UTC(),
		Records:     make([]recordRow, 0, len(set.Records)),
	}
	for _, r := range set.Records {
		urls := r.MediaURLs
		if urls == nil {
			// Persist an empty list, never null, so the round trip is exact.
			urls = []string{}
		}
		doc.Records = append(doc.Records, recordRow{
			PostID:          r.PostID,
			Username:        r.Username,
			Caption:         r.Caption,
			Timestamp:       r.Timestamp,
			LikeCount:       r.LikeCount,
			CommentCount:    r.CommentCount,
			MediaType:       string(r.MediaType),
			MediaURLs:       urls,
			StorageLocation: r.StorageLocation,
			Description:     r.Enrichment.Description,
			Findings:        r.Enrichment.Findings,
			ProcessedAt:     r.Enrichment.ProcessedAt,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode deserializes a snapshot document back into a RecordSet.
func Decode(data []byte) (domain.RecordSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.RecordSet{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Version != Version {
		return domain.RecordSet{}, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}

	set := domain.RecordSet{
		Username: doc.Username,
		Records:  make([]domain.PostRecord, 0, len(doc.Records)),
	}
	for _, row := range doc.Records {
		mt, ok := domain.ParseMediaType(row.MediaType)
		if !ok {
			// Tolerate snapshots written before a type was recognized.
			mt = domain.MediaTypePost
		}
		urls := row.MediaURLs
		if urls == nil {
			urls = []string{}
		}
		set.Records = append(set.Records, domain.PostRecord{
			PostID:          row.PostID,
			Username:        row.Username,
			Caption:         row.Caption,
			Timestamp:       row.Timestamp,
			LikeCount:       row.LikeCount,
			CommentCount:    row.CommentCount,
			MediaType:       mt,
			MediaURLs:       urls,
			StorageLocation: row.StorageLocation,
			Enrichment: domain.Enrichment{
				Description: row.Description,
				Findings:    row.Findings,
				ProcessedAt: row.ProcessedAt,
			},
		})
	}
	return set, nil
}
