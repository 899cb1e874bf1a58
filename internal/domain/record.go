package domain

import "time"

// MediaType classifies a post's media. Every downstream step branches on it.
type MediaType string

const (
	MediaTypePost  MediaType = "post"
	MediaTypeReel  MediaType = "reel"
	MediaTypeAlbum MediaType = "album"
)

// ParseMediaType maps the scraping API's media_name to a MediaType.
// The second return is false for values outside the closed set.
func ParseMediaType(s string) (MediaType, bool) {
	switch MediaType(s) {
	case MediaTypePost, MediaTypeReel, MediaTypeAlbum:
		return MediaType(s), true
	}
	return MediaTypePost, false
}

// ProcessMode controls which records get (re)enriched in an AI pass.
type ProcessMode string

const (
	ProcessModeUpdateAll       ProcessMode = "update_all"
	ProcessModeUpdateRemaining ProcessMode = "update_remaining"
	ProcessModeSkip            ProcessMode = "skip"
)

func ParseProcessMode(s string) (ProcessMode, bool) {
	switch ProcessMode(s) {
	case ProcessModeUpdateAll, ProcessModeUpdateRemaining, ProcessModeSkip:
		return ProcessMode(s), true
	}
	return ProcessModeUpdateRemaining, false
}

// Findings holds the named results of one content-analysis pass.
// Image analysis fills description/style/text/safety; video analysis
// fills description/dialogue/scenes/safety.
type Findings struct {
	Description string `json:"description"`
	Style       string `json:"style,omitempty"`
	Text        string `json:"text,omitempty"`
	Dialogue    string `json:"dialogue,omitempty"`
	Scenes      string `json:"scenes,omitempty"`
	Safety      string `json:"safety,omitempty"`
}

func (f Findings) IsZero() bool {
	return f == Findings{}
}

// Enrichment is the AI-generated group of a record. It transitions from
// pending (zero value) to complete and is only ever written as a whole:
// ProcessedAt is non-nil exactly when Description is non-empty.
type Enrichment struct {
	Description string
	Findings    Findings
	ProcessedAt *time.Time
}

func (e Enrichment) Complete() bool {
	return e.Description != "" && e.ProcessedAt != nil
}

// PostRecord is one post's tracked state within a username's record set.
type PostRecord struct {
	PostID       string
	Username     string
	Caption      string
	Timestamp    time.Time
	LikeCount    int
	CommentCount int
	MediaType    MediaType
	MediaURLs    []string
	// StorageLocation is the record's claim about where its media lives:
	// a single object path, or a prefix owning multiple objects for albums.
	// Empty only when no media URLs were resolvable.
	StorageLocation string
	Enrichment      Enrichment
}

func (r PostRecord) NeedsEnrichment() bool {
	return !r.Enrichment.Complete()
}

// Clone returns a deep copy; records are passed between phases by value
// and must never share backing slices.
func (r PostRecord) Clone() PostRecord {
	out := r
	if r.MediaURLs != nil {
		out.MediaURLs = append([]string(nil), r.MediaURLs...)
	}
	if r.Enrichment.ProcessedAt != nil {
		t := *r.Enrichment.ProcessedAt
		out.Enrichment.ProcessedAt = &t
	}
	return out
}

// RecordSet is the full collection of PostRecords for one username,
// persisted as a single versioned snapshot. Insertion order carries no
// meaning; PostID is the only addressing key.
type RecordSet struct {
	Username string
	Records  []PostRecord
}

func (s RecordSet) Len() int {
	return len(s.Records)
}

func (s RecordSet) IsEmpty() bool {
	return len(s.Records) == 0
}

// Find returns the index of the record with the given post ID, or -1.
func (s RecordSet) Find(postID string) int {
	for i := range s.Records {
		if s.Records[i].PostID == postID {
			return i
		}
	}
	return -1
}

func (s RecordSet) Contains(postID string) bool {
	return s.Find(postID) >= 0
}

func (s RecordSet) Clone() RecordSet {
	out := RecordSet{Username: s.Username}
	if s.Records != nil {
		out.Records = make([]PostRecord, len(s.Records))
		for i := range s.Records {
			out.Records[i] = s.Records[i].Clone()
		}
	}
	return out
}
