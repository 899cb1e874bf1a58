package domain

// RawPost is one item from the scraping API's posts feed, declared with the
// fields the normalizer actually reads. ID is the only required field;
// everything else is optional and may be absent or zero in the wire payload.
type RawPost struct {
	ID              string            `json:"id"`
	Code            string            `json:"code"`
	MediaName       string            `json:"media_name"`
	Caption         *RawCaption       `json:"caption"`
	TakenAt         int64             `json:"taken_at"`
	DeviceTimestamp int64             `json:"device_timestamp"`
	LikeCount       int               `json:"like_count"`
	CommentCount    int               `json:"comment_count"`
	ThumbnailURL    string            `json:"thumbnail_url"`
	VideoURL        string            `json:"video_url"`
	CarouselMedia   []RawCarouselItem `json:"carousel_media"`
}

type RawCaption struct {
	Text string `json:"text"`
}

type RawCarouselItem struct {
	ThumbnailURL string `json:"thumbnail_url"`
	VideoURL     string `json:"video_url"`
}

// CaptionText returns the caption body, tolerating an absent caption object.
func (p RawPost) CaptionText() string {
	if p.Caption == nil {
		return ""
	}
	return p.Caption.Text
}
