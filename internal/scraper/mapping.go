package scraper

import (
	"time"

	"github.com/signalbrief/trends-pipeline/internal/models"
)

// RawPost mirrors one item of the scraper response. Every field is
// optional; the provider omits anything it could not resolve, so the
// decode step must never assume presence.
type RawPost struct {
	ID                string      `json:"id"`
	Text              string      `json:"text"`
	IsReply           bool        `json:"is_reply"`
	InReplyToUsername string      `json:"in_reply_to_username"`
	CreatedAt         string      `json:"created_at"`
	LikeCount         int         `json:"like_count"`
	ReplyCount        int         `json:"reply_count"`
	RetweetCount      int         `json:"retweet_count"`
	QuoteCount        int         `json:"quote_count"`
	ViewCount         int         `json:"view_count"`
	BookmarkCount     int         `json:"bookmark_count"`
	Author            *rawAuthor  `json:"author"`
	Media             []rawMedium `json:"media"`
}

type rawAuthor struct {
	Name           string `json:"name"`
	UserName       string `json:"user_name"`
	IsVerified     bool   `json:"is_verified"`
	ProfilePicture string `json:"profile_picture"`
	Location       string `json:"location"`
	Followers      int    `json:"followers"`
	Following      int    `json:"following"`
	CreatedAt      string `json:"created_at"`
}

type rawMedium struct {
	Type string `json:"type"`
}

// MapPost converts one raw scraper item into a CanonicalPost, applying the
// defaulting rules: missing numeric fields become 0, missing booleans
// false, missing strings empty, missing timestamps zero/nil. CollectedAt is
// stamped with now. A post whose ID is absent still maps (with an empty
// ExternalID) and is rejected by the dedup gate downstream.
func MapPost(raw RawPost, now time.Time) models.CanonicalPost {
	post := models.CanonicalPost{
		ExternalID:    raw.ID,
		Text:          raw.Text,
		MediaKind:     classifyMedia(raw.Media),
		IsReply:       raw.IsReply,
		ReplyToHandle: raw.InReplyToUsername,
		Metrics: models.PostMetrics{
			Likes:       nonNegative(raw.LikeCount),
			Replies:     nonNegative(raw.ReplyCount),
			Retweets:    nonNegative(raw.RetweetCount),
			Quotes:      nonNegative(raw.QuoteCount),
			Impressions: nonNegative(raw.ViewCount),
			Bookmarks:   nonNegative(raw.BookmarkCount),
		},
		PostedAt:    parseTimestamp(raw.CreatedAt),
		CollectedAt: now,
	}

	if raw.Author != nil {
		post.AuthorName = raw.Author.Name
		post.AuthorHandle = raw.Author.UserName
		post.AuthorVerified = raw.Author.IsVerified
		post.AuthorProfileImageURL = raw.Author.ProfilePicture
		post.AuthorLocation = raw.Author.Location
		post.AuthorFollowerCount = nonNegative(raw.Author.Followers)
		post.AuthorFollowingCount = nonNegative(raw.Author.Following)
		if ts := parseTimestamp(raw.Author.CreatedAt); !ts.IsZero() {
			post.AuthorCreatedAt = &ts
		}
	}

	return post
}

// MapPosts maps a whole batch with a shared collection timestamp.
func MapPosts(raws []RawPost, now time.Time) []models.CanonicalPost {
	posts := make([]models.CanonicalPost, 0, len(raws))
	for _, raw := range raws {
		posts = append(posts, MapPost(raw, now))
	}
	return posts
}

// classifyMedia inspects the media attachments: video indicator wins over
// photo, first match decides, anything else is text-only.
func classifyMedia(media []rawMedium) models.MediaKind {
	for _, m := range media {
		switch m.Type {
		case "video", "animated_gif":
			return models.MediaVideo
		case "photo", "image":
			return models.MediaPhoto
		}
	}
	return models.MediaTextOnly
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	// Some provider payloads use the legacy Twitter format.
	if ts, err := time.Parse(time.RubyDate, value); err == nil {
		return ts
	}
	return time.Time{}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
