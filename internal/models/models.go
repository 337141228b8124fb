package models

import "time"

// MediaKind classifies the attachments of a post.
type MediaKind string

const (
	MediaTextOnly MediaKind = "text_only"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
)

// PostMetrics holds the engagement counters of a post. All values are
// non-negative; missing counters default to zero.
type PostMetrics struct {
	Likes       int `json:"likes"`
	Replies     int `json:"replies"`
	Retweets    int `json:"retweets"`
	Quotes      int `json:"quotes"`
	Impressions int `json:"impressions"`
	Bookmarks   int `json:"bookmarks"`
}

// CanonicalPost is one ingested social post. Records are immutable once
// stored; the same ExternalID may only re-enter a stream after its dedup
// marker expires.
type CanonicalPost struct {
	ExternalID            string      `json:"external_id"`
	AuthorName            string      `json:"author_name"`
	AuthorHandle          string      `json:"author_handle"`
	Text                  string      `json:"text"`
	MediaKind             MediaKind   `json:"media_kind"`
	IsReply               bool        `json:"is_reply"`
	ReplyToHandle         string      `json:"reply_to_handle,omitempty"`
	Metrics               PostMetrics `json:"metrics"`
	AuthorVerified        bool        `json:"author_verified"`
	AuthorProfileImageURL string      `json:"author_profile_image_url"`
	AuthorLocation        string      `json:"author_location,omitempty"`
	AuthorFollowerCount   int         `json:"author_follower_count"`
	AuthorFollowingCount  int         `json:"author_following_count"`
	AuthorCreatedAt       *time.Time  `json:"author_created_at,omitempty"`
	PostedAt              time.Time   `json:"posted_at"`
	CollectedAt           time.Time   `json:"collected_at"`
}

// ExampleTweet is one illustrative post attached to a trend, with the
// author metadata the generation contract asks for.
type ExampleTweet struct {
	Text          string `json:"text"`
	AuthorName    string `json:"author_name"`
	Handle        string `json:"handle"`
	Verified      bool   `json:"verified"`
	ProfilePicURL string `json:"profile_pic_url"`
	Timestamp     string `json:"timestamp"`
	Likes         int    `json:"likes"`
	Replies       int    `json:"replies"`
	Retweets      int    `json:"retweets"`
}

// TrendEntity is one extracted topic. Entities are produced only by the
// trend parser and fully supersede the previous run's entities for the
// same category.
type TrendEntity struct {
	Header        string         `json:"header"`
	Sentiment     string         `json:"sentiment"`
	Context       string         `json:"context"`
	SubTopics     []string       `json:"sub_topics"`
	ExampleTweets []ExampleTweet `json:"example_tweets"`
}

// ExtractionResult is the outcome of one trend extraction run.
type ExtractionResult struct {
	Category     string        `json:"category"`
	Entities     []TrendEntity `json:"entities"`
	RawResponse  string        `json:"-"`
	PostCount    int           `json:"post_count"`
	UsedFallback bool          `json:"used_fallback"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// QueueStatus is the lifecycle state of a newsletter queue item.
// "Failed but retryable" is represented as StatusPending with a non-empty
// LastError and an incremented AttemptCount.
type QueueStatus string

const (
	StatusPending  QueueStatus = "pending"
	StatusInFlight QueueStatus = "in_flight"
	StatusDone     QueueStatus = "done"
)

// MaxAttempts bounds how many times a queue item may be claimed before it
// becomes permanently ineligible for processing.
const MaxAttempts = 3

// NewsletterQueueItem is one pending generation obligation. At most one
// live item exists per (UserID, ScheduledDate).
type NewsletterQueueItem struct {
	ID            int64       `json:"id"`
	UserID        string      `json:"user_id"`
	ScheduledDate time.Time   `json:"scheduled_date"`
	Status        QueueStatus `json:"status"`
	AttemptCount  int         `json:"attempt_count"`
	LastError     string      `json:"last_error,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Subscriber is a newsletter recipient as stored in the subscriber table.
type Subscriber struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}
