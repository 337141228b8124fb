package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/signalbrief/trends-pipeline/internal/kvstore"
	"github.com/signalbrief/trends-pipeline/internal/llm"
	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/sirupsen/logrus"
)

// corpusSize is how many stored records one extraction run reads.
const corpusSize = 50

// systemContract is the structural contract sent to the text-generation
// provider. The parser tolerates violations of every line of it.
const systemContract = `You are a social media trend analyst. Analyze the tweets in the user message and identify exactly 4 trending topics.

Respond with exactly 4 blocks, each delimited by matching tags <Trend1>...</Trend1> through <Trend4>...</Trend4>. Each block must contain, in order:
- a header line of 3-7 words inside square brackets, e.g. [AI Agents Enter The Workplace]
- a line "Sentiment: <one descriptive word>"
- a line "Context: <summary of at most 20 words>"
- a line "Sub-topics: [topic one, topic two, topic three]"
- exactly 3 example tweets, each as two lines:
  Tweet1: <the tweet text>
  Metadata1: {"authorName": "...", "handle": "...", "verified": true, "profilePicUrl": "...", "timestamp": "...", "likes": 0, "replies": 0, "retweets": 0}

Do not add any text outside the four blocks.`

var urlRe = regexp.MustCompile(`https?://\S+`)

// Archiver receives a copy of every raw provider response. Archive
// failures are never fatal to an extraction run.
type Archiver interface {
	Store(filename string, data []byte) error
}

// Extractor turns a stream of stored posts into structured trend entities
// for one category at a time.
type Extractor struct {
	store     kvstore.Store
	generator llm.Generator
	archive   Archiver // optional
}

// NewExtractor creates a new trend extractor. archive may be nil.
func NewExtractor(store kvstore.Store, generator llm.Generator, archive Archiver) *Extractor {
	return &Extractor{store: store, generator: generator, archive: archive}
}

// StreamKey names the record list of a category.
func StreamKey(category string) string {
	return "posts:" + strings.ToLower(category)
}

// TrendKey names the stored raw response of a category.
func TrendKey(category string) string {
	return "trends:" + strings.ToLower(category)
}

// ExtractTrends reads the category's recent posts, asks the generation
// provider for trend blocks, parses them, and overwrites the stored raw
// response for the category. Store failures on this path are fatal; an
// empty stream is a legitimate empty result, not an error.
func (e *Extractor) ExtractTrends(ctx context.Context, category string) (*models.ExtractionResult, error) {
	entries, err := e.store.LRange(ctx, StreamKey(category), 0, corpusSize-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream for category %q: %w", category, err)
	}

	posts := decodePosts(entries)
	if len(posts) == 0 {
		logrus.Infof("No posts stored for category %q, skipping extraction", category)
		return &models.ExtractionResult{Category: category, GeneratedAt: time.Now()}, nil
	}

	logrus.Infof("Extracting trends for category %q from %d posts", category, len(posts))

	raw, err := e.generator.Complete(ctx, systemContract, FormatCorpus(posts))
	if err != nil {
		return nil, fmt.Errorf("trend generation failed for category %q: %w", category, err)
	}

	entities, usedFallback := ParseTrends(raw)
	if usedFallback {
		logrus.Warnf("Generation response for category %q violated the block contract, used fallback parser (%d entities)",
			category, len(entities))
	}

	// The raw text is the stored artifact; consumers re-parse on read.
	if err := e.store.Set(ctx, TrendKey(category), raw); err != nil {
		return nil, fmt.Errorf("failed to persist trends for category %q: %w", category, err)
	}

	e.archiveResponse(category, raw)

	return &models.ExtractionResult{
		Category:     category,
		Entities:     entities,
		RawResponse:  raw,
		PostCount:    len(posts),
		UsedFallback: usedFallback,
		GeneratedAt:  time.Now(),
	}, nil
}

// LatestTrends re-parses the stored raw response for a category. A missing
// key yields an empty result.
func (e *Extractor) LatestTrends(ctx context.Context, category string) (*models.ExtractionResult, error) {
	raw, found, err := e.store.Get(ctx, TrendKey(category))
	if err != nil {
		return nil, fmt.Errorf("failed to read trends for category %q: %w", category, err)
	}

	result := &models.ExtractionResult{Category: category, GeneratedAt: time.Now()}
	if !found || raw == "" {
		return result, nil
	}

	result.RawResponse = raw
	result.Entities, result.UsedFallback = ParseTrends(raw)
	return result, nil
}

func (e *Extractor) archiveResponse(category, raw string) {
	if e.archive == nil {
		return
	}

	filename := fmt.Sprintf("trends-%s-%s.txt", category, time.Now().Format("2006-01-02-15-04-05"))
	if err := e.archive.Store(filename, []byte(raw)); err != nil {
		logrus.Errorf("Failed to archive raw response %s: %v", filename, err)
	}
}

// legacyWrapper is the older stored shape: a wrapper object holding the
// records in an elements array.
type legacyWrapper struct {
	Elements []models.CanonicalPost `json:"elements"`
}

// decodePosts deserializes stored entries, accepting both the canonical
// record shape and the legacy wrapper. Entries matching neither are
// dropped silently rather than aborting the run.
func decodePosts(entries []string) []models.CanonicalPost {
	var posts []models.CanonicalPost

	for _, entry := range entries {
		var post models.CanonicalPost
		if err := json.Unmarshal([]byte(entry), &post); err == nil {
			if post.ExternalID != "" || post.Text != "" {
				posts = append(posts, post)
				continue
			}
		}

		var wrapper legacyWrapper
		if err := json.Unmarshal([]byte(entry), &wrapper); err == nil && len(wrapper.Elements) > 0 {
			posts = append(posts, wrapper.Elements...)
		}
	}

	return posts
}

// FormatCorpus renders the surviving posts as one newline-delimited block,
// one record per section, with URLs stripped from the tweet text.
func FormatCorpus(posts []models.CanonicalPost) string {
	var b strings.Builder

	for i, post := range posts {
		if i > 0 {
			b.WriteString("\n---\n")
		}

		verified := ""
		if post.AuthorVerified {
			verified = " [verified]"
		}

		fmt.Fprintf(&b, "Tweet: %s\n", strings.TrimSpace(urlRe.ReplaceAllString(post.Text, "")))
		fmt.Fprintf(&b, "Author: %s (@%s)%s\n", post.AuthorName, post.AuthorHandle, verified)
		fmt.Fprintf(&b, "Profile image: %s\n", post.AuthorProfileImageURL)
		fmt.Fprintf(&b, "Posted: %s\n", post.PostedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "Engagement: likes=%d replies=%d retweets=%d quotes=%d",
			post.Metrics.Likes, post.Metrics.Replies, post.Metrics.Retweets, post.Metrics.Quotes)
	}

	return b.String()
}
