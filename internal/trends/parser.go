package trends

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/sirupsen/logrus"
)

// Literal defaults used when a labeled line is missing from a block.
const (
	defaultSentiment = "neutral"
	defaultContext   = "No context available"
)

var (
	blockRe           = regexp.MustCompile(`(?s)<Trend(\d+)>(.*?)</Trend\d+>`)
	bracketHeaderRe   = regexp.MustCompile(`\[([^\[\]]+)\]`)
	sentimentLineRe   = regexp.MustCompile(`(?im)^[\s*#-]*sentiment\s*[:\-]\s*(.+)$`)
	contextLineRe     = regexp.MustCompile(`(?im)^[\s*#-]*context\s*[:\-]\s*(.+)$`)
	subTopicsInlineRe = regexp.MustCompile(`(?is)sub[\s_-]?topics?\s*[:\-]?\s*\[([^\]]*)\]`)
	bulletLineRe      = regexp.MustCompile(`(?m)^\s*•\s*(.+)$`)
	tweetLineRe       = regexp.MustCompile(`(?im)^[\s*#-]*(?:example\s*)?tweet\s*\d*\s*[:\-]\s*(.+)$`)
	metadataLineRe    = regexp.MustCompile(`(?im)^[\s*#-]*metadata\s*\d*\s*[:\-]\s*(\{.*\})\s*$`)
	sectionSplitRe    = regexp.MustCompile(`\r?\n\s*\r?\n`)
)

// Targeted recovery patterns for metadata objects that are not valid JSON.
var (
	metaStringRe = map[string]*regexp.Regexp{
		"authorName":    regexp.MustCompile(`"authorName"\s*:\s*"([^"]*)"`),
		"handle":        regexp.MustCompile(`"handle"\s*:\s*"([^"]*)"`),
		"profilePicUrl": regexp.MustCompile(`"profilePicUrl"\s*:\s*"([^"]*)"`),
		"timestamp":     regexp.MustCompile(`"timestamp"\s*:\s*"([^"]*)"`),
	}
	metaNumberRe = map[string]*regexp.Regexp{
		"likes":    regexp.MustCompile(`"likes"\s*:\s*(\d+)`),
		"replies":  regexp.MustCompile(`"replies"\s*:\s*(\d+)`),
		"retweets": regexp.MustCompile(`"retweets"\s*:\s*(\d+)`),
	}
	metaVerifiedRe = regexp.MustCompile(`"verified"\s*:\s*(true|false)`)
)

// ParseTrends turns a raw generation response into trend entities. It is
// deterministic for a given input because the stored artifact is the raw
// text, re-parsed on every read.
//
// Primary path: every <TrendK> block yields one entity, with per-field
// fallbacks. A block that cannot be parsed at all is omitted without
// affecting its siblings. Degraded path: when no <TrendK> block exists
// anywhere, blank-line sections of the raw text become low-fidelity
// entities so a malformed response never produces zero results on its own.
func ParseTrends(raw string) ([]models.TrendEntity, bool) {
	matches := blockRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return parseFallbackSections(raw), true
	}

	var entities []models.TrendEntity
	for _, match := range matches {
		entity, ok := parseBlockSafe(match[2])
		if !ok {
			logrus.Warnf("Dropping unparseable trend block %s", match[1])
			continue
		}
		entities = append(entities, entity)
	}

	return entities, false
}

// parseBlockSafe shields extraction of the remaining blocks from a panic
// inside one block.
func parseBlockSafe(block string) (entity models.TrendEntity, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Panic while parsing trend block: %v", r)
			ok = false
		}
	}()
	return parseBlock(block), true
}

func parseBlock(block string) models.TrendEntity {
	return models.TrendEntity{
		Header:        parseHeader(block),
		Sentiment:     parseLabeledLine(block, sentimentLineRe, defaultSentiment),
		Context:       parseLabeledLine(block, contextLineRe, defaultContext),
		SubTopics:     parseSubTopics(block),
		ExampleTweets: parseExampleTweets(block),
	}
}

// parseHeader prefers a bracketed header line and falls back to the first
// non-empty line with leading markup stripped.
func parseHeader(block string) string {
	if m := bracketHeaderRe.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}

	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.Trim(trimmed, "#*[] \t")
	}

	return ""
}

func parseLabeledLine(block string, re *regexp.Regexp, fallback string) string {
	if m := re.FindStringSubmatch(block); m != nil {
		value := strings.TrimSpace(strings.Trim(m[1], "*"))
		if value != "" {
			return value
		}
	}
	return fallback
}

// parseSubTopics reads a bracket-delimited list first, bullet-point lines
// as the secondary pattern, and otherwise returns an empty list.
func parseSubTopics(block string) []string {
	if m := subTopicsInlineRe.FindStringSubmatch(block); m != nil {
		return splitTopicList(m[1])
	}

	var topics []string
	for _, m := range bulletLineRe.FindAllStringSubmatch(block, -1) {
		topic := strings.TrimSpace(m[1])
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

func splitTopicList(list string) []string {
	var topics []string
	for _, part := range strings.Split(list, ",") {
		topic := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"'`))
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

// parseExampleTweets pairs tweet-text captures with metadata captures
// positionally: tweet[i] gets metadata[i]. At most 3 examples are kept.
func parseExampleTweets(block string) []models.ExampleTweet {
	tweetMatches := tweetLineRe.FindAllStringSubmatch(block, -1)
	metaMatches := metadataLineRe.FindAllStringSubmatch(block, -1)

	var examples []models.ExampleTweet
	for i, tm := range tweetMatches {
		if len(examples) == 3 {
			break
		}

		example := models.ExampleTweet{
			Text: strings.TrimSpace(strings.Trim(strings.TrimSpace(tm[1]), `"`)),
		}

		if i < len(metaMatches) {
			applyMetadata(&example, metaMatches[i][1])
		}

		examples = append(examples, example)
	}

	return examples
}

type exampleMetadata struct {
	AuthorName    string `json:"authorName"`
	Handle        string `json:"handle"`
	Verified      bool   `json:"verified"`
	ProfilePicURL string `json:"profilePicUrl"`
	Timestamp     string `json:"timestamp"`
	Likes         int    `json:"likes"`
	Replies       int    `json:"replies"`
	Retweets      int    `json:"retweets"`
}

// applyMetadata decodes the inline JSON object; when it is not valid JSON
// the individual fields are recovered with targeted patterns and numeric
// and boolean defaults of 0/false.
func applyMetadata(example *models.ExampleTweet, raw string) {
	var meta exampleMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err == nil {
		example.AuthorName = meta.AuthorName
		example.Handle = meta.Handle
		example.Verified = meta.Verified
		example.ProfilePicURL = meta.ProfilePicURL
		example.Timestamp = meta.Timestamp
		example.Likes = meta.Likes
		example.Replies = meta.Replies
		example.Retweets = meta.Retweets
		return
	}

	logrus.Debugf("Example metadata is not valid JSON, recovering field by field")

	lookup := func(key string) string {
		if m := metaStringRe[key].FindStringSubmatch(raw); m != nil {
			return m[1]
		}
		return ""
	}
	count := func(key string) int {
		if m := metaNumberRe[key].FindStringSubmatch(raw); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		return 0
	}

	example.AuthorName = lookup("authorName")
	example.Handle = lookup("handle")
	example.ProfilePicURL = lookup("profilePicUrl")
	example.Timestamp = lookup("timestamp")
	example.Likes = count("likes")
	example.Replies = count("replies")
	example.Retweets = count("retweets")
	if m := metaVerifiedRe.FindStringSubmatch(raw); m != nil {
		example.Verified = m[1] == "true"
	}
}

// parseFallbackSections synthesizes one low-fidelity entity per non-empty
// blank-line-separated section: first line as header, the whole section as
// context, no sub-topics or examples.
func parseFallbackSections(raw string) []models.TrendEntity {
	var entities []models.TrendEntity

	for _, section := range sectionSplitRe.Split(raw, -1) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		lines := strings.SplitN(section, "\n", 2)
		header := strings.Trim(strings.TrimSpace(lines[0]), "#*[] \t")

		entities = append(entities, models.TrendEntity{
			Header:    header,
			Sentiment: defaultSentiment,
			Context:   section,
			SubTopics: []string{},
		})
	}

	return entities
}
