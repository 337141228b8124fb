package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/signalbrief/trends-pipeline/internal/config"
	"github.com/sirupsen/logrus"
)

// ProviderError is returned when the scraping provider answers with a
// non-success status.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("scraper provider returned status %d: %s", e.Status, e.Body)
}

// Collector fetches raw posts from the external scraping provider. The
// fetch itself is pure: it has no side effects on the store.
type Collector struct {
	token  string
	client *resty.Client
}

// NewCollector creates a new scraping provider client
func NewCollector(baseURL, token string) *Collector {
	return &Collector{
		token: token,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(60*time.Second).
			SetHeader("User-Agent", "signalbrief-pipeline/1.0"),
	}
}

type scrapeRequest struct {
	SourceListID string `json:"source_list_id"`
	MaxItems     int    `json:"max_items"`
	WindowHours  int    `json:"window_hours"`
	Language     string `json:"language"`
}

// Collect runs the provider query described by spec and returns the raw
// items. The provider response is treated as untrusted; decoding failures
// of the envelope are hard errors, but every field inside an item is
// optional (see MapPost).
func (c *Collector) Collect(ctx context.Context, spec config.CategorySpec) ([]RawPost, error) {
	logrus.Infof("Collecting posts for category %q (list %s, max %d, window %dh)",
		spec.Name, spec.SourceList, spec.MaxItems, spec.WindowHours)

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetHeader("Content-Type", "application/json").
		SetBody(scrapeRequest{
			SourceListID: spec.SourceList,
			MaxItems:     spec.MaxItems,
			WindowHours:  spec.WindowHours,
			Language:     spec.Language,
		}).
		Post("/scrape")

	if err != nil {
		return nil, fmt.Errorf("scraper request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &ProviderError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	var items []RawPost
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, fmt.Errorf("failed to parse scraper response: %w", err)
	}

	logrus.Infof("Scraper returned %d items for category %q", len(items), spec.Name)
	return items, nil
}
