package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/signalbrief/trends-pipeline/internal/config"
	"github.com/signalbrief/trends-pipeline/internal/ingest"
	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/signalbrief/trends-pipeline/internal/scraper"
	"github.com/signalbrief/trends-pipeline/internal/trends"
	"github.com/sirupsen/logrus"
)

// PostFetcher fetches raw posts for one category query.
type PostFetcher interface {
	Collect(ctx context.Context, spec config.CategorySpec) ([]scraper.RawPost, error)
}

// Deduper filters and appends canonical posts onto a stream.
type Deduper interface {
	ProcessAndStore(ctx context.Context, streamKey string, posts []models.CanonicalPost) ingest.Result
}

// TrendSource runs and reads back trend extractions.
type TrendSource interface {
	ExtractTrends(ctx context.Context, category string) (*models.ExtractionResult, error)
	LatestTrends(ctx context.Context, category string) (*models.ExtractionResult, error)
}

// Service glues the content flow together: Collector -> Dedup Gate ->
// Store, and separately the Trend Extractor over the stored stream. The
// two flows share only the key-value store.
type Service struct {
	collector  PostFetcher
	gate       Deduper
	extractor  TrendSource
	categories map[string]config.CategorySpec
}

// NewService creates the pipeline service for the configured categories.
func NewService(collector PostFetcher, gate Deduper, extractor TrendSource, specs []config.CategorySpec) *Service {
	categories := make(map[string]config.CategorySpec, len(specs))
	for _, spec := range specs {
		categories[spec.Name] = spec
	}

	return &Service{
		collector:  collector,
		gate:       gate,
		extractor:  extractor,
		categories: categories,
	}
}

// Category looks up the query spec of a configured category.
func (s *Service) Category(name string) (config.CategorySpec, bool) {
	spec, ok := s.categories[name]
	return spec, ok
}

// Categories returns the configured category names.
func (s *Service) Categories() []string {
	names := make([]string, 0, len(s.categories))
	for name := range s.categories {
		names = append(names, name)
	}
	return names
}

// Collect fetches the category's posts from the scraping provider and
// pushes them through the dedup gate into the stream. Provider failures
// are hard errors; per-post store failures are absorbed by the gate.
func (s *Service) Collect(ctx context.Context, category string) (*ingest.Result, error) {
	spec, ok := s.Category(category)
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	raws, err := s.collector.Collect(ctx, spec)
	if err != nil {
		return nil, err
	}

	posts := scraper.MapPosts(raws, time.Now().UTC())
	result := s.gate.ProcessAndStore(ctx, trends.StreamKey(category), posts)

	logrus.Infof("Collect run for category %q finished: %+v", category, result)
	return &result, nil
}

// Extract runs one trend extraction over the category's stored stream.
func (s *Service) Extract(ctx context.Context, category string) (*models.ExtractionResult, error) {
	if _, ok := s.Category(category); !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return s.extractor.ExtractTrends(ctx, category)
}

// Latest re-parses the last stored raw response for the category.
func (s *Service) Latest(ctx context.Context, category string) (*models.ExtractionResult, error) {
	if _, ok := s.Category(category); !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return s.extractor.LatestTrends(ctx, category)
}
