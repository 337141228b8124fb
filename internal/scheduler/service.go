package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/signalbrief/trends-pipeline/internal/config"
	"github.com/signalbrief/trends-pipeline/internal/newsletter"
	"github.com/signalbrief/trends-pipeline/internal/pipeline"
	"github.com/sirupsen/logrus"
)

// Service drives the pipeline's independently-triggered jobs on their
// cadences: collection and extraction daily per category, queue populate
// and cleanup daily, one process tick per minute, and a stale-claim sweep.
type Service struct {
	config   *config.Config
	pipeline *pipeline.Service
	queue    *newsletter.Manager
	cron     *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, p *pipeline.Service, queue *newsletter.Manager) (*Service, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.TimeZone, err)
	}

	return &Service{
		config:   cfg,
		pipeline: p,
		queue:    queue,
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}, nil
}

// Start registers all jobs and begins the schedule.
func (s *Service) Start() error {
	// Collect at 6 AM and extract at 7 AM for every category.
	for _, spec := range s.config.Categories {
		category := spec.Name

		if _, err := s.cron.AddFunc("0 0 6 * * *", func() {
			if _, err := s.pipeline.Collect(context.Background(), category); err != nil {
				logrus.Errorf("Scheduled collect for category %q failed: %v", category, err)
			}
		}); err != nil {
			return err
		}

		if _, err := s.cron.AddFunc("0 0 7 * * *", func() {
			if _, err := s.pipeline.Extract(context.Background(), category); err != nil {
				logrus.Errorf("Scheduled extraction for category %q failed: %v", category, err)
			}
		}); err != nil {
			return err
		}
	}

	// Populate the queue for today at 8 AM.
	if _, err := s.cron.AddFunc("0 0 8 * * *", func() {
		if _, err := s.queue.Populate(context.Background(), time.Now()); err != nil {
			logrus.Errorf("Scheduled queue populate failed: %v", err)
		}
	}); err != nil {
		return err
	}

	// Process one item per minute; each tick is isolated so a bad user
	// profile cannot block the queue.
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		if _, err := s.queue.ProcessOne(context.Background()); err != nil {
			logrus.Errorf("Scheduled queue process tick failed: %v", err)
		}
	}); err != nil {
		return err
	}

	// Sweep stale in-flight claims every 5 minutes.
	if _, err := s.cron.AddFunc("0 */5 * * * *", func() {
		if _, err := s.queue.RequeueStale(context.Background(), s.config.StaleClaimAge); err != nil {
			logrus.Errorf("Scheduled stale-claim sweep failed: %v", err)
		}
	}); err != nil {
		return err
	}

	// Purge the day's rows shortly before midnight.
	if _, err := s.cron.AddFunc("0 50 23 * * *", func() {
		if _, err := s.queue.Cleanup(context.Background(), time.Now()); err != nil {
			logrus.Errorf("Scheduled queue cleanup failed: %v", err)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started for %d categories", len(s.config.Categories))
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
