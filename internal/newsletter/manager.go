package newsletter

import (
	"context"
	"time"

	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/sirupsen/logrus"
)

// Generator produces and delivers one newsletter. It is an external
// collaborator from the queue's point of view; the manager only cares
// whether it succeeded.
type Generator interface {
	Generate(ctx context.Context, sub models.Subscriber, date time.Time) error
}

// QueueStore is the persistence contract the manager drives.
type QueueStore interface {
	Populate(ctx context.Context, date time.Time) (int64, error)
	ClaimNext(ctx context.Context) (*models.NewsletterQueueItem, bool, error)
	MarkDone(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, lastError string) error
	Cleanup(ctx context.Context, asOf time.Time) (int64, error)
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error)
}

// ProcessResult reports one ProcessOne invocation.
type ProcessResult struct {
	Claimed      bool   `json:"claimed"`
	ItemID       int64  `json:"item_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Delivered    bool   `json:"delivered"`
	AttemptCount int    `json:"attempt_count,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Manager wires the queue store to the generation collaborator. Each of
// its methods is one independently scheduled job.
type Manager struct {
	store     QueueStore
	generator Generator
}

// NewManager creates a new queue manager.
func NewManager(store QueueStore, generator Generator) *Manager {
	return &Manager{store: store, generator: generator}
}

// Populate enqueues eligible subscribers for the given date. Meant to run
// once per day; reruns are no-ops for already-queued users.
func (m *Manager) Populate(ctx context.Context, date time.Time) (int64, error) {
	count, err := m.store.Populate(ctx, date)
	if err != nil {
		return 0, err
	}

	logrus.Infof("Populated newsletter queue for %s with %d new items", date.Format("2006-01-02"), count)
	return count, nil
}

// ProcessOne claims at most one item and attempts generation for it. It is
// designed for a tight scheduler cadence: one item per tick gives natural
// backpressure and keeps one bad user profile from blocking the rest of
// the queue. No eligible item is a no-op, not an error.
func (m *Manager) ProcessOne(ctx context.Context) (*ProcessResult, error) {
	item, claimed, err := m.store.ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	if !claimed {
		logrus.Debug("No eligible newsletter queue item to process")
		return &ProcessResult{Claimed: false}, nil
	}

	result := &ProcessResult{
		Claimed:      true,
		ItemID:       item.ID,
		UserID:       item.UserID,
		AttemptCount: item.AttemptCount,
	}

	logrus.Infof("Processing newsletter queue item %d for user %s (attempt %d)",
		item.ID, item.UserID, item.AttemptCount)

	sub, err := m.store.GetSubscriber(ctx, item.UserID)
	if err != nil {
		return m.retry(ctx, result, err)
	}

	if err := m.generator.Generate(ctx, *sub, item.ScheduledDate); err != nil {
		return m.retry(ctx, result, err)
	}

	if err := m.store.MarkDone(ctx, item.ID); err != nil {
		return nil, err
	}

	result.Delivered = true
	logrus.Infof("Newsletter for user %s delivered", item.UserID)
	return result, nil
}

func (m *Manager) retry(ctx context.Context, result *ProcessResult, cause error) (*ProcessResult, error) {
	logrus.Errorf("Newsletter generation for item %d failed (attempt %d): %v",
		result.ItemID, result.AttemptCount, cause)

	result.LastError = cause.Error()
	if err := m.store.MarkRetry(ctx, result.ItemID, cause.Error()); err != nil {
		return nil, err
	}

	return result, nil
}

// Cleanup purges every item scheduled on or before asOf.
func (m *Manager) Cleanup(ctx context.Context, asOf time.Time) (int64, error) {
	deleted, err := m.store.Cleanup(ctx, asOf)
	if err != nil {
		return 0, err
	}

	logrus.Infof("Cleaned up %d newsletter queue items scheduled on or before %s",
		deleted, asOf.Format("2006-01-02"))
	return deleted, nil
}

// RequeueStale rescues items stuck in_flight for longer than age.
func (m *Manager) RequeueStale(ctx context.Context, age time.Duration) (int64, error) {
	requeued, err := m.store.RequeueStale(ctx, time.Now().Add(-age))
	if err != nil {
		return 0, err
	}

	if requeued > 0 {
		logrus.Warnf("Requeued %d newsletter items stuck in flight for more than %v", requeued, age)
	}
	return requeued, nil
}
