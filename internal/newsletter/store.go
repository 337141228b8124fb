package newsletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/signalbrief/trends-pipeline/internal/models"
)

// Store persists queue items and subscribers in Postgres. The queue is
// the only shared mutable resource between the three jobs, so every
// mutation is a single statement.
type Store struct {
	db *sql.DB
}

// NewStore creates a queue store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'tech',
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS newsletter_queue (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES subscribers(id),
	scheduled_date DATE NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempt_count INT NOT NULL DEFAULT 0,
	last_error TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, scheduled_date)
);
`

// EnsureSchema creates the queue tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure queue schema: %w", err)
	}
	return nil
}

// Populate enqueues one pending item per active subscriber for the given
// date. The (user_id, scheduled_date) conflict is ignored, so running
// Populate twice for the same date is a no-op for already-queued users.
// Returns the number of newly inserted rows.
func (s *Store) Populate(ctx context.Context, date time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO newsletter_queue (user_id, scheduled_date, status, attempt_count, updated_at)
		SELECT id, $1, 'pending', 0, NOW()
		FROM subscribers
		WHERE active = TRUE
		ON CONFLICT (user_id, scheduled_date) DO NOTHING
	`, date.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to populate queue: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count populated rows: %w", err)
	}

	return inserted, nil
}

// ClaimNext atomically claims the earliest-scheduled eligible item:
// status flips to in_flight and the attempt counter increments in the
// same statement, so concurrent workers can never double-claim. A zero-row
// result means nothing is eligible (or another worker got there first) and
// is reported as claimed=false, not as an error.
func (s *Store) ClaimNext(ctx context.Context) (*models.NewsletterQueueItem, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE newsletter_queue
		SET status = 'in_flight', attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM newsletter_queue
			WHERE status = 'pending' AND attempt_count < $1
			ORDER BY scheduled_date, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, scheduled_date, status, attempt_count, updated_at
	`, models.MaxAttempts)

	var item models.NewsletterQueueItem
	err := row.Scan(&item.ID, &item.UserID, &item.ScheduledDate, &item.Status, &item.AttemptCount, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim queue item: %w", err)
	}

	return &item, true, nil
}

// MarkDone transitions a claimed item to its terminal state.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE newsletter_queue
		SET status = 'done', last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to mark queue item %d done: %w", id, err)
	}
	return nil
}

// MarkRetry puts a claimed item back to pending with the failure recorded.
// The attempt counter stays incremented so the item ages toward the cap.
func (s *Store) MarkRetry(ctx context.Context, id int64, lastError string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE newsletter_queue
		SET status = 'pending', last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, lastError); err != nil {
		return fmt.Errorf("failed to mark queue item %d for retry: %w", id, err)
	}
	return nil
}

// Cleanup deletes every row with scheduled_date <= asOf regardless of
// status: a newsletter that should have gone out today is not worth
// sending tomorrow. Returns the deleted count.
func (s *Store) Cleanup(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM newsletter_queue
		WHERE scheduled_date <= $1
	`, asOf.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up queue: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned-up rows: %w", err)
	}

	return deleted, nil
}

// RequeueStale returns items stuck in_flight since before cutoff to
// pending, so a crashed worker cannot strand them forever.
func (s *Store) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE newsletter_queue
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'in_flight' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale items: %w", err)
	}

	requeued, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued rows: %w", err)
	}

	return requeued, nil
}

// GetSubscriber fetches one subscriber profile by ID.
func (s *Store) GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, category, active
		FROM subscribers
		WHERE id = $1
	`, id)

	var sub models.Subscriber
	if err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.Category, &sub.Active); err != nil {
		return nil, fmt.Errorf("failed to fetch subscriber %s: %w", id, err)
	}

	return &sub, nil
}
