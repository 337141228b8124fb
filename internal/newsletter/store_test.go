package newsletter

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestStore_Populate_UpsertIgnoresConflicts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO newsletter_queue (user_id, scheduled_date, status, attempt_count, updated_at)
		SELECT id, $1, 'pending', 0, NOW()
		FROM subscribers
		WHERE active = TRUE
		ON CONFLICT (user_id, scheduled_date) DO NOTHING
	`)).
		WithArgs("2025-06-01").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.Populate(context.Background(), time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestStore_Populate_RerunIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO newsletter_queue`)).
		WithArgs("2025-06-01").
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := store.Populate(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestStore_ClaimNext_AtomicClaimFiltersAttemptCap(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
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
	`)).
		WithArgs(models.MaxAttempts).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "scheduled_date", "status", "attempt_count", "updated_at"}).
			AddRow(int64(7), "user-1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "in_flight", 1, now))

	item, claimed, err := store.ClaimNext(context.Background())

	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, "user-1", item.UserID)
	assert.Equal(t, models.StatusInFlight, item.Status)
	assert.Equal(t, 1, item.AttemptCount)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestStore_ClaimNext_NoEligibleItemIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE newsletter_queue`)).
		WithArgs(models.MaxAttempts).
		WillReturnError(sql.ErrNoRows)

	item, claimed, err := store.ClaimNext(context.Background())

	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Nil(t, item)
}

func TestStore_MarkDone(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE newsletter_queue
		SET status = 'done', last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkDone(context.Background(), 7))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestStore_MarkRetry_RecordsError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE newsletter_queue
		SET status = 'pending', last_error = $2, updated_at = NOW()
		WHERE id = $1
	`)).
		WithArgs(int64(7), "smtp timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkRetry(context.Background(), 7, "smtp timeout"))
}

func TestStore_Cleanup_DeletesPastRowsRegardlessOfStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		DELETE FROM newsletter_queue
		WHERE scheduled_date <= $1
	`)).
		WithArgs("2025-06-01").
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := store.Cleanup(context.Background(), time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
}

func TestStore_RequeueStale(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE newsletter_queue
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'in_flight' AND updated_at < $1
	`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	requeued, err := store.RequeueStale(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(2), requeued)
}

func TestStore_GetSubscriber(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, email, name, category, active
		FROM subscribers
		WHERE id = $1
	`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "category", "active"}).
			AddRow("user-1", "ada@example.com", "Ada", "tech", true))

	sub, err := store.GetSubscriber(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", sub.Email)
	assert.Equal(t, "tech", sub.Category)
	assert.True(t, sub.Active)
}
