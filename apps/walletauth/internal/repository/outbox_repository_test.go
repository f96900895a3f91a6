package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var outboxColumns = []string{"event_id", "event_type", "status", "user_id", "wallet_address", "event_blob", "occurred_at", "created_at"}

func newOutboxRepository(t *testing.T, now time.Time) (*OutboxRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewOutboxRepository(db, zap.NewNop(), 5*time.Minute)
	repo.now = func() time.Time { return now }
	return repo, mock
}

func TestGetUnsentEventsForProcessing(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo, mock := newOutboxRepository(t, now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM event_outbox\s+WHERE status = 'unsent'.*FOR UPDATE SKIP LOCKED`).
		WithArgs(10, now.Add(-5*time.Minute)).
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow("e1", "wallet_created", "unsent", 1, testAddress, []byte(`{"chain":"evm"}`), now, now).
			AddRow("e2", "wallet_connected", "unsent", 1, testAddress, []byte(`{}`), now, now))
	mock.ExpectExec(`UPDATE event_outbox\s+SET status = 'processing', claimed_at = \$2`).WithArgs("e1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE event_outbox\s+SET status = 'processing', claimed_at = \$2`).WithArgs("e2", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	events, err := repo.GetUnsentEventsForProcessing(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, "processing", events[0].Status)
	assert.JSONEq(t, `{"chain":"evm"}`, string(events[0].EventBlob))
	assert.Equal(t, "wallet_connected", events[1].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnsentEventsReclaimsExpiredClaims(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo, mock := newOutboxRepository(t, now)

	// e1 was claimed by a publisher that crashed (or failed to mark it sent) before the lease cutoff
	mock.ExpectBegin()
	mock.ExpectQuery(`OR \(status = 'processing' AND \(claimed_at IS NULL OR claimed_at < \$2\)\)`).
		WithArgs(10, now.Add(-5*time.Minute)).
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow("e1", "wallet_created", "processing", 1, testAddress, []byte(`{}`), now.Add(-time.Hour), now.Add(-time.Hour)))
	mock.ExpectExec(`UPDATE event_outbox\s+SET status = 'processing', claimed_at = \$2\s+WHERE event_id = \$1`).
		WithArgs("e1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	events, err := repo.GetUnsentEventsForProcessing(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, "processing", events[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventStatus(t *testing.T) {
	repo, mock := newOutboxRepository(t, time.Now().UTC())
	ctx := context.Background()

	mock.ExpectExec(`SET status = 'sent'\s+WHERE event_id = \$1`).WithArgs("e1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'unsent'\s+WHERE event_id = \$1 AND status = 'processing'`).WithArgs("e2").WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkEventAsSent(ctx, "e1"))
	assert.NoError(t, repo.MarkEventAsFailed(ctx, "e2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
