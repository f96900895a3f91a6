package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/model"
)

type OutboxRepository struct {
	db         *sql.DB
	logger     *zap.Logger
	claimLease time.Duration
	now        func() time.Time
}

// NewOutboxRepository creates an outbox repository. Events left in 'processing' longer than
// claimLease are claimed again.
func NewOutboxRepository(db *sql.DB, logger *zap.Logger, claimLease time.Duration) *OutboxRepository {
	return &OutboxRepository{
		db:         db,
		logger:     logger,
		claimLease: claimLease,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetUnsentEventsForProcessing claims up to limit unsent or lease-expired events by moving
// them to 'processing'
func (r *OutboxRepository) GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	now := r.now()
	leaseCutoff := now.Add(-r.claimLease)

	// Use a transaction to ensure atomicity
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	// Select and lock unsent events, plus claimed ones whose publisher never finished
	rows, err := tx.QueryContext(ctx, `
		SELECT event_id, event_type, status, user_id, wallet_address, event_blob, occurred_at, created_at
		FROM event_outbox
		WHERE status = 'unsent'
		   OR (status = 'processing' AND (claimed_at IS NULL OR claimed_at < $2))
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit, leaseCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsent events: %w", err)
	}
	defer rows.Close()

	var events []model.OutboxEvent
	reclaimed := 0
	for rows.Next() {
		var event model.OutboxEvent
		var blob []byte
		if err := rows.Scan(&event.EventID, &event.EventType, &event.Status, &event.UserID,
			&event.WalletAddress, &blob, &event.OccurredAt, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.EventBlob = blob
		if event.Status == "processing" {
			reclaimed++
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	rows.Close()

	// Mark selected events as 'processing' to prevent other publishers from picking them up
	for i := range events {
		_, err = tx.ExecContext(ctx, `
			UPDATE event_outbox
			SET status = 'processing', claimed_at = $2
			WHERE event_id = $1
		`, events[i].EventID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim outbox event: %w", err)
		}
		events[i].Status = "processing"
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	if reclaimed > 0 {
		r.logger.Warn("Reclaimed outbox events with expired claims", zap.Int("count", reclaimed), zap.Duration("claim_lease", r.claimLease))
	}

	return events, nil
}

func (r *OutboxRepository) MarkEventAsSent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'sent'
		WHERE event_id = $1
	`, eventID)
	return err
}

// MarkEventAsFailed returns the event to 'unsent' so the next poll retries it
func (r *OutboxRepository) MarkEventAsFailed(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'unsent'
		WHERE event_id = $1 AND status = 'processing'
	`, eventID)
	return err
}
