package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/model"
)

type LoginHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewLoginHistoryRepository(db *sql.DB, logger *zap.Logger) *LoginHistoryRepository {
	return &LoginHistoryRepository{db: db, logger: logger}
}

// InsertLogin is idempotent on event_id so redelivered Kafka messages are harmless
func (r *LoginHistoryRepository) InsertLogin(ctx context.Context, record model.LoginRecord) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO login_history (event_id, user_id, wallet_address, event_type, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, record.EventID, record.UserID, record.WalletAddress, record.EventType, record.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert login record: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		r.logger.Debug("Login record already materialized", zap.String("event_id", record.EventID))
		return nil
	}

	r.logger.Info("Materialized login",
		zap.String("event_id", record.EventID),
		zap.Int64("user_id", record.UserID),
		zap.String("wallet_address", record.WalletAddress))
	return nil
}

func (r *LoginHistoryRepository) GetLoginsByUser(ctx context.Context, userID int64, limit int) ([]model.LoginRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, user_id, wallet_address, event_type, occurred_at
		FROM login_history
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get login history: %w", err)
	}
	defer rows.Close()

	records := []model.LoginRecord{}
	for rows.Next() {
		var record model.LoginRecord
		if err := rows.Scan(&record.EventID, &record.UserID, &record.WalletAddress, &record.EventType, &record.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan login record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login history: %w", err)
	}

	return records, nil
}
