package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/model"
)

type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) GetWalletsByUserID(ctx context.Context, userID int64) ([]model.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, address, chain, user_id, created_at, last_connected_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY last_connected_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets: %w", err)
	}
	defer rows.Close()

	wallets := []model.Wallet{}
	for rows.Next() {
		var wallet model.Wallet
		if err := rows.Scan(&wallet.ID, &wallet.Address, &wallet.Chain, &wallet.UserID, &wallet.CreatedAt, &wallet.LastConnectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}

	return wallets, nil
}
