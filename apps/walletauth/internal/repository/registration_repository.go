package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/model"
)

// ErrAddressTaken means another transaction committed a wallet with the same address first
var ErrAddressTaken = errors.New("wallet address already registered")

// UnitOfWork is one registration transaction. Callers must end it with Commit or Rollback.
type UnitOfWork interface {
	FindWalletByAddress(ctx context.Context, address string) (*model.Wallet, error)
	TouchWallet(ctx context.Context, walletID int64, connectedAt time.Time) error
	CreateUser(ctx context.Context, createdAt time.Time) (*model.User, error)
	CreateWallet(ctx context.Context, wallet model.Wallet) (*model.Wallet, error)
	StoreOutboxEvent(ctx context.Context, event model.OutboxEvent) error
	Commit() error
	Rollback() error
}

type RegistrationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRegistrationRepository(db *sql.DB, logger *zap.Logger) *RegistrationRepository {
	return &RegistrationRepository{db: db, logger: logger}
}

// Begin opens a READ COMMITTED transaction scoped to a single registration
func (r *RegistrationRepository) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration transaction: %w", err)
	}
	return &registrationTx{tx: tx, logger: r.logger}, nil
}

type registrationTx struct {
	tx     *sql.Tx
	logger *zap.Logger
}

// FindWalletByAddress locks the matching row so concurrent touches of one wallet serialize
func (t *registrationTx) FindWalletByAddress(ctx context.Context, address string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, address, chain, user_id, created_at, last_connected_at
		FROM wallets
		WHERE address = $1
		FOR UPDATE
	`, address).Scan(&wallet.ID, &wallet.Address, &wallet.Chain, &wallet.UserID, &wallet.CreatedAt, &wallet.LastConnectedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet by address: %w", err)
	}

	return &wallet, nil
}

func (t *registrationTx) TouchWallet(ctx context.Context, walletID int64, connectedAt time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE wallets SET last_connected_at = $1 WHERE id = $2
	`, connectedAt, walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet last_connected_at: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("failed to update wallet last_connected_at: wallet %d not found", walletID)
	}

	return nil
}

func (t *registrationTx) CreateUser(ctx context.Context, createdAt time.Time) (*model.User, error) {
	user := model.User{CreatedAt: createdAt}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (created_at) VALUES ($1) RETURNING id
	`, createdAt).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	t.logger.Debug("Created user", zap.Int64("user_id", user.ID))
	return &user, nil
}

// CreateWallet inserts the wallet, returning ErrAddressTaken when the unique address
// constraint rejects it.
func (t *registrationTx) CreateWallet(ctx context.Context, wallet model.Wallet) (*model.Wallet, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO wallets (address, chain, user_id, created_at, last_connected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO NOTHING
		RETURNING id
	`, wallet.Address, wallet.Chain, wallet.UserID, wallet.CreatedAt, wallet.LastConnectedAt).Scan(&wallet.ID)

	if err != nil {
		if err == sql.ErrNoRows || isUniqueViolation(err) {
			return nil, ErrAddressTaken
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	t.logger.Debug("Created wallet",
		zap.Int64("wallet_id", wallet.ID),
		zap.Int64("user_id", wallet.UserID),
		zap.String("wallet_address", wallet.Address))
	return &wallet, nil
}

func (t *registrationTx) StoreOutboxEvent(ctx context.Context, event model.OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO event_outbox (event_id, event_type, status, user_id, wallet_address, event_blob, occurred_at)
		VALUES ($1, $2, 'unsent', $3, $4, $5, $6)
	`, event.EventID, event.EventType, event.UserID, event.WalletAddress, string(event.EventBlob), event.OccurredAt)

	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}

	return nil
}

func (t *registrationTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op after a successful Commit
func (t *registrationTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back registration transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}
