package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/model"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newRegistrationRepository(t *testing.T) (*RegistrationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRegistrationRepository(db, zap.NewNop()), mock
}

func TestFindWalletByAddress(t *testing.T) {
	repo, mock := newRegistrationRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, address, chain, user_id, created_at, last_connected_at\s+FROM wallets\s+WHERE address = \$1\s+FOR UPDATE`).
		WithArgs(testAddress).
		WillReturnRows(sqlmock.NewRows([]string{"id", "address", "chain", "user_id", "created_at", "last_connected_at"}).
			AddRow(7, testAddress, "evm", 3, now, now))
	mock.ExpectCommit()

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)

	wallet, err := uow.FindWalletByAddress(ctx, testAddress)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(7), wallet.ID)
	assert.Equal(t, int64(3), wallet.UserID)
	assert.Equal(t, "evm", wallet.Chain)

	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback(), "rollback after commit is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindWalletByAddressNotFound(t *testing.T) {
	repo, mock := newRegistrationRepository(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM wallets`).
		WithArgs(testAddress).
		WillReturnRows(sqlmock.NewRows([]string{"id", "address", "chain", "user_id", "created_at", "last_connected_at"}))
	mock.ExpectRollback()

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)

	wallet, err := uow.FindWalletByAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Nil(t, wallet)

	require.NoError(t, uow.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchWallet(t *testing.T) {
	repo, mock := newRegistrationRepository(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE wallets SET last_connected_at = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wallets SET last_connected_at`).
		WithArgs(sqlmock.AnyArg(), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)

	assert.NoError(t, uow.TouchWallet(ctx, 7, time.Now().UTC()))
	assert.Error(t, uow.TouchWallet(ctx, 8, time.Now().UTC()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserAndWallet(t *testing.T) {
	repo, mock := newRegistrationRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users \(created_at\) VALUES \(\$1\) RETURNING id`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(`INSERT INTO wallets .* ON CONFLICT \(address\) DO NOTHING\s+RETURNING id`).
		WithArgs(testAddress, "evm", int64(11), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectCommit()

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)

	user, err := uow.CreateUser(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(11), user.ID)

	wallet, err := uow.CreateWallet(ctx, model.Wallet{
		Address:         testAddress,
		Chain:           "evm",
		UserID:          user.ID,
		CreatedAt:       now,
		LastConnectedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), wallet.ID)
	assert.Equal(t, int64(11), wallet.UserID)

	require.NoError(t, uow.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWalletConflict(t *testing.T) {
	tests := []struct {
		name   string
		expect func(q *sqlmock.ExpectedQuery)
	}{
		{
			name: "on_conflict_returns_no_row",
			expect: func(q *sqlmock.ExpectedQuery) {
				q.WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
		},
		{
			name: "unique_violation",
			expect: func(q *sqlmock.ExpectedQuery) {
				q.WillReturnError(&pq.Error{Code: "23505", Constraint: "wallets_address_key"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRegistrationRepository(t)
			ctx := context.Background()

			mock.ExpectBegin()
			tt.expect(mock.ExpectQuery(`INSERT INTO wallets`))
			mock.ExpectRollback()

			uow, err := repo.Begin(ctx)
			require.NoError(t, err)

			wallet, err := uow.CreateWallet(ctx, model.Wallet{Address: testAddress, Chain: "evm", UserID: 1})
			assert.Nil(t, wallet)
			assert.ErrorIs(t, err, ErrAddressTaken)

			require.NoError(t, uow.Rollback())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateWalletStorageError(t *testing.T) {
	repo, mock := newRegistrationRepository(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO wallets`).WillReturnError(errors.New("connection reset"))

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)

	_, err = uow.CreateWallet(ctx, model.Wallet{Address: testAddress, Chain: "evm", UserID: 1})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAddressTaken)
}

func TestStoreOutboxEvent(t *testing.T) {
	repo, mock := newRegistrationRepository(t)
	ctx := context.Background()
	event := model.OutboxEvent{
		EventID:       "5f1d7a0e-3b1c-4d84-9b0e-2c6c1f1a9e11",
		EventType:     model.EventWalletCreated,
		UserID:        11,
		WalletAddress: testAddress,
		EventBlob:     []byte(`{"chain":"evm"}`),
		OccurredAt:    time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO event_outbox`).
		WithArgs(event.EventID, event.EventType, event.UserID, event.WalletAddress, `{"chain":"evm"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)

	assert.NoError(t, uow.StoreOutboxEvent(ctx, event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailure(t *testing.T) {
	repo, mock := newRegistrationRepository(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	uow, err := repo.Begin(context.Background())
	assert.Nil(t, uow)
	assert.Error(t, err)
}
