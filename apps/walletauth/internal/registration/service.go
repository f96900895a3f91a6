package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/address"
	"walletauth/apps/walletauth/internal/apperrors"
	"walletauth/apps/walletauth/internal/model"
	"walletauth/apps/walletauth/internal/repository"
)

// MaxAttempts bounds how often a lost uniqueness race is retried through the lookup branch
const MaxAttempts = 3

const op = "registration.Register"

type Store interface {
	Begin(ctx context.Context) (repository.UnitOfWork, error)
}

type AddressNormalizer interface {
	Normalize(raw string) (address.Address, error)
}

// Result describes which branch a registration took
type Result struct {
	UserID  int64
	Wallet  model.Wallet
	Created bool
}

type Service struct {
	store      Store
	normalizer AddressNormalizer
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(store Store, normalizer AddressNormalizer, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		normalizer: normalizer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register resolves rawAddress to a user, creating the user and wallet on first sight
// and refreshing last_connected_at otherwise.
func (s *Service) Register(ctx context.Context, rawAddress string) (*Result, error) {
	addr, err := s.normalizer.Normalize(rawAddress)
	if err != nil {
		return nil, apperrors.WrapWithCode(apperrors.CodeInvalidInput, op, err)
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		result, err := s.registerOnce(ctx, addr)
		if errors.Is(err, repository.ErrAddressTaken) {
			s.logger.Warn("Lost wallet registration race, retrying lookup",
				zap.String("wallet_address", addr.Canonical),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, apperrors.WrapWithCode(apperrors.CodeStorage, op, err)
		}
		return result, nil
	}

	return nil, apperrors.WrapWithCode(apperrors.CodeConcurrencyConflict, op,
		fmt.Errorf("%w after %d attempts", repository.ErrAddressTaken, MaxAttempts))
}

func (s *Service) registerOnce(ctx context.Context, addr address.Address) (*Result, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rbErr := uow.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back registration", zap.String("wallet_address", addr.Canonical), zap.Error(rbErr))
		}
	}()

	now := s.now()

	existing, err := uow.FindWalletByAddress(ctx, addr.Canonical)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := uow.TouchWallet(ctx, existing.ID, now); err != nil {
			return nil, err
		}
		existing.LastConnectedAt = now

		if err := s.recordEvent(ctx, uow, model.EventWalletConnected, *existing, now); err != nil {
			return nil, err
		}
		if err := uow.Commit(); err != nil {
			return nil, err
		}

		s.logger.Info("Updated wallet last visit time",
			zap.Int64("user_id", existing.UserID),
			zap.String("wallet_address", existing.Address))
		return &Result{UserID: existing.UserID, Wallet: *existing, Created: false}, nil
	}

	// Wallet needs the generated user id, so the user row goes in first
	user, err := uow.CreateUser(ctx, now)
	if err != nil {
		return nil, err
	}

	wallet, err := uow.CreateWallet(ctx, model.Wallet{
		Address:         addr.Canonical,
		Chain:           addr.Chain,
		UserID:          user.ID,
		CreatedAt:       now,
		LastConnectedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordEvent(ctx, uow, model.EventWalletCreated, *wallet, now); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("Added wallet and created user",
		zap.Int64("user_id", user.ID),
		zap.String("wallet_address", wallet.Address),
		zap.String("chain", wallet.Chain))
	return &Result{UserID: user.ID, Wallet: *wallet, Created: true}, nil
}

func (s *Service) recordEvent(ctx context.Context, uow repository.UnitOfWork, eventType string, wallet model.Wallet, occurredAt time.Time) error {
	blob, err := json.Marshal(map[string]interface{}{
		"wallet_id": wallet.ID,
		"chain":     wallet.Chain,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event blob: %w", err)
	}

	return uow.StoreOutboxEvent(ctx, model.OutboxEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		UserID:        wallet.UserID,
		WalletAddress: wallet.Address,
		EventBlob:     blob,
		OccurredAt:    occurredAt,
	})
}
