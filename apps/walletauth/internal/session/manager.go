package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoSession = errors.New("no active session")

// Principal is the identity a session is authenticated as
type Principal struct {
	UserID        int64     `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	LoggedInAt    time.Time `json:"logged_in_at"`
}

type Store interface {
	Save(ctx context.Context, token string, principal Principal, ttl time.Duration) error
	Load(ctx context.Context, token string) (*Principal, error)
	Delete(ctx context.Context, token string) error
}

type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager issues opaque session tokens and carries them in an HttpOnly cookie
type Manager struct {
	store  Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Login marks userID as the principal of the caller's session. Any session the request
// already carried is discarded so tokens rotate on every login.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, userID int64, walletAddress string) (*Principal, error) {
	ctx := r.Context()

	if cookie, err := r.Cookie(m.opts.CookieName); err == nil && cookie.Value != "" {
		if err := m.store.Delete(ctx, cookie.Value); err != nil {
			m.logger.Warn("Failed to discard previous session", zap.Error(err))
		}
	}

	principal := Principal{
		UserID:        userID,
		WalletAddress: walletAddress,
		LoggedInAt:    m.now(),
	}
	token := uuid.New().String()

	if err := m.store.Save(ctx, token, principal, m.opts.TTL); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	m.logger.Info("User logged in",
		zap.Int64("user_id", userID),
		zap.String("wallet_address", walletAddress))
	return &principal, nil
}

// Current returns the principal of the request's session or ErrNoSession
func (m *Manager) Current(r *http.Request) (*Principal, error) {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	principal, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, ErrNoSession
	}
	return principal, nil
}

func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return ErrNoSession
	}

	if err := m.store.Delete(r.Context(), cookie.Value); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
