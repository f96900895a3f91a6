package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/model"
	"walletauth/apps/walletauth/internal/session"
)

const (
	defaultLoginsLimit = 20
	maxLoginsLimit     = 100
)

type UserReader interface {
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	GetWalletsByUserID(ctx context.Context, userID int64) ([]model.Wallet, error)
}

type LoginReader interface {
	GetLoginsByUser(ctx context.Context, userID int64, limit int) ([]model.LoginRecord, error)
}

// SessionHandler exposes the authenticated principal
type SessionHandler struct {
	sessions SessionManager
	users    UserReader
	logins   LoginReader
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionManager, users UserReader, logins LoginReader, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		users:    users,
		logins:   logins,
		logger:   logger,
	}
}

// GetSession handles GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("Failed to get user", zap.Int64("user_id", principal.UserID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "storage_error", "Failed to retrieve user")
		return
	}
	if user == nil {
		writeErrorResponse(w, h.logger, http.StatusUnauthorized, "not_authenticated", "Session user no longer exists")
		return
	}

	wallets, err := h.users.GetWalletsByUserID(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to get wallets", zap.Int64("user_id", principal.UserID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "storage_error", "Failed to retrieve wallets")
		return
	}

	response := SessionResponse{
		UserID:        user.ID,
		WalletAddress: principal.WalletAddress,
		LoggedInAt:    principal.LoggedInAt,
		Wallets:       make([]WalletResponse, 0, len(wallets)),
	}
	for _, wallet := range wallets {
		response.Wallets = append(response.Wallets, WalletResponse{
			Address:         wallet.Address,
			Chain:           wallet.Chain,
			CreatedAt:       wallet.CreatedAt,
			LastConnectedAt: wallet.LastConnectedAt,
		})
	}

	writeJSONResponse(w, h.logger, http.StatusOK, response)
}

// Logout handles POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeErrorResponse(w, h.logger, http.StatusUnauthorized, "not_authenticated", "No active session")
			return
		}
		h.logger.Error("Failed to log out", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "session_error", "Failed to end session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetLogins handles GET /api/session/logins
func (h *SessionHandler) GetLogins(w http.ResponseWriter, r *http.Request) {
	limit := defaultLoginsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_limit", "Limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLoginsLimit)
	}

	principal, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	records, err := h.logins.GetLoginsByUser(r.Context(), principal.UserID, limit)
	if err != nil {
		h.logger.Error("Failed to get login history", zap.Int64("user_id", principal.UserID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "storage_error", "Failed to retrieve login history")
		return
	}

	response := LoginHistoryResponse{
		UserID: principal.UserID,
		Logins: make([]LoginResponse, 0, len(records)),
	}
	for _, record := range records {
		response.Logins = append(response.Logins, LoginResponse{
			EventID:       record.EventID,
			WalletAddress: record.WalletAddress,
			EventType:     record.EventType,
			OccurredAt:    record.OccurredAt,
		})
	}

	writeJSONResponse(w, h.logger, http.StatusOK, response)
}

func (h *SessionHandler) requirePrincipal(w http.ResponseWriter, r *http.Request) (*session.Principal, bool) {
	principal, err := h.sessions.Current(r)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeErrorResponse(w, h.logger, http.StatusUnauthorized, "not_authenticated", "Login required")
			return nil, false
		}
		h.logger.Error("Failed to load session", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "session_error", "Failed to load session")
		return nil, false
	}
	return principal, true
}
