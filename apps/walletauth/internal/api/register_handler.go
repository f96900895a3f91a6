package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/apperrors"
	"walletauth/apps/walletauth/internal/registration"
	"walletauth/apps/walletauth/internal/session"
)

const (
	msgRegisterPlaceholder = "Register"
	msgWalletConnected     = "Successfully updated last visit time"
	msgWalletCreated       = "Successfully added wallet and created user"
)

type Registrar interface {
	Register(ctx context.Context, rawAddress string) (*registration.Result, error)
}

type SessionManager interface {
	Login(w http.ResponseWriter, r *http.Request, userID int64, walletAddress string) (*session.Principal, error)
	Current(r *http.Request) (*session.Principal, error)
	Logout(w http.ResponseWriter, r *http.Request) error
}

// RegisterHandler handles the wallet registration endpoints
type RegisterHandler struct {
	registrar Registrar
	sessions  SessionManager
	logger    *zap.Logger
}

// NewRegisterHandler creates a new RegisterHandler
func NewRegisterHandler(registrar Registrar, sessions SessionManager, logger *zap.Logger) *RegisterHandler {
	return &RegisterHandler{
		registrar: registrar,
		sessions:  sessions,
		logger:    logger,
	}
}

// Index handles GET|POST /register-wallet/
func (h *RegisterHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeTextResponse(w, h.logger, http.StatusOK, msgRegisterPlaceholder)
}

// RegisterWallet handles GET|POST /register-wallet/address={wallet_address}
func (h *RegisterHandler) RegisterWallet(w http.ResponseWriter, r *http.Request) {
	rawAddress := mux.Vars(r)["wallet_address"]

	result, err := h.registrar.Register(r.Context(), rawAddress)
	if err != nil {
		h.writeRegistrationError(w, rawAddress, err)
		return
	}

	if _, err := h.sessions.Login(w, r, result.UserID, result.Wallet.Address); err != nil {
		h.logger.Error("Failed to establish session",
			zap.Int64("user_id", result.UserID),
			zap.String("wallet_address", result.Wallet.Address),
			zap.Error(apperrors.WrapWithCode(apperrors.CodeSession, "api.RegisterWallet", err)))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "session_error", "Failed to establish session")
		return
	}

	if result.Created {
		writeTextResponse(w, h.logger, http.StatusOK, msgWalletCreated)
		return
	}
	writeTextResponse(w, h.logger, http.StatusOK, msgWalletConnected)
}

func (h *RegisterHandler) writeRegistrationError(w http.ResponseWriter, rawAddress string, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidInput:
		h.logger.Info("Rejected wallet address", zap.String("wallet_address", rawAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_wallet_address", "Wallet address is not valid")
	case apperrors.CodeConcurrencyConflict:
		h.logger.Warn("Wallet registration kept conflicting", zap.String("wallet_address", rawAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusConflict, "registration_conflict", "Wallet registration conflicted with a concurrent request, please retry")
	default:
		h.logger.Error("Failed to register wallet", zap.String("wallet_address", rawAddress), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "storage_error", "Failed to register wallet")
	}
}
