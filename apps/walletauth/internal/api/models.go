package api

import (
	"time"
)

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WalletResponse represents a wallet owned by the session principal
type WalletResponse struct {
	Address         string    `json:"address"`
	Chain           string    `json:"chain"`
	CreatedAt       time.Time `json:"created_at"`
	LastConnectedAt time.Time `json:"last_connected_at"`
}

// SessionResponse represents the API response for the current session
type SessionResponse struct {
	UserID        int64            `json:"user_id"`
	WalletAddress string           `json:"wallet_address"`
	LoggedInAt    time.Time        `json:"logged_in_at"`
	Wallets       []WalletResponse `json:"wallets"`
}

// LoginResponse represents one entry of the login history
type LoginResponse struct {
	EventID       string    `json:"event_id"`
	WalletAddress string    `json:"wallet_address"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// LoginHistoryResponse represents the API response for the login history
type LoginHistoryResponse struct {
	UserID int64           `json:"user_id"`
	Logins []LoginResponse `json:"logins"`
}

// HealthResponse represents the API response for the health check
type HealthResponse struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}
