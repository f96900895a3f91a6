package model

import (
	"time"
)

// LoginRecord is one row of the login_history read model
type LoginRecord struct {
	EventID       string    `db:"event_id"`
	UserID        int64     `db:"user_id"`
	WalletAddress string    `db:"wallet_address"`
	EventType     string    `db:"event_type"`
	OccurredAt    time.Time `db:"occurred_at"`
}
