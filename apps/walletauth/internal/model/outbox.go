package model

import (
	"encoding/json"
	"time"
)

const (
	EventWalletCreated   = "wallet_created"
	EventWalletConnected = "wallet_connected"
)

type OutboxEvent struct {
	EventID       string          `db:"event_id"`
	EventType     string          `db:"event_type"`
	Status        string          `db:"status"`
	UserID        int64           `db:"user_id"`
	WalletAddress string          `db:"wallet_address"`
	EventBlob     json.RawMessage `db:"event_blob"`
	OccurredAt    time.Time       `db:"occurred_at"`
	CreatedAt     time.Time       `db:"created_at"`
}
