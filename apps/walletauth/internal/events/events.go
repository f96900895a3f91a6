package events

import (
	"encoding/json"
	"time"
)

// LoginEvent is the Kafka payload published for every successful wallet registration
type LoginEvent struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	UserID        int64           `json:"user_id"`
	WalletAddress string          `json:"wallet_address"`
	OccurredAt    time.Time       `json:"occurred_at"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
}
