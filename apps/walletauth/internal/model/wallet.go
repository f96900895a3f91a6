package model

import (
	"time"
)

type Wallet struct {
	ID              int64     `db:"id"`
	Address         string    `db:"address"` // canonical form, unique
	Chain           string    `db:"chain"`   // "evm", "bitcoin" or "other"
	UserID          int64     `db:"user_id"`
	CreatedAt       time.Time `db:"created_at"`
	LastConnectedAt time.Time `db:"last_connected_at"`
}
