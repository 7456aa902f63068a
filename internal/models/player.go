// internal/models/player.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerStatus describes a player's standing in the lobby. Connectivity is
// derived from the live connection set; Disconnected is only applied once the
// grace period has run out without a registered connection.
type PlayerStatus string

const (
	StatusNeutral      PlayerStatus = "neutral"
	StatusDisconnected PlayerStatus = "disconnected"
	StatusSkipping     PlayerStatus = "skipping"
)

// Player is one roster entry in a lobby. Secret is the bearer token minted at
// join; it is never rotated and dies with the roster entry.
type Player struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	Secret   uuid.UUID    `json:"-"`
	Status   PlayerStatus `json:"status"`
	AI       bool         `json:"ai"`
	JoinedAt time.Time    `json:"-"`
}
