package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// PlayerStatus tracks a seated player's progress within a round. The
// playing/stand/bust values are only meaningful while the room itself is
// in a round.
type PlayerStatus string

const (
	StatusWaiting PlayerStatus = "waiting"
	StatusPlaying PlayerStatus = "playing"
	StatusStand   PlayerStatus = "stand"
	StatusBust    PlayerStatus = "bust"
)

// Player is one seat at a table. The user it references is owned by the
// account store; Username and Balance are cached copies refreshed at the
// broadcast boundary.
type Player struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Balance  int64     `json:"balance"`

	Position int            `json:"position"`
	Cards    []Card         `json:"cards"`
	Score    int            `json:"score"`
	Status   PlayerStatus   `json:"status"`
	IsReady  bool           `json:"isReady"`

	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`
}
