package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Password string    `json:"password,omitempty"`

	Balance int64 `json:"balance"`

	IsActive bool `json:"is_active"`
	IsOnline bool `json:"is_online"`

	// CurrentRoomID anchors the user to the table they are seated at, if any.
	CurrentRoomID string `json:"current_room_id,omitempty"`
}

// HistoryRecord is one line of a user's game history, appended once per settled round.
type HistoryRecord struct {
	UserID    uuid.UUID `json:"user_id"`
	GameType  string    `json:"game_type"`
	Result    string    `json:"result"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
