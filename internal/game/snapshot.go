// internal/game/snapshot.go
package game

import (
	"github.com/google/uuid"
	"github.com/quangdm/xizach/internal/models"
)

// PlayerView is one seat as it appears on the wire.
type PlayerView struct {
	UserID   uuid.UUID           `json:"userId"`
	Username string              `json:"username"`
	Balance  int64               `json:"balance"`
	Position int                 `json:"position"`
	Cards    []models.Card       `json:"cards"`
	Score    int                 `json:"score"`
	Status   models.PlayerStatus `json:"status"`
	IsReady  bool                `json:"isReady"`
}

// GameStateView is the nested session state as the client knows it. The
// internal hostReveal and settling phases collapse onto the three wire
// statuses the client understands.
type GameStateView struct {
	Status             string        `json:"status"` // waiting | playing | finished
	CurrentPlayerIndex int           `json:"currentPlayerIndex"`
	DealerCards        []models.Card `json:"dealerCards"`
	DealerScore        int           `json:"dealerScore"`
	DeckSize           int           `json:"deckSize"`
	HostReveal         bool          `json:"hostReveal"`
}

// RoomSnapshot is the full room state broadcast after every transition.
// Passwords never leave the server.
type RoomSnapshot struct {
	RoomID    string        `json:"roomId"`
	RoomName  string        `json:"roomName"`
	GameType  string        `json:"gameType"`
	HostID    uuid.UUID     `json:"hostId"`
	HostName  string        `json:"hostName"`
	Players   []PlayerView  `json:"players"`
	BetAmount int64         `json:"betAmount"`
	DrawTime  int           `json:"drawTime"`
	GameState GameStateView `json:"gameState"`
}

// snapshotLocked builds a RoomSnapshot from current state. Assumes lock is held.
func (r *Room) snapshotLocked() *RoomSnapshot {
	snap := &RoomSnapshot{
		RoomID:    r.ID,
		RoomName:  r.Name,
		GameType:  r.GameType,
		HostID:    r.HostID,
		BetAmount: r.Settings.BetAmount,
		DrawTime:  r.Settings.DrawTime,
		Players:   make([]PlayerView, 0, len(r.players)),
	}

	for _, p := range r.players {
		if p.UserID == r.HostID {
			snap.HostName = p.Username
		}
		cards := make([]models.Card, len(p.Cards))
		copy(cards, p.Cards)
		snap.Players = append(snap.Players, PlayerView{
			UserID:   p.UserID,
			Username: p.Username,
			Balance:  p.Balance,
			Position: p.Position,
			Cards:    cards,
			Score:    p.Score,
			Status:   p.Status,
			IsReady:  p.IsReady,
		})
	}

	dealer := make([]models.Card, len(r.dealerCards))
	copy(dealer, r.dealerCards)

	snap.GameState = GameStateView{
		Status:             r.phase.wireStatus(),
		CurrentPlayerIndex: -1,
		DealerCards:        dealer,
		DealerScore:        r.dealerScore,
		DeckSize:           len(r.deck),
		HostReveal:         r.phase == phaseHostReveal,
	}
	if r.phase == phasePlaying {
		snap.GameState.CurrentPlayerIndex = r.currentPlayerIndex
	}
	return snap
}
