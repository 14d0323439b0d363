// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"math/rand"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/quangdm/xizach/internal/auth"
	"github.com/quangdm/xizach/internal/game"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newRoomID returns an 8-char uppercase alphanumeric room code.
func newRoomID() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}

type createRoomRequest struct {
	RoomName  string `json:"roomName"`
	GameType  string `json:"gameType"`
	BetAmount int64  `json:"betAmount"`
	DrawTime  int    `json:"drawTime"`
	Password  string `json:"password"`
}

// CreateRoomHandler creates a new room owned by the authenticated user and
// returns its snapshot. The creator still joins via the WebSocket endpoint.
func (rs *RoomServer) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusForbidden)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.BetAmount <= 0 {
		http.Error(w, "betAmount must be positive", http.StatusBadRequest)
		return
	}
	if req.GameType == "" {
		req.GameType = "xizach"
	}

	// Regenerate on the off chance of a code collision.
	var roomID string
	for {
		roomID = newRoomID()
		if _, exists := rs.Rooms.Get(roomID); !exists {
			break
		}
	}

	room := game.NewRoom(roomID, req.RoomName, req.GameType, userID, game.Settings{
		BetAmount: req.BetAmount,
		DrawTime:  req.DrawTime,
		Password:  req.Password,
	})
	room.Accounts = rs.Accounts
	rs.Rooms.Add(room)

	log.Infof("room %s created by user %s (bet %d)", roomID, userID, req.BetAmount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(room.Snapshot())
}

type roomListEntry struct {
	RoomID      string `json:"roomId"`
	RoomName    string `json:"roomName"`
	GameType    string `json:"gameType"`
	BetAmount   int64  `json:"betAmount"`
	DrawTime    int    `json:"drawTime"`
	PlayerCount int    `json:"playerCount"`
	HasPassword bool   `json:"hasPassword"`
}

// ListRoomsHandler returns every room still accepting players (waiting and
// not full), optionally filtered by the gameType query param.
func (rs *RoomServer) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	gameType := r.URL.Query().Get("gameType")

	var out []roomListEntry
	rs.Rooms.Each(func(room *game.Room) {
		if !room.Waiting() || room.PlayerCount() >= 7 {
			return
		}
		if gameType != "" && room.GameType != gameType {
			return
		}
		out = append(out, roomListEntry{
			RoomID:      room.ID,
			RoomName:    room.Name,
			GameType:    room.GameType,
			BetAmount:   room.Settings.BetAmount,
			DrawTime:    room.Settings.DrawTime,
			PlayerCount: room.PlayerCount(),
			HasPassword: room.Settings.Password != "",
		})
	})
	if out == nil {
		out = []roomListEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// authenticatedUserID resolves the auth_token cookie to a user ID.
func authenticatedUserID(r *http.Request) (uuid.UUID, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(userIDStr)
}
