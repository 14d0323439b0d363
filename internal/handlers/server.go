// internal/handlers/server.go
package handlers

import (
	"github.com/quangdm/xizach/internal/database"
	"github.com/quangdm/xizach/internal/game"
)

// RoomServer owns the live room registry, the per-user session registry, and
// the account store handed to each room.
type RoomServer struct {
	Rooms    *game.RoomStore
	Sessions *game.SessionRegistry
	Accounts game.AccountStore
}

func NewRoomServer() *RoomServer {
	return &RoomServer{
		Rooms:    game.NewRoomStore(),
		Sessions: game.NewSessionRegistry(),
		Accounts: database.Accounts{},
	}
}
