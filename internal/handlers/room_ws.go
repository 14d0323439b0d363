// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quangdm/xizach/internal/auth"
	"github.com/quangdm/xizach/internal/database"
	"github.com/quangdm/xizach/internal/game"
)

// RoomMessage is the envelope for every incoming WebSocket command.
type RoomMessage struct {
	Type string `json:"type"`

	// PlayerID targets another seat (hostShowPlayer, kickPlayer).
	PlayerID string `json:"playerId,omitempty"`

	// NewHostID is the transferHost target.
	NewHostID string `json:"newHostId,omitempty"`

	// ToUserID and Amount carry a donation.
	ToUserID string `json:"toUserId,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
}

// RoomWSHandler upgrades the connection for a specific room. It authenticates
// the session cookie, checks the room password, seats the player, and runs
// the read loop until the connection drops. A dropped connection is a leave.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// URL path: /room/ws/{room_id}
		roomID := strings.TrimPrefix(r.URL.Path, "/room/ws/")
		if idx := strings.Index(roomID, "/"); idx != -1 {
			roomID = roomID[:idx]
		}
		if roomID == "" {
			http.Error(w, "Missing room_id in path (/room/ws/{room_id})", http.StatusBadRequest)
			return
		}

		room, ok := rs.Rooms.Get(roomID)
		if !ok {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}

		token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
		userIDStr, err := auth.AuthenticateJWT(token)
		if err != nil {
			http.Error(w, "authentication required", http.StatusForbidden)
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			http.Error(w, "invalid user id in token", http.StatusForbidden)
			return
		}

		user, err := rs.Accounts.GetUser(r.Context(), userID)
		if err != nil {
			logger.Warnf("failed to load user %s for room %s: %v", userID, roomID, err)
			http.Error(w, "user not found", http.StatusForbidden)
			return
		}
		if !user.IsActive {
			http.Error(w, "account is deactivated", http.StatusForbidden)
			return
		}

		// Password-protected rooms take the password via query param so the
		// check happens before the upgrade.
		if pw := room.Settings.Password; pw != "" && r.URL.Query().Get("password") != pw {
			http.Error(w, "wrong room password", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"xizach"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for room %s: %v", roomID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "xizach" {
			logger.Warnf("Client for room %s connected with invalid subprotocol: %s", roomID, c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'xizach' subprotocol.")
			return
		}
		logger.Infof("WebSocket connection established for room %s from %s (user %s)", roomID, r.RemoteAddr, userID)

		room.Mu.Lock()
		if room.BroadcastFn == nil {
			room.BroadcastFn = createBroadcastFunc(logger)
		}
		if room.BroadcastToUserFn == nil {
			room.BroadcastToUserFn = createBroadcastToUserFunc(logger)
		}
		room.Mu.Unlock()

		rs.Sessions.Register(userID, c)
		defer rs.Sessions.Unregister(userID, c)

		if err := room.Join(user, c); err != nil {
			sendWsError(r.Context(), c, err.Error())
			c.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
		if database.DB != nil {
			if err := database.SetUserOnline(r.Context(), userID, true); err != nil {
				logger.Warnf("failed to mark user %s online: %v", userID, err)
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readRoomMessages(ctx, c, room, userID, logger)

		logger.Infof("User %s WebSocket read loop exited for room %s.", userID, roomID)
		room.HandleDisconnect(userID)
		if database.DB != nil {
			if err := database.SetUserOnline(context.Background(), userID, false); err != nil {
				logger.Warnf("failed to mark user %s offline: %v", userID, err)
			}
		}
	}
}

// createBroadcastFunc returns a Room.BroadcastFn. The room snapshots the
// recipient connections under its own lock; this function only marshals and
// fans out asynchronously.
func createBroadcastFunc(logger *logrus.Logger) func(conns []*websocket.Conn, ev game.Event) {
	return func(conns []*websocket.Conn, ev game.Event) {
		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s): %v", ev.Type, err)
			return
		}
		go func(conns []*websocket.Conn, data []byte) {
			for _, conn := range conns {
				writeCtx, cancelW := context.WithTimeout(context.Background(), 3*time.Second)
				if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
					logger.Warnf("Failed to write broadcast message: %v", err)
				}
				cancelW()
			}
		}(conns, msgBytes)
	}
}

// createBroadcastToUserFunc returns a Room.BroadcastToUserFn for single-seat
// sends.
func createBroadcastToUserFunc(logger *logrus.Logger) func(conn *websocket.Conn, ev game.Event) {
	return func(conn *websocket.Conn, ev game.Event) {
		if conn == nil {
			return
		}
		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s): %v", ev.Type, err)
			return
		}
		go func(conn *websocket.Conn, data []byte) {
			writeCtx, cancelW := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancelW()
			if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
				logger.Warnf("Failed to write private message: %v", err)
			}
		}(conn, msgBytes)
	}
}

// readRoomMessages reads and dispatches client commands until the connection
// closes. Every rejected command comes back to the sender as an error event;
// room state is untouched by rejections.
func readRoomMessages(ctx context.Context, c *websocket.Conn, room *game.Room, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in room %s.", userID, room.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s in room %s.", userID, room.ID)
			} else {
				logger.Warnf("Error reading from WebSocket for user %s in room %s: %v (Status: %d)", userID, room.ID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from user %s in room %s. Ignoring.", msgType, userID, room.ID)
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from user %s in room %s: %v. Data: %s", userID, room.ID, err, string(data))
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received command '%s' from user %s in room %s.", msg.Type, userID, room.ID)

		var cmdErr error
		switch msg.Type {
		case "toggleReady":
			cmdErr = room.ToggleReady(userID)

		case "startGame":
			room.TryStart()

		case "hit":
			cmdErr = room.Hit(userID)

		case "stand":
			cmdErr = room.Stand(userID)

		case "hostShowPlayer":
			target, err := uuid.Parse(msg.PlayerID)
			if err != nil {
				cmdErr = fmt.Errorf("invalid playerId")
				break
			}
			cmdErr = room.HostPreview(userID, target)

		case "hostEndRound":
			cmdErr = room.HostEndRound(userID)

		case "transferHost":
			target, err := uuid.Parse(msg.NewHostID)
			if err != nil {
				cmdErr = fmt.Errorf("invalid newHostId")
				break
			}
			cmdErr = room.TransferHost(userID, target)

		case "kickPlayer":
			target, err := uuid.Parse(msg.PlayerID)
			if err != nil {
				cmdErr = fmt.Errorf("invalid playerId")
				break
			}
			cmdErr = room.Kick(userID, target)

		case "donate":
			target, err := uuid.Parse(msg.ToUserID)
			if err != nil {
				cmdErr = fmt.Errorf("invalid toUserId")
				break
			}
			cmdErr = room.Donate(userID, target, msg.Amount)

		case "leaveRoom":
			room.Leave(userID)
			c.Close(websocket.StatusNormalClosure, "left room")
			return

		case "ping":
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})

		default:
			logger.Warnf("Unknown command type '%s' from user %s in room %s.", msg.Type, userID, room.ID)
			sendWsError(ctx, c, fmt.Sprintf("Unknown command type: %s", msg.Type))
		}

		if cmdErr != nil {
			sendWsError(ctx, c, cmdErr.Error())
		}

		select {
		case <-ctx.Done():
			logger.Infof("Context canceled after processing message for user %s in room %s.", userID, room.ID)
			return
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		} else if strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Timeout writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
