// internal/handlers/admin.go
package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/quangdm/xizach/internal/game"
)

type adminTransferRequest struct {
	AdminID string `json:"adminId"`
	UserID  string `json:"userId"`
	Amount  int64  `json:"amount"` // negative deducts, returning xu to the admin account
}

// AdminTransferHandler moves xu between the admin account and a user. A
// credit is funded by the admin's own balance and fails when it does not
// suffice; a deduction flows back to the admin and is bounded by the user's
// balance. The affected user is notified over their live connection, seated
// at a table or not.
func (rs *RoomServer) AdminTransferHandler(w http.ResponseWriter, r *http.Request) {
	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" || r.Header.Get("X-Admin-Token") != adminToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req adminTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	adminID, err := uuid.Parse(req.AdminID)
	if err != nil {
		http.Error(w, "invalid adminId", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}
	if req.Amount == 0 {
		http.Error(w, "amount must be non-zero", http.StatusBadRequest)
		return
	}

	from, to := adminID, userID
	moved := req.Amount
	if req.Amount < 0 {
		from, to = userID, adminID
		moved = -req.Amount
	}
	if err := rs.Accounts.Transfer(r.Context(), from, to, moved); err != nil {
		if err == game.ErrInsufficientBalance {
			http.Error(w, "insufficient balance for the transfer", http.StatusConflict)
			return
		}
		log.Errorf("admin transfer of %d from %s to %s failed: %v", moved, from, to, err)
		http.Error(w, "failed to transfer balance", http.StatusInternalServerError)
		return
	}

	u, err := rs.Accounts.GetUser(r.Context(), userID)
	if err != nil {
		log.Errorf("failed to reload user %s after admin transfer: %v", userID, err)
		http.Error(w, "transfer applied but user reload failed", http.StatusInternalServerError)
		return
	}

	log.Infof("admin %s adjusted balance of %s by %d (now %d)", adminID, userID, req.Amount, u.Balance)

	ev := game.Event{
		Type: game.EventBalanceUpdate,
		Payload: map[string]interface{}{
			"userId":     userID,
			"amount":     req.Amount,
			"newBalance": u.Balance,
		},
	}
	if room, ok := rs.Rooms.FindByUser(userID); ok {
		room.NotifyUser(userID, ev)
	} else if conn, ok := rs.Sessions.Get(userID); ok {
		createBroadcastToUserFunc(log.StandardLogger())(conn, ev)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"userId":     userID,
		"newBalance": u.Balance,
	})
}
