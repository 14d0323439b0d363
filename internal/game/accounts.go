// internal/game/accounts.go
package game

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/quangdm/xizach/internal/models"
)

// ErrInsufficientBalance is returned by elective transfers (donate, admin
// moves) when the sender cannot cover the amount. Round settlement applies no
// such floor: losses may legitimately push a balance negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

// AccountStore is the room engine's view of the user/balance store. Each
// method must apply its balance mutation atomically per user so concurrent
// settlement and donations cannot lose updates.
type AccountStore interface {
	// GetUser resolves a user for snapshot building and seat caching.
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	// ApplyRoundResult adds rec.Amount to the user's balance (no floor check)
	// and returns the resulting balance. History persistence rides the
	// historian queue separately.
	ApplyRoundResult(ctx context.Context, rec models.HistoryRecord) (int64, error)

	// Transfer moves amount from one user to another, failing with
	// ErrInsufficientBalance when the sender lacks funds.
	Transfer(ctx context.Context, from, to uuid.UUID, amount int64) error

	// SetCurrentRoom anchors or clears (empty roomID) the user's seat marker.
	SetCurrentRoom(ctx context.Context, id uuid.UUID, roomID string) error
}
