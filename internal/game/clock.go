// internal/game/clock.go
package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/quangdm/xizach/internal/models"
)

// turnDuration returns the effective per-turn clock.
func (r *Room) turnDuration() time.Duration {
	if r.TurnDuration > 0 {
		return r.TurnDuration
	}
	return time.Duration(r.Settings.DrawTime) * time.Second
}

// tickInterval returns the countdown tick period.
func (r *Room) tickInterval() time.Duration {
	if r.TickInterval > 0 {
		return r.TickInterval
	}
	return time.Second
}

// armPlayerTurnLocked starts (or restarts) the clock for the seat at index.
// The pending expiry is keyed by the actor's user ID, not the seat index:
// seats shift when an earlier player leaves, and the clock must keep
// following the actor. Each arm bumps turnGen so the previous timer's expiry,
// if it already fired, fails its generation check and does nothing. Assumes
// lock is held.
func (r *Room) armPlayerTurnLocked(index int) {
	if index < 0 || index >= len(r.players) {
		return
	}
	r.cancelTurnTimerLocked()
	r.turnGen++
	gen := r.turnGen
	actorID := r.players[index].UserID

	d := r.turnDuration()
	secs := int(d / time.Second)
	r.fireLocked(Event{Type: EventPlayerTurn, Payload: map[string]interface{}{
		"playerIndex": index,
		"timeLeft":    secs,
	}})
	if secs > 1 {
		stop := make(chan struct{})
		r.tickStop = stop
		go r.tickTurn(secs, stop)
	}
	r.turnTimer = time.AfterFunc(d, func() { r.expireTurn(gen, actorID) })
}

// tickTurn streams the countdown once per second, ending with the final
// timeLeft 0 tick. The seat index is re-read under the lock each tick so the
// countdown stays on the actor's current seat.
func (r *Room) tickTurn(secs int, stop chan struct{}) {
	ticker := time.NewTicker(r.tickInterval())
	defer ticker.Stop()
	left := secs
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			left--
			r.Mu.Lock()
			if r.tickStop == stop {
				r.fireLocked(Event{Type: EventPlayerTurn, Payload: map[string]interface{}{
					"playerIndex": r.currentPlayerIndex,
					"timeLeft":    left,
				}})
			}
			r.Mu.Unlock()
			if left <= 0 {
				return
			}
		}
	}
}

// expireTurn handles the turn clock firing. It re-validates generation,
// phase, actor, and status under the lock; a stale expiry is a no-op. A valid
// one auto-stands the actor and advances exactly one turn.
func (r *Room) expireTurn(gen int, actorID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.turnGen != gen || r.phase != phasePlaying {
		return
	}
	idx := -1
	for i, p := range r.players {
		if p.UserID == actorID {
			idx = i
			break
		}
	}
	if idx == -1 || r.currentPlayerIndex != idx {
		return
	}
	p := r.players[idx]
	if p.Status != models.StatusPlaying {
		return
	}

	r.Logger.Infof("room %s: turn timeout, auto-standing %s", r.ID, p.Username)
	p.Status = models.StatusStand
	r.fireLocked(Event{Type: EventPlayerStand, Room: r.snapshotLocked()})
	r.advanceLocked()
}

// armHostRevealLocked starts (or restarts, after each preview) the host
// reveal window. Expiry settles the round. Assumes lock is held.
func (r *Room) armHostRevealLocked() {
	r.cancelTurnTimerLocked()
	r.turnGen++
	gen := r.turnGen
	r.turnTimer = time.AfterFunc(r.HostRevealDuration, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.turnGen != gen || r.phase != phaseHostReveal {
			return
		}
		r.Logger.Infof("room %s: host reveal window expired, settling", r.ID)
		r.settleLocked()
	})
}

// cancelTurnTimerLocked stops whatever clock is live. Assumes lock is held.
func (r *Room) cancelTurnTimerLocked() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	if r.dealTimer != nil {
		r.dealTimer.Stop()
		r.dealTimer = nil
	}
	if r.tickStop != nil {
		close(r.tickStop)
		r.tickStop = nil
	}
}
