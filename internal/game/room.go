// internal/game/room.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quangdm/xizach/internal/cache"
	"github.com/quangdm/xizach/internal/models"
)

// Validation errors surfaced to the requesting socket. None of them imply any
// state mutation.
var (
	ErrRoomFull        = errors.New("room is full")
	ErrNotSeated       = errors.New("you are not seated at this table")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrWrongStatus     = errors.New("cannot act in your current status")
	ErrNotHost         = errors.New("only the host may do that")
	ErrPlayerNotFound  = errors.New("player not found in this room")
	ErrNoActiveRound   = errors.New("no round in progress")
	ErrNoRevealStage   = errors.New("host reveal stage is not active")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrRoundInProgress = errors.New("round already in progress")
)

const dbTimeout = 5 * time.Second

// phase is the explicit session phase. The client only knows the three wire
// statuses; hostReveal and settling are internal refinements of them.
type phase int

const (
	phaseWaiting phase = iota
	phasePlaying
	phaseHostReveal
	phaseSettling
)

func (p phase) wireStatus() string {
	switch p {
	case phasePlaying, phaseHostReveal:
		return "playing"
	case phaseSettling:
		return "finished"
	default:
		return "waiting"
	}
}

// Settings are the table parameters fixed at creation.
type Settings struct {
	BetAmount int64  `json:"betAmount"`
	DrawTime  int    `json:"drawTime"` // seconds per player turn
	Password  string `json:"-"`
}

// RoundResult is one player's line in the settlement broadcast.
type RoundResult struct {
	PlayerID   uuid.UUID `json:"playerId"`
	Outcome    Outcome   `json:"outcome"`
	FinalScore int       `json:"finalScore"`
	Amount     int64     `json:"amount"`
	NewBalance int64     `json:"newBalance"`
}

// Room holds the entire authoritative state for a single table. All exported
// command methods serialize on Mu across the whole validate-mutate-broadcast
// sequence; timer callbacks re-acquire it and re-validate against turnGen so a
// stale expiry is a no-op.
type Room struct {
	ID       string
	Name     string
	GameType string
	HostID   uuid.UUID
	Settings Settings

	players []*models.Player

	phase              phase
	currentPlayerIndex int
	deck               Deck
	dealerCards        []models.Card
	dealerScore        int

	// Turn clock. At most one of turnTimer/dealTimer is live at a time and
	// every transition goes through cancelTurnTimerLocked before arming.
	turnGen   int
	turnTimer *time.Timer
	dealTimer *time.Timer
	tickStop  chan struct{}

	// TurnDuration overrides Settings.DrawTime when non-zero (tests).
	TurnDuration       time.Duration
	HostRevealDuration time.Duration
	DealDelay          time.Duration
	TickInterval       time.Duration

	Mu sync.Mutex

	// BroadcastFn sends an event to the given connections. Implementations
	// must not touch room state; recipients are snapshotted under the lock.
	BroadcastFn func(conns []*websocket.Conn, ev Event)

	// BroadcastToUserFn sends an event to a single connection.
	BroadcastToUserFn func(conn *websocket.Conn, ev Event)

	// OnEmpty is invoked after the last player leaves, so the owning store can
	// drop the room.
	OnEmpty func(roomID string)

	Accounts AccountStore
	Logger   *logrus.Logger
}

// NewRoom builds an empty table owned by hostID.
func NewRoom(id, name, gameType string, hostID uuid.UUID, settings Settings) *Room {
	if settings.DrawTime <= 0 {
		settings.DrawTime = 30
	}
	return &Room{
		ID:                 id,
		Name:               name,
		GameType:           gameType,
		HostID:             hostID,
		Settings:           settings,
		phase:              phaseWaiting,
		currentPlayerIndex: -1,
		HostRevealDuration: 60 * time.Second,
		DealDelay:          2 * time.Second,
		Logger:             logrus.StandardLogger(),
	}
}

// Snapshot returns the current public room state.
func (r *Room) Snapshot() *RoomSnapshot {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.snapshotLocked()
}

// PlayerCount returns the number of seated players.
func (r *Room) PlayerCount() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return len(r.players)
}

// Waiting reports whether the room is between rounds.
func (r *Room) Waiting() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.phase == phaseWaiting
}

// Join seats the user at the next free position, or refreshes the connection
// if they are already seated. Joining a full table fails with ErrRoomFull.
func (r *Room) Join(user *models.User, conn *websocket.Conn) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if p := r.findPlayerLocked(user.ID); p != nil {
		p.Conn = conn
		p.Connected = conn != nil
		p.Username = user.Username
		p.Balance = user.Balance
		r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
		return nil
	}

	if len(r.players) >= 7 {
		return ErrRoomFull
	}

	p := &models.Player{
		UserID:    user.ID,
		Username:  user.Username,
		Balance:   user.Balance,
		Position:  r.nextFreePositionLocked(),
		Cards:     []models.Card{},
		Status:    models.StatusWaiting,
		Conn:      conn,
		Connected: conn != nil,
	}
	r.players = append(r.players, p)

	if r.Accounts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		if err := r.Accounts.SetCurrentRoom(ctx, user.ID, r.ID); err != nil {
			r.Logger.Warnf("room %s: failed to anchor user %s: %v", r.ID, user.ID, err)
		}
		cancel()
	}

	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
	return nil
}

// ToggleReady flips the caller's ready flag and auto-starts the round when
// every seated player is ready.
func (r *Room) ToggleReady(userID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.phase != phaseWaiting {
		return ErrRoundInProgress
	}
	p := r.findPlayerLocked(userID)
	if p == nil {
		return ErrNotSeated
	}
	p.IsReady = !p.IsReady
	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
	r.tryStartLocked()
	return nil
}

// TryStart begins the round if the table is waiting and everyone is ready.
// Kept for clients that still send an explicit startGame command.
func (r *Room) TryStart() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.tryStartLocked()
}

// tryStartLocked transitions waiting -> playing: fresh shuffled deck, two
// cards to every seat and the dealer, first actor is the first seat whose user
// is not the host. The first turn timer is armed after the deal grace delay.
// Assumes lock is held.
func (r *Room) tryStartLocked() {
	if r.phase != phaseWaiting || len(r.players) == 0 {
		return
	}
	for _, p := range r.players {
		if !p.IsReady {
			return
		}
	}

	r.deck = NewShuffledDeck()
	for _, p := range r.players {
		c1, _ := r.deck.Draw()
		c2, _ := r.deck.Draw()
		p.Cards = []models.Card{c1, c2}
		p.Score = HandScore(p.Cards)
		p.Status = models.StatusPlaying
	}
	d1, _ := r.deck.Draw()
	d2, _ := r.deck.Draw()
	r.dealerCards = []models.Card{d1, d2}
	r.dealerScore = HandScore(r.dealerCards)

	start := 0
	for i, p := range r.players {
		if p.UserID != r.HostID {
			start = i
			break
		}
	}
	r.phase = phasePlaying
	r.currentPlayerIndex = start

	r.Logger.Infof("room %s: round started, %d players, first turn index %d", r.ID, len(r.players), start)
	r.fireLocked(Event{Type: EventGameStarted, Room: r.snapshotLocked()})

	// Give clients the deal animation window before the first countdown. The
	// actor's seat is re-read at fire time; a leave during the grace window
	// shifts the index.
	r.cancelTurnTimerLocked()
	r.turnGen++
	gen := r.turnGen
	r.dealTimer = time.AfterFunc(r.DealDelay, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.phase != phasePlaying || r.turnGen != gen {
			return
		}
		r.armPlayerTurnLocked(r.currentPlayerIndex)
	})
}

// Hit draws one card for the acting player. A bust advances the turn; any
// other score re-arms the clock with the full draw time.
func (r *Room) Hit(userID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p, err := r.currentActorLocked(userID)
	if err != nil {
		return err
	}

	card, err := r.deck.Draw()
	if err != nil {
		return err
	}
	p.Cards = append(p.Cards, card)
	p.Score = HandScore(p.Cards)

	if p.Score > 21 {
		p.Status = models.StatusBust
		r.fireLocked(Event{Type: EventPlayerHit, Room: r.snapshotLocked()})
		r.advanceLocked()
		return nil
	}

	r.armPlayerTurnLocked(r.currentPlayerIndex)
	r.fireLocked(Event{Type: EventPlayerHit, Room: r.snapshotLocked()})
	return nil
}

// Stand ends the acting player's turn.
func (r *Room) Stand(userID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p, err := r.currentActorLocked(userID)
	if err != nil {
		return err
	}
	p.Status = models.StatusStand
	r.fireLocked(Event{Type: EventPlayerStand, Room: r.snapshotLocked()})
	r.advanceLocked()
	return nil
}

// currentActorLocked validates that userID owns the current turn and may act.
// Assumes lock is held.
func (r *Room) currentActorLocked(userID uuid.UUID) (*models.Player, error) {
	if r.phase != phasePlaying {
		return nil, ErrNoActiveRound
	}
	if r.currentPlayerIndex < 0 || r.currentPlayerIndex >= len(r.players) {
		return nil, ErrNoActiveRound
	}
	p := r.players[r.currentPlayerIndex]
	if p.UserID != userID {
		return nil, ErrNotYourTurn
	}
	if p.Status != models.StatusPlaying {
		return nil, ErrWrongStatus
	}
	return p, nil
}

// advanceLocked moves the turn to the next seat still playing, wrapping at
// most once. When nobody is left playing the room enters the host reveal
// stage. Assumes lock is held.
func (r *Room) advanceLocked() {
	n := len(r.players)
	if n == 0 {
		return
	}
	next := (r.currentPlayerIndex + 1) % n
	for attempts := 0; attempts < n && r.players[next].Status != models.StatusPlaying; attempts++ {
		next = (next + 1) % n
	}
	if r.players[next].Status != models.StatusPlaying {
		r.enterHostRevealLocked()
		return
	}
	r.currentPlayerIndex = next
	r.armPlayerTurnLocked(next)
	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
}

// enterHostRevealLocked opens the 60-second host window once every player has
// stood or busted. Assumes lock is held.
func (r *Room) enterHostRevealLocked() {
	r.phase = phaseHostReveal
	r.Logger.Infof("room %s: all players done, host reveal stage", r.ID)
	r.fireLocked(Event{Type: EventHostStage, Room: r.snapshotLocked()})
	r.armHostRevealLocked()
}

// HostPreview compares one player's hand against the dealer's and broadcasts
// the comparison. Each preview resets the host reveal timer.
func (r *Room) HostPreview(callerID, targetID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if callerID != r.HostID {
		return ErrNotHost
	}
	if r.phase != phaseHostReveal {
		return ErrNoRevealStage
	}
	p := r.findPlayerLocked(targetID)
	if p == nil {
		return ErrPlayerNotFound
	}

	// The preview is private to the host; the table only sees the reveal
	// timer restart.
	outcome := CompareHands(p.Cards, r.dealerCards)
	r.fireToUserLocked(r.HostID, Event{
		Type: EventHostShowResult,
		Payload: map[string]interface{}{
			"roomId":     r.ID,
			"playerId":   p.UserID,
			"username":   p.Username,
			"cards":      p.Cards,
			"finalScore": HandScore(p.Cards),
			"outcome":    outcome,
		},
	})
	r.armHostRevealLocked()
	return nil
}

// HostEndRound forces settlement. Only the host may call it; it works both
// mid-round and during the reveal stage.
func (r *Room) HostEndRound(callerID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if callerID != r.HostID {
		return ErrNotHost
	}
	if r.phase != phasePlaying && r.phase != phaseHostReveal {
		return ErrNoActiveRound
	}
	r.settleLocked()
	return nil
}

// settleLocked runs the dealer, applies every participant's outcome to their
// balance exactly once, broadcasts the result set, and resets the table to
// waiting. Assumes lock is held.
func (r *Room) settleLocked() {
	r.cancelTurnTimerLocked()
	r.phase = phaseSettling

	// Dealer stands on 16. Deck exhaustion stops the draw; the round settles
	// on whatever dealer hand exists.
	for r.dealerScore < 16 && len(r.deck) > 0 {
		card, err := r.deck.Draw()
		if err != nil {
			break
		}
		r.dealerCards = append(r.dealerCards, card)
		r.dealerScore = HandScore(r.dealerCards)
	}

	results := make([]RoundResult, 0, len(r.players))
	for _, p := range r.players {
		outcome := CompareHands(p.Cards, r.dealerCards)
		var delta int64
		switch outcome {
		case OutcomeWin:
			delta = r.Settings.BetAmount
		case OutcomeLose:
			delta = -r.Settings.BetAmount
		}

		rec := models.HistoryRecord{
			UserID:    p.UserID,
			GameType:  r.GameType,
			Result:    string(outcome),
			Amount:    delta,
			Timestamp: time.Now(),
		}

		newBalance := p.Balance
		if r.Accounts != nil {
			ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
			applied, err := r.Accounts.ApplyRoundResult(ctx, rec)
			cancel()
			if err != nil {
				r.Logger.Errorf("room %s: failed to settle player %s: %v", r.ID, p.UserID, err)
				r.fireLocked(Event{Type: EventError, Payload: map[string]interface{}{
					"message": "failed to record a round result",
				}})
				continue
			}
			newBalance = applied
			p.Balance = applied
		}

		results = append(results, RoundResult{
			PlayerID:   p.UserID,
			Outcome:    outcome,
			FinalScore: HandScore(p.Cards),
			Amount:     delta,
			NewBalance: newBalance,
		})

		go func(rec models.HistoryRecord) {
			if err := cache.PublishHistoryRecord(context.Background(), rec); err != nil {
				r.Logger.Warnf("room %s: historian publish failed: %v", r.ID, err)
			}
		}(rec)
	}

	r.Logger.Infof("room %s: round finished, %d results", r.ID, len(results))
	r.fireLocked(Event{
		Type:    EventRoundFinished,
		Room:    r.snapshotLocked(),
		Payload: map[string]interface{}{"results": results},
	})

	r.resetLocked()
	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
}

// resetLocked returns the table to the waiting state after settlement.
// Assumes lock is held.
func (r *Room) resetLocked() {
	for _, p := range r.players {
		p.Cards = []models.Card{}
		p.Score = 0
		p.Status = models.StatusWaiting
		p.IsReady = false
	}
	r.deck = nil
	r.dealerCards = nil
	r.dealerScore = 0
	r.currentPlayerIndex = -1
	r.phase = phaseWaiting
}

// TransferHost reassigns the host role to another seated player, effective
// immediately.
func (r *Room) TransferHost(callerID, newHostID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if callerID != r.HostID {
		return ErrNotHost
	}
	if r.findPlayerLocked(newHostID) == nil {
		return ErrPlayerNotFound
	}
	r.HostID = newHostID
	r.fireLocked(Event{Type: EventHostTransferred, Room: r.snapshotLocked()})
	return nil
}

// Kick removes another seated player. An emptied room is destroyed instead of
// broadcast.
func (r *Room) Kick(callerID, targetID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if callerID != r.HostID {
		return ErrNotHost
	}
	if callerID == targetID {
		return ErrPlayerNotFound
	}
	removed, destroyed := r.removePlayerLocked(targetID)
	if !removed {
		return ErrPlayerNotFound
	}
	if destroyed {
		return nil
	}
	r.fireLocked(Event{Type: EventPlayerKicked, Payload: map[string]interface{}{
		"targetUserId": targetID,
		"roomName":     r.Name,
	}})
	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
	return nil
}

// Leave releases the caller's seat. Departure of the host promotes the first
// remaining seat; departure of the last player destroys the room.
func (r *Room) Leave(userID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	removed, destroyed := r.removePlayerLocked(userID)
	if !removed {
		return
	}
	if r.Accounts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		if err := r.Accounts.SetCurrentRoom(ctx, userID, ""); err != nil {
			r.Logger.Warnf("room %s: failed to clear anchor for %s: %v", r.ID, userID, err)
		}
		cancel()
	}
	if !destroyed {
		r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
	}
}

// HandleDisconnect treats a dropped connection as a leave.
func (r *Room) HandleDisconnect(userID uuid.UUID) {
	r.Leave(userID)
}

// removePlayerLocked drops a seat and repairs turn state around the gap.
// Returns whether a player was removed and whether the room was destroyed.
// Assumes lock is held.
func (r *Room) removePlayerLocked(userID uuid.UUID) (removed, destroyed bool) {
	idx := -1
	for i, p := range r.players {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, false
	}

	wasCurrent := r.phase == phasePlaying && idx == r.currentPlayerIndex
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	if len(r.players) == 0 {
		r.destroyLocked()
		return true, true
	}

	if r.HostID == userID {
		r.HostID = r.players[0].UserID
	}

	if r.phase == phasePlaying {
		if wasCurrent {
			// Point the index at the seat before the gap so the scan resumes
			// at the departed player's successor.
			r.currentPlayerIndex = idx - 1
			r.advanceLocked()
		} else if idx < r.currentPlayerIndex {
			r.currentPlayerIndex--
		}
	}
	return true, false
}

// destroyLocked cancels the clock, announces the deletion, and hands the room
// back to its store. Assumes lock is held.
func (r *Room) destroyLocked() {
	r.cancelTurnTimerLocked()
	r.phase = phaseWaiting
	r.fireLocked(Event{Type: EventRoomDeleted, Payload: map[string]interface{}{"roomId": r.ID}})
	if r.OnEmpty != nil {
		r.OnEmpty(r.ID)
	}
}

// Donate moves xu between two seated users, gated only by the sender's
// balance. Works regardless of round status.
func (r *Room) Donate(fromID, toID uuid.UUID, amount int64) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if amount <= 0 {
		return ErrInvalidAmount
	}
	from := r.findPlayerLocked(fromID)
	to := r.findPlayerLocked(toID)
	if from == nil || to == nil {
		return ErrPlayerNotFound
	}

	if r.Accounts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		err := r.Accounts.Transfer(ctx, fromID, toID, amount)
		cancel()
		if err != nil {
			return err
		}
	} else if from.Balance < amount {
		return ErrInsufficientBalance
	}
	from.Balance -= amount
	to.Balance += amount

	ev := Event{Type: EventDonateReceived, Payload: map[string]interface{}{
		"roomId":   r.ID,
		"toUserId": toID,
		"fromUser": map[string]interface{}{"id": fromID, "username": from.Username},
		"amount":   amount,
	}}
	r.fireLocked(ev)
	r.fireToUserLocked(toID, ev)
	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
	return nil
}

// NotifyUser pushes an event to one seated user's connection, if any. Used by
// out-of-band paths such as admin balance transfers.
func (r *Room) NotifyUser(userID uuid.UUID, ev Event) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	p := r.findPlayerLocked(userID)
	if p == nil {
		return false
	}
	if nb, ok := ev.Payload["newBalance"].(int64); ok {
		p.Balance = nb
	}
	r.fireToUserLocked(userID, ev)
	r.fireLocked(Event{Type: EventRoomUpdate, Room: r.snapshotLocked()})
	return true
}

// HasPlayer reports whether the user is seated here.
func (r *Room) HasPlayer(userID uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.findPlayerLocked(userID) != nil
}

func (r *Room) findPlayerLocked(userID uuid.UUID) *models.Player {
	for _, p := range r.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// nextFreePositionLocked returns the lowest seat number not in use.
// Assumes lock is held.
func (r *Room) nextFreePositionLocked() int {
	for pos := 0; pos < 7; pos++ {
		taken := false
		for _, p := range r.players {
			if p.Position == pos {
				taken = true
				break
			}
		}
		if !taken {
			return pos
		}
	}
	return len(r.players)
}

// fireLocked broadcasts to every connected seat. The connection list is
// snapshotted under the lock; the broadcast function must not reach back into
// the room. Assumes lock is held.
func (r *Room) fireLocked(ev Event) {
	if r.BroadcastFn == nil {
		return
	}
	conns := make([]*websocket.Conn, 0, len(r.players))
	for _, p := range r.players {
		if p.Connected && p.Conn != nil {
			conns = append(conns, p.Conn)
		}
	}
	r.BroadcastFn(conns, ev)
}

// fireToUserLocked sends to one seat's connection. The connection may be nil
// (player mid-reconnect); implementations must tolerate that. Assumes lock is
// held.
func (r *Room) fireToUserLocked(userID uuid.UUID, ev Event) {
	if r.BroadcastToUserFn == nil {
		return
	}
	p := r.findPlayerLocked(userID)
	if p == nil {
		return
	}
	r.BroadcastToUserFn(p.Conn, ev)
}
