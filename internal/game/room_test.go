// internal/game/room_test.go
package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdm/xizach/internal/models"
)

// eventRecorder captures everything a room broadcasts.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (er *eventRecorder) broadcast(conns []*websocket.Conn, ev Event) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.events = append(er.events, ev)
}

func (er *eventRecorder) count(t EventType) int {
	er.mu.Lock()
	defer er.mu.Unlock()
	n := 0
	for _, ev := range er.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (er *eventRecorder) last(t EventType) (Event, bool) {
	er.mu.Lock()
	defer er.mu.Unlock()
	for i := len(er.events) - 1; i >= 0; i-- {
		if er.events[i].Type == t {
			return er.events[i], true
		}
	}
	return Event{}, false
}

// fakeAccounts is an in-memory AccountStore.
type fakeAccounts struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	rooms    map[uuid.UUID]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		balances: make(map[uuid.UUID]int64),
		rooms:    make(map[uuid.UUID]string),
	}
}

func (f *fakeAccounts) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.User{ID: id, Balance: f.balances[id], IsActive: true}, nil
}

func (f *fakeAccounts) ApplyRoundResult(ctx context.Context, rec models.HistoryRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[rec.UserID] += rec.Amount
	return f.balances[rec.UserID], nil
}

func (f *fakeAccounts) Transfer(ctx context.Context, from, to uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[from] < amount {
		return ErrInsufficientBalance
	}
	f.balances[from] -= amount
	f.balances[to] += amount
	return nil
}

func (f *fakeAccounts) SetCurrentRoom(ctx context.Context, id uuid.UUID, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[id] = roomID
	return nil
}

func (f *fakeAccounts) balance(id uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id]
}

// newTestRoom seats n users (the first is host) with 1000 xu each.
func newTestRoom(t *testing.T, n int) (*Room, []*models.User, *fakeAccounts, *eventRecorder) {
	t.Helper()

	accounts := newFakeAccounts()
	rec := &eventRecorder{}

	users := make([]*models.User, n)
	for i := range users {
		id := uuid.New()
		users[i] = &models.User{ID: id, Username: string(rune('A' + i)), Balance: 1000, IsActive: true}
		accounts.mu.Lock()
		accounts.balances[id] = 1000
		accounts.mu.Unlock()
	}

	r := NewRoom("TESTROOM", "test table", "xizach", users[0].ID, Settings{
		BetAmount: 100,
		DrawTime:  30,
	})
	r.Accounts = accounts
	r.BroadcastFn = rec.broadcast
	r.DealDelay = time.Hour // keep the deal timer out of deterministic tests

	for _, u := range users {
		require.NoError(t, r.Join(u, nil))
	}
	return r, users, accounts, rec
}

// startRound marks everyone ready, which triggers the deal.
func startRound(t *testing.T, r *Room, users []*models.User) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, r.ToggleReady(u.ID))
	}
	require.False(t, r.Waiting(), "round should have started")
}

func TestJoinFullRoomRejected(t *testing.T) {
	r, _, _, _ := newTestRoom(t, 7)
	extra := &models.User{ID: uuid.New(), Username: "H", Balance: 1000}
	assert.ErrorIs(t, r.Join(extra, nil), ErrRoomFull)
	assert.Equal(t, 7, r.PlayerCount())
}

func TestJoinTwiceIsIdempotent(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 2)
	require.NoError(t, r.Join(users[0], nil))
	assert.Equal(t, 2, r.PlayerCount())
}

func TestSeatPositionsReuseGaps(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	r.Leave(users[1].ID)

	late := &models.User{ID: uuid.New(), Username: "D", Balance: 1000}
	require.NoError(t, r.Join(late, nil))

	snap := r.Snapshot()
	positions := map[int]bool{}
	for _, p := range snap.Players {
		positions[p.Position] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, positions,
		"the vacated seat should be reused")
}

func TestRoundStartsWhenAllReady(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 3)

	require.NoError(t, r.ToggleReady(users[0].ID))
	require.NoError(t, r.ToggleReady(users[1].ID))
	assert.True(t, r.Waiting(), "round must not start before everyone is ready")

	require.NoError(t, r.ToggleReady(users[2].ID))
	assert.False(t, r.Waiting())
	assert.Equal(t, 1, rec.count(EventGameStarted))

	snap := r.Snapshot()
	assert.Equal(t, "playing", snap.GameState.Status)
	assert.Len(t, snap.GameState.DealerCards, 2)
	assert.Equal(t, 52-2*3-2, snap.GameState.DeckSize)
	for _, p := range snap.Players {
		assert.Len(t, p.Cards, 2)
		assert.Equal(t, models.StatusPlaying, p.Status)
	}
}

func TestFirstActorIsNotHost(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	startRound(t, r, users)

	snap := r.Snapshot()
	idx := snap.GameState.CurrentPlayerIndex
	require.GreaterOrEqual(t, idx, 0)
	assert.NotEqual(t, r.HostID, snap.Players[idx].UserID)
}

func TestReadyToggleRejectedMidRound(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 2)
	startRound(t, r, users)
	assert.ErrorIs(t, r.ToggleReady(users[0].ID), ErrRoundInProgress)
}

func TestHitOutOfTurnRejected(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	startRound(t, r, users)

	idx := r.Snapshot().GameState.CurrentPlayerIndex
	for _, u := range users {
		if u.ID != r.Snapshot().Players[idx].UserID {
			assert.ErrorIs(t, r.Hit(u.ID), ErrNotYourTurn)
			assert.ErrorIs(t, r.Stand(u.ID), ErrNotYourTurn)
			return
		}
	}
}

func TestAdvanceSkipsStoodAndBustedSeats(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 4)
	startRound(t, r, users)

	// Shape the table by hand: seats 0 and 2 already done, 1 acting, 3 waiting
	// its turn.
	r.Mu.Lock()
	r.players[0].Status = models.StatusStand
	r.players[1].Status = models.StatusPlaying
	r.players[2].Status = models.StatusBust
	r.players[3].Status = models.StatusPlaying
	r.currentPlayerIndex = 1
	r.Mu.Unlock()

	require.NoError(t, r.Stand(r.players[1].UserID))

	snap := r.Snapshot()
	assert.Equal(t, 3, snap.GameState.CurrentPlayerIndex, "seat 2 (bust) must be skipped")
}

func TestAllDoneEntersHostRevealStage(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 2)
	r.HostRevealDuration = time.Hour
	startRound(t, r, users)

	// Stand everyone in turn order until nobody is left playing.
	for i := 0; i < len(users); i++ {
		snap := r.Snapshot()
		idx := snap.GameState.CurrentPlayerIndex
		if idx < 0 {
			break
		}
		require.NoError(t, r.Stand(snap.Players[idx].UserID))
	}

	assert.Equal(t, 1, rec.count(EventHostStage))
	snap := r.Snapshot()
	assert.True(t, snap.GameState.HostReveal)
	assert.Equal(t, "playing", snap.GameState.Status, "reveal stage still reads as playing on the wire")
}

func TestTurnTimerExpiryAutoStandsOnce(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 3)
	startRound(t, r, users)

	r.Mu.Lock()
	for _, p := range r.players {
		p.Status = models.StatusPlaying
	}
	r.currentPlayerIndex = 1
	r.armPlayerTurnLocked(1)
	gen := r.turnGen
	actor := r.players[1].UserID
	r.Mu.Unlock()

	standsBefore := rec.count(EventPlayerStand)
	r.expireTurn(gen, actor)

	snap := r.Snapshot()
	assert.Equal(t, models.StatusStand, snap.Players[1].Status)
	assert.Equal(t, 2, snap.GameState.CurrentPlayerIndex, "expiry advances exactly one turn")
	assert.Equal(t, standsBefore+1, rec.count(EventPlayerStand))

	// A stale expiry from the old generation must be a no-op.
	r.expireTurn(gen, actor)
	snap = r.Snapshot()
	assert.Equal(t, 2, snap.GameState.CurrentPlayerIndex)
	assert.Equal(t, standsBefore+1, rec.count(EventPlayerStand))
}

func TestTurnClockFollowsActorWhenEarlierSeatLeaves(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	startRound(t, r, users)

	r.Mu.Lock()
	for _, p := range r.players {
		p.Status = models.StatusPlaying
	}
	r.currentPlayerIndex = 2
	r.armPlayerTurnLocked(2)
	gen := r.turnGen
	actor := r.players[2].UserID
	r.Mu.Unlock()

	// A seat before the actor frees up mid-turn; the actor shifts to index 1
	// but the armed clock must still reach them.
	r.Leave(users[0].ID)

	r.expireTurn(gen, actor)

	snap := r.Snapshot()
	require.Equal(t, 2, len(snap.Players))
	assert.Equal(t, models.StatusStand, snap.Players[1].Status, "the actor must be auto-stood despite the seat shift")
}

func TestDealGraceFollowsShiftedActor(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 3)
	r.DealDelay = 50 * time.Millisecond
	startRound(t, r, users)

	// Host (seat 0) leaves during the deal grace window; the first actor
	// shifts from index 1 to index 0.
	r.Leave(users[0].ID)

	time.Sleep(150 * time.Millisecond)

	ev, ok := rec.last(EventPlayerTurn)
	require.True(t, ok, "the first turn must still be armed after the grace window")
	assert.Equal(t, 0, ev.Payload["playerIndex"])
}

func TestCountdownEmitsFinalZeroTick(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 2)
	r.TurnDuration = time.Hour // expiry never fires during the test
	r.TickInterval = 10 * time.Millisecond
	startRound(t, r, users)

	r.Mu.Lock()
	stop := make(chan struct{})
	r.tickStop = stop
	go r.tickTurn(2, stop)
	r.Mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	var seen []int
	rec.mu.Lock()
	for _, ev := range rec.events {
		if ev.Type == EventPlayerTurn {
			if left, ok := ev.Payload["timeLeft"].(int); ok {
				seen = append(seen, left)
			}
		}
	}
	rec.mu.Unlock()
	assert.Contains(t, seen, 1)
	assert.Contains(t, seen, 0, "the countdown must end on an explicit zero tick")
}

func TestStaleExpiryAfterPlayerActedIsNoop(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	startRound(t, r, users)

	r.Mu.Lock()
	for _, p := range r.players {
		p.Status = models.StatusPlaying
	}
	r.currentPlayerIndex = 1
	r.armPlayerTurnLocked(1)
	gen := r.turnGen
	actor := r.players[1].UserID
	r.Mu.Unlock()

	require.NoError(t, r.Stand(actor))
	idxAfter := r.Snapshot().GameState.CurrentPlayerIndex

	r.expireTurn(gen, actor)
	assert.Equal(t, idxAfter, r.Snapshot().GameState.CurrentPlayerIndex)
}

func TestHitBustAdvancesTurn(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	startRound(t, r, users)

	r.Mu.Lock()
	for _, p := range r.players {
		p.Status = models.StatusPlaying
	}
	r.currentPlayerIndex = 1
	p := r.players[1]
	p.Cards = hand("K", "Q", "5") // already 25 after the next draw regardless
	p.Score = HandScore(p.Cards)
	r.Mu.Unlock()

	require.NoError(t, r.Hit(p.UserID))

	snap := r.Snapshot()
	assert.Equal(t, models.StatusBust, snap.Players[1].Status)
	assert.Len(t, snap.Players[1].Cards, 4)
	assert.Equal(t, 2, snap.GameState.CurrentPlayerIndex)
}

func TestHitOnEmptyDeckFailsWithoutMutation(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 2)
	startRound(t, r, users)

	r.Mu.Lock()
	r.deck = Deck{}
	idx := r.currentPlayerIndex
	actor := r.players[idx].UserID
	cardsBefore := len(r.players[idx].Cards)
	r.Mu.Unlock()

	assert.ErrorIs(t, r.Hit(actor), ErrDeckEmpty)

	snap := r.Snapshot()
	assert.Len(t, snap.Players[idx].Cards, cardsBefore)
	assert.Equal(t, models.StatusPlaying, snap.Players[idx].Status)
	assert.Equal(t, idx, snap.GameState.CurrentPlayerIndex)
}

func TestHostPreviewOnlyDuringRevealStage(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 2)
	r.HostRevealDuration = time.Hour
	var private []Event
	r.BroadcastToUserFn = func(conn *websocket.Conn, ev Event) {
		private = append(private, ev)
	}
	startRound(t, r, users)

	assert.ErrorIs(t, r.HostPreview(users[0].ID, users[1].ID), ErrNoRevealStage)
	assert.ErrorIs(t, r.HostPreview(users[1].ID, users[0].ID), ErrNotHost)

	r.Mu.Lock()
	for _, p := range r.players {
		p.Status = models.StatusStand
	}
	r.enterHostRevealLocked()
	r.Mu.Unlock()

	require.NoError(t, r.HostPreview(users[0].ID, users[1].ID))

	// The comparison goes to the host only; the table never sees it.
	require.Len(t, private, 1)
	assert.Equal(t, EventHostShowResult, private[0].Type)
	assert.Equal(t, users[1].ID, private[0].Payload["playerId"])
	assert.Contains(t, private[0].Payload, "outcome")
	assert.Equal(t, 0, rec.count(EventHostShowResult))
}

func TestHostEndRoundSettlesAndResets(t *testing.T) {
	r, users, accounts, rec := newTestRoom(t, 3)
	startRound(t, r, users)

	// Deterministic hands: seat1 beats the dealer, seat2 pushes, host (seat0)
	// loses. Empty deck keeps the dealer at 19.
	r.Mu.Lock()
	r.deck = Deck{}
	r.dealerCards = hand("10", "9")
	r.dealerScore = HandScore(r.dealerCards)
	r.players[0].Cards = hand("10", "8")
	r.players[1].Cards = hand("10", "10")
	r.players[2].Cards = hand("10", "9")
	for _, p := range r.players {
		p.Score = HandScore(p.Cards)
		p.Status = models.StatusStand
	}
	r.Mu.Unlock()

	require.NoError(t, r.HostEndRound(users[0].ID))

	ev, ok := rec.last(EventRoundFinished)
	require.True(t, ok)
	results := ev.Payload["results"].([]RoundResult)
	require.Len(t, results, 3)

	byPlayer := map[uuid.UUID]RoundResult{}
	for _, res := range results {
		byPlayer[res.PlayerID] = res
	}
	assert.Equal(t, OutcomeLose, byPlayer[users[0].ID].Outcome)
	assert.Equal(t, int64(-100), byPlayer[users[0].ID].Amount)
	assert.Equal(t, OutcomeWin, byPlayer[users[1].ID].Outcome)
	assert.Equal(t, int64(100), byPlayer[users[1].ID].Amount)
	assert.Equal(t, OutcomePush, byPlayer[users[2].ID].Outcome)
	assert.Equal(t, int64(0), byPlayer[users[2].ID].Amount)

	assert.Equal(t, int64(900), accounts.balance(users[0].ID))
	assert.Equal(t, int64(1100), accounts.balance(users[1].ID))
	assert.Equal(t, int64(1000), accounts.balance(users[2].ID))

	// Table resets to waiting immediately after settlement.
	snap := r.Snapshot()
	assert.Equal(t, "waiting", snap.GameState.Status)
	assert.Empty(t, snap.GameState.DealerCards)
	for _, p := range snap.Players {
		assert.Empty(t, p.Cards)
		assert.Equal(t, models.StatusWaiting, p.Status)
		assert.False(t, p.IsReady)
	}
}

func TestSettlementBlackjackAgainstDealer(t *testing.T) {
	r, users, accounts, _ := newTestRoom(t, 2)
	startRound(t, r, users)

	// Player holds 10+A (blackjack), dealer 9+8 stands at 17.
	r.Mu.Lock()
	r.deck = Deck{}
	r.dealerCards = []models.Card{card("9", models.Diamonds), card("8", models.Clubs)}
	r.dealerScore = HandScore(r.dealerCards)
	r.players[0].Cards = hand("9", "8") // host pushes at 17
	r.players[1].Cards = []models.Card{card("10", models.Spades), card("A", models.Hearts)}
	for _, p := range r.players {
		p.Score = HandScore(p.Cards)
		p.Status = models.StatusStand
	}
	r.Mu.Unlock()

	require.NoError(t, r.HostEndRound(users[0].ID))
	assert.Equal(t, int64(1000), accounts.balance(users[0].ID))
	assert.Equal(t, int64(1100), accounts.balance(users[1].ID))
}

func TestSettlementBothBlackjackPushes(t *testing.T) {
	r, users, accounts, _ := newTestRoom(t, 2)
	startRound(t, r, users)

	r.Mu.Lock()
	r.deck = Deck{}
	r.dealerCards = hand("A", "K")
	r.dealerScore = HandScore(r.dealerCards)
	r.players[1].Cards = hand("A", "Q")
	r.players[0].Cards = hand("10", "9") // host loses to dealer blackjack
	for _, p := range r.players {
		p.Score = HandScore(p.Cards)
		p.Status = models.StatusStand
	}
	r.Mu.Unlock()

	require.NoError(t, r.HostEndRound(users[0].ID))
	assert.Equal(t, int64(1000), accounts.balance(users[1].ID), "blackjack push leaves balance unchanged")
	assert.Equal(t, int64(900), accounts.balance(users[0].ID))
}

func TestSettlementBalancesMoveByBetAmount(t *testing.T) {
	r, users, accounts, _ := newTestRoom(t, 2)
	startRound(t, r, users)
	require.NoError(t, r.HostEndRound(users[0].ID))

	for _, u := range users {
		diff := accounts.balance(u.ID) - 1000
		assert.Contains(t, []int64{-100, 0, 100}, diff)
	}
	assert.True(t, r.Waiting())
}

func TestHostEndRoundRejectedWhenWaiting(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 2)
	assert.ErrorIs(t, r.HostEndRound(users[0].ID), ErrNoActiveRound)
	assert.ErrorIs(t, r.HostEndRound(users[1].ID), ErrNotHost)
}

func TestTransferHost(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 3)

	assert.ErrorIs(t, r.TransferHost(users[1].ID, users[2].ID), ErrNotHost)
	assert.ErrorIs(t, r.TransferHost(users[0].ID, uuid.New()), ErrPlayerNotFound)

	require.NoError(t, r.TransferHost(users[0].ID, users[2].ID))
	assert.Equal(t, users[2].ID, r.HostID)
	assert.Equal(t, 1, rec.count(EventHostTransferred))

	// Old host has lost the role immediately.
	assert.ErrorIs(t, r.Kick(users[0].ID, users[1].ID), ErrNotHost)
}

func TestKickPlayer(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 3)

	require.NoError(t, r.Kick(users[0].ID, users[2].ID))
	assert.Equal(t, 2, r.PlayerCount())
	assert.Equal(t, 1, rec.count(EventPlayerKicked))

	assert.ErrorIs(t, r.Kick(users[0].ID, users[2].ID), ErrPlayerNotFound)
	assert.ErrorIs(t, r.Kick(users[0].ID, users[0].ID), ErrPlayerNotFound)
}

func TestHostLeaveReassignsHost(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	r.Leave(users[0].ID)
	assert.Equal(t, users[1].ID, r.HostID)
	assert.Equal(t, 2, r.PlayerCount())
}

func TestLastLeaveDestroysRoom(t *testing.T) {
	r, users, _, rec := newTestRoom(t, 1)
	deleted := ""
	r.OnEmpty = func(roomID string) { deleted = roomID }

	r.Leave(users[0].ID)
	assert.Equal(t, "TESTROOM", deleted)
	assert.Equal(t, 1, rec.count(EventRoomDeleted))
}

func TestLeaveOfCurrentActorAdvancesTurn(t *testing.T) {
	r, users, _, _ := newTestRoom(t, 3)
	startRound(t, r, users)

	r.Mu.Lock()
	for _, p := range r.players {
		p.Status = models.StatusPlaying
	}
	r.currentPlayerIndex = 1
	leaver := r.players[1].UserID
	next := r.players[2].UserID
	r.Mu.Unlock()

	r.Leave(leaver)

	snap := r.Snapshot()
	require.Equal(t, 2, r.PlayerCount())
	idx := snap.GameState.CurrentPlayerIndex
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, next, snap.Players[idx].UserID)
}

func TestRoomStoreDropsEmptyRoom(t *testing.T) {
	store := NewRoomStore()
	r, users, _, _ := newTestRoom(t, 1)
	store.Add(r)
	require.Equal(t, 1, store.Count())

	r.Leave(users[0].ID)
	assert.Equal(t, 0, store.Count())
	_, ok := store.Get(r.ID)
	assert.False(t, ok)
}

func TestDonate(t *testing.T) {
	r, users, accounts, rec := newTestRoom(t, 2)

	assert.ErrorIs(t, r.Donate(users[0].ID, users[1].ID, 0), ErrInvalidAmount)
	assert.ErrorIs(t, r.Donate(users[0].ID, uuid.New(), 50), ErrPlayerNotFound)
	assert.ErrorIs(t, r.Donate(users[0].ID, users[1].ID, 5000), ErrInsufficientBalance)

	require.NoError(t, r.Donate(users[0].ID, users[1].ID, 250))
	assert.Equal(t, int64(750), accounts.balance(users[0].ID))
	assert.Equal(t, int64(1250), accounts.balance(users[1].ID))
	assert.Equal(t, 1, rec.count(EventDonateReceived))
}

func TestSnapshotHidesCurrentIndexOutsideRound(t *testing.T) {
	r, _, _, _ := newTestRoom(t, 2)
	assert.Equal(t, -1, r.Snapshot().GameState.CurrentPlayerIndex)
}
