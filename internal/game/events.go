// internal/game/events.go
package game

// EventType is an enum-like type for events broadcast to room participants.
// Wire names match what the client already listens for.
type EventType string

const (
	EventRoomUpdate      EventType = "roomUpdate"      // full room snapshot after any state change
	EventGameStarted     EventType = "gameStarted"     // round dealt, deal animation may begin
	EventPlayerTurn      EventType = "playerTurn"      // per-second countdown for the acting player
	EventPlayerHit       EventType = "playerHit"       // a player drew a card
	EventPlayerStand     EventType = "playerStand"     // a player stood (explicitly or by timeout)
	EventHostStage       EventType = "hostStage"       // all players done, host reveal window open
	EventHostShowResult  EventType = "hostShowResult"  // private comparison of one player vs the dealer, host only
	EventRoundFinished   EventType = "roundFinished"   // settlement results
	EventHostTransferred EventType = "hostTransferred" // host role reassigned
	EventPlayerKicked    EventType = "playerKicked"    // host removed a player
	EventDonateReceived  EventType = "donateReceived"  // balance gift between seated users
	EventBalanceUpdate   EventType = "balanceUpdate"   // out-of-band balance change (admin transfer)
	EventRoomDeleted     EventType = "roomDeleted"     // room destroyed, last player gone
	EventError           EventType = "error"           // rejected command, no mutation occurred
)

// Event is the single broadcast envelope. Room carries a full snapshot when
// the event implies one; everything else rides in Payload.
type Event struct {
	Type    EventType              `json:"type"`
	Room    *RoomSnapshot          `json:"room,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}
