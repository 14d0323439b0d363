// internal/models/card.go
package models

// Suit is one of the four card suits, rendered the way the client expects ("♠" etc).
type Suit string

const (
	Spades   Suit = "♠"
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
)

// Suits lists every suit in deck-construction order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Ranks lists every rank in deck-construction order.
var Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Card is a plain rank+suit token. Cards carry no identity beyond their value;
// a shuffled deck holds 52 distinct ones.
type Card struct {
	Rank string `json:"rank"`
	Suit Suit   `json:"suit"`
}

// String renders the card the way the original wire format did, e.g. "A♠" or "10♥".
func (c Card) String() string {
	return c.Rank + string(c.Suit)
}

// IsAce reports whether the card is an ace.
func (c Card) IsAce() bool {
	return c.Rank == "A"
}
