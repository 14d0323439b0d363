// internal/game/deck.go
package game

import (
	"errors"
	"math/rand"
	"time"

	"github.com/quangdm/xizach/internal/models"
)

// ErrDeckEmpty is returned when a draw is attempted on an exhausted deck.
var ErrDeckEmpty = errors.New("deck is empty")

// Outcome is the result of comparing a player hand against the dealer hand.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomePush Outcome = "push"
)

// Deck is an ordered stack of cards. Cards are drawn from the top (end of the
// slice) and never returned within a round.
type Deck []models.Card

// NewShuffledDeck builds a 52-card deck and shuffles it with Fisher-Yates.
func NewShuffledDeck() Deck {
	deck := make(Deck, 0, 52)
	for _, suit := range models.Suits {
		for _, rank := range models.Ranks {
			deck = append(deck, models.Card{Rank: rank, Suit: suit})
		}
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// Draw removes and returns the top card. Returns ErrDeckEmpty once all 52
// cards have been drawn; it never fabricates or repeats a card.
func (d *Deck) Draw() (models.Card, error) {
	if len(*d) == 0 {
		return models.Card{}, ErrDeckEmpty
	}
	top := (*d)[len(*d)-1]
	*d = (*d)[:len(*d)-1]
	return top, nil
}

// CardValue returns the counting value of a single card: face cards are 10,
// aces are soft 11, numeric ranks their numeral.
func CardValue(c models.Card) int {
	switch c.Rank {
	case "J", "Q", "K":
		return 10
	case "A":
		return 11
	case "10":
		return 10
	case "2", "3", "4", "5", "6", "7", "8", "9":
		return int(c.Rank[0] - '0')
	default:
		return 0
	}
}

// HandScore sums card values, then demotes aces from 11 to 1 one at a time
// while the total busts. The result is the best achievable score <= 21, or the
// unavoidable bust total when no reduction saves the hand.
func HandScore(cards []models.Card) int {
	score := 0
	aces := 0
	for _, c := range cards {
		if c.IsAce() {
			aces++
		}
		score += CardValue(c)
	}
	for score > 21 && aces > 0 {
		score -= 10
		aces--
	}
	return score
}

// IsBlackjack reports a "xì dách": exactly two cards scoring 21.
func IsBlackjack(cards []models.Card) bool {
	return len(cards) == 2 && HandScore(cards) == 21
}

// IsDoubleAce reports a "xì bàng": exactly two aces.
func IsDoubleAce(cards []models.Card) bool {
	return len(cards) == 2 && cards[0].IsAce() && cards[1].IsAce()
}

// CompareHands evaluates a player hand against the dealer hand under Xì Zách
// precedence. The order is load-bearing: blackjack beats double-ace, both beat
// raw score comparison, and bust checks come before score checks.
func CompareHands(player, dealer []models.Card) Outcome {
	playerBJ := IsBlackjack(player)
	dealerBJ := IsBlackjack(dealer)
	if playerBJ || dealerBJ {
		switch {
		case playerBJ && dealerBJ:
			return OutcomePush
		case playerBJ:
			return OutcomeWin
		default:
			return OutcomeLose
		}
	}

	playerXB := IsDoubleAce(player)
	dealerXB := IsDoubleAce(dealer)
	if playerXB || dealerXB {
		switch {
		case playerXB && dealerXB:
			return OutcomePush
		case playerXB:
			return OutcomeWin
		default:
			return OutcomeLose
		}
	}

	playerScore := HandScore(player)
	dealerScore := HandScore(dealer)
	if playerScore > 21 && dealerScore > 21 {
		return OutcomePush
	}
	if playerScore > 21 {
		return OutcomeLose
	}
	if dealerScore > 21 {
		return OutcomeWin
	}

	switch {
	case playerScore > dealerScore:
		return OutcomeWin
	case playerScore < dealerScore:
		return OutcomeLose
	default:
		return OutcomePush
	}
}
