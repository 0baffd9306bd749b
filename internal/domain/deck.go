package domain

import (
	"math/rand"

	"github.com/google/uuid"
)

// The draw end of a deck is the tail of the slice. Clients talk in
// "distance from top" (0 = next card drawn); InsertAt translates.

// Setup controls deck composition at game start.
type Setup struct {
	// HandSize is the number of safe cards dealt per player; every player
	// additionally receives exactly one defuse.
	HandSize int
	// SafeCounts is the number of copies of each non-bomb, non-defuse type
	// shuffled into the pool before dealing.
	SafeCounts map[CardType]int
}

// DefaultSetup returns the standard composition.
func DefaultSetup() Setup {
	return Setup{
		HandSize: 7,
		SafeCounts: map[CardType]int{
			CardAttack:    4,
			CardSkip:      4,
			CardFavor:     4,
			CardShuffle:   4,
			CardSeeFuture: 5,
			CardNope:      5,
			CardCat1:      4,
			CardCat2:      4,
			CardCat3:      4,
			CardCat4:      4,
			CardCat5:      4,
		},
	}
}

// cardTypeDealOrder fixes iteration order so a seeded rng gives
// reproducible decks.
var cardTypeDealOrder = []CardType{
	CardAttack, CardSkip, CardFavor, CardShuffle, CardSeeFuture, CardNope,
	CardCat1, CardCat2, CardCat3, CardCat4, CardCat5,
}

// NewGameSetup builds the draw deck and initial hands for playerCount
// players. Each player starts with HandSize safe cards plus one defuse; the
// remainder receives max(1, n-1) bombs and max(0, n-1) extra defuses and is
// shuffled into the final draw deck. With n-1 bombs in the deck the game
// can neither end with everyone alive nor run out of bombs under normal
// elimination play.
func NewGameSetup(playerCount int, s Setup, rng *rand.Rand) (deck []Card, hands [][]Card) {
	pool := make([]Card, 0, 64)
	for _, t := range cardTypeDealOrder {
		for i := 0; i < s.SafeCounts[t]; i++ {
			pool = append(pool, newCard(t))
		}
	}
	pool = ShuffleDeck(pool, rng)

	hands = make([][]Card, playerCount)
	for i := range hands {
		hand := make([]Card, 0, s.HandSize+1)
		hand = append(hand, pool[:s.HandSize]...)
		pool = pool[s.HandSize:]
		hand = append(hand, newCard(CardDefuse))
		hands[i] = hand
	}

	bombs := playerCount - 1
	if bombs < 1 {
		bombs = 1
	}
	for i := 0; i < bombs; i++ {
		pool = append(pool, newCard(CardBomb))
	}
	for i := 0; i < playerCount-1; i++ {
		pool = append(pool, newCard(CardDefuse))
	}

	return ShuffleDeck(pool, rng), hands
}

func newCard(t CardType) Card {
	return Card{ID: uuid.NewString(), Type: t}
}

// ShuffleDeck returns a uniformly shuffled copy of the given deck.
func ShuffleDeck(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// DrawTop removes and returns the card at the draw end. ok is false when
// the deck is empty; the caller treats that as an integrity fault, not a
// normal outcome.
func DrawTop(deck []Card) (card Card, rest []Card, ok bool) {
	if len(deck) == 0 {
		return Card{}, deck, false
	}
	return deck[len(deck)-1], deck[:len(deck)-1], true
}

// InsertAt places a card at the given distance from the draw end
// (0 = drawn next), clamped to the deck bounds.
func InsertAt(deck []Card, card Card, distanceFromTop int) []Card {
	idx := len(deck) - distanceFromTop
	if idx < 0 {
		idx = 0
	}
	if idx > len(deck) {
		idx = len(deck)
	}
	out := make([]Card, 0, len(deck)+1)
	out = append(out, deck[:idx]...)
	out = append(out, card)
	out = append(out, deck[idx:]...)
	return out
}

// PeekTop returns up to n cards nearest the draw end without removing
// them, next-drawn first.
func PeekTop(deck []Card, n int) []Card {
	if n > len(deck) {
		n = len(deck)
	}
	out := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, deck[len(deck)-1-i])
	}
	return out
}
