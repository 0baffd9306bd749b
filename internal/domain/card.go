package domain

// CardType identifies the effect of a card. The set is closed; the action
// resolver dispatches on it exhaustively.
type CardType string

const (
	// CardBomb eliminates the drawer unless defused.
	CardBomb CardType = "bomb"
	// CardDefuse is consumed to cancel a drawn bomb.
	CardDefuse CardType = "defuse"
	// CardSkip consumes one owed draw without drawing.
	CardSkip CardType = "skip"
	// CardAttack ends the turn and forces the next player to draw twice.
	CardAttack CardType = "attack"
	// CardShuffle reshuffles the draw deck in place.
	CardShuffle CardType = "shuffle"
	// CardSeeFuture privately reveals the next three cards.
	CardSeeFuture CardType = "see_future"
	// CardFavor makes a target player hand over a card of their choice.
	CardFavor CardType = "favor"
	// CardNope voids another player's pending action.
	CardNope CardType = "nope"

	// Cat cards have no effect alone; a matching pair steals a random card.
	CardCat1 CardType = "cat_1"
	CardCat2 CardType = "cat_2"
	CardCat3 CardType = "cat_3"
	CardCat4 CardType = "cat_4"
	CardCat5 CardType = "cat_5"
)

// Card is a single card in play. Identity is the ID; Type drives dispatch.
type Card struct {
	ID   string   `json:"id"`
	Type CardType `json:"type"`
}

// IsCat reports whether the type is one of the collectible cat variants.
func (t CardType) IsCat() bool {
	switch t {
	case CardCat1, CardCat2, CardCat3, CardCat4, CardCat5:
		return true
	}
	return false
}

// Playable reports whether the type may be played as a single action card.
// Bombs are never held legitimately, defuses are consumed on draw, nopes go
// through the counter path, and cats only work as pairs.
func (t CardType) Playable() bool {
	switch t {
	case CardSkip, CardAttack, CardShuffle, CardSeeFuture, CardFavor:
		return true
	}
	return false
}

// NeedsTarget reports whether playing the type requires a target player.
func (t CardType) NeedsTarget() bool {
	return t == CardFavor
}
