package domain

import "time"

// Status is the lifecycle stage of a room.
type Status string

const (
	// StatusWaiting is the pre-game state where players can join.
	StatusWaiting Status = "waiting"
	// StatusPlaying is the active game state.
	StatusPlaying Status = "playing"
	// StatusFinished is the state after a winner is decided.
	StatusFinished Status = "finished"
	// StatusAbandoned marks a room every player has left.
	StatusAbandoned Status = "abandoned"
)

// Phase gates which commands are legal while the game is playing.
type Phase string

const (
	// PhasePlaying accepts draws and card plays from the current-turn player.
	PhasePlaying Phase = "playing"
	// PhaseDefusing waits for the bomb drawer to pick a re-insert position.
	PhaseDefusing Phase = "defusing"
	// PhaseActionPending is the counter window for a played action card.
	PhaseActionPending Phase = "action_pending"
	// PhaseGivingFavor waits for the favor target to hand over a card.
	PhaseGivingFavor Phase = "giving_favor"
)

// Player holds state for a participant. Roster order is join order and is
// the turn rotation order.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Alive       bool   `json:"alive"`
	Hand        []Card `json:"hand"`
}

// PendingAction is the played card awaiting its counter window.
type PendingAction struct {
	Card         Card      `json:"card"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id,omitempty"`
	// NopeCount tracks counters played against this action. A single nope
	// closes the window, so the count a client ever sees is 0.
	NopeCount    int       `json:"nope_count"`
	NopeDeadline time.Time `json:"nope_deadline"`
}

// PendingDefuse is a drawn bomb held out of all zones while its drawer
// picks a re-insert position.
type PendingDefuse struct {
	Bomb     Card   `json:"bomb"`
	PlayerID string `json:"player_id"`
}

// PendingFavor tracks an unresolved hand-over request.
type PendingFavor struct {
	RequesterID string `json:"requester_id"`
	GiverID     string `json:"giver_id"`
}

// Game holds authoritative state for one room instance.
type Game struct {
	Status Status
	Phase  Phase

	Deck    []Card
	Discard []Card
	Players []*Player // join order

	CurrentTurnID string
	// TurnsLeft is the number of draws the current player still owes
	// before the turn passes. Always >= 1 while playing.
	TurnsLeft int

	Pending *PendingAction
	Defuse  *PendingDefuse
	Favor   *PendingFavor

	WinnerID string

	// TotalCards is the card count dealt at game start; the multiset of
	// ids never changes afterwards, only their zone.
	TotalCards int
}

// FindPlayer returns the roster entry with the given id, or nil.
func (g *Game) FindPlayer(id string) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AliveCount returns the number of players still alive.
func (g *Game) AliveCount() int {
	n := 0
	for _, p := range g.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// CardsInPlay counts every card across all zones, including cards held
// out-of-zone by a pending action or an undefused bomb. It must equal
// TotalCards in every reachable state.
func (g *Game) CardsInPlay() int {
	n := len(g.Deck) + len(g.Discard)
	for _, p := range g.Players {
		n += len(p.Hand)
	}
	if g.Pending != nil {
		n++
	}
	if g.Defuse != nil {
		n++
	}
	return n
}

// RemoveCardByID removes the card with the given id from a hand.
// Returns the removed card, the updated hand, and whether it was found.
func RemoveCardByID(hand []Card, cardID string) (Card, []Card, bool) {
	for i, c := range hand {
		if c.ID == cardID {
			return c, append(hand[:i:i], hand[i+1:]...), true
		}
	}
	return Card{}, hand, false
}

// IndexOfType returns the index of the first card of the given type in a
// hand, or -1.
func IndexOfType(hand []Card, t CardType) int {
	for i, c := range hand {
		if c.Type == t {
			return i
		}
	}
	return -1
}

// CountType returns how many cards of the given type a hand holds.
func CountType(hand []Card, t CardType) int {
	n := 0
	for _, c := range hand {
		if c.Type == t {
			n++
		}
	}
	return n
}
