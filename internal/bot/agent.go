package bot

import (
	"fmt"
	"math/rand"
	"time"

	"kaboom/internal/domain"
)

// MoveKind classifies the command an agent wants to issue.
type MoveKind int

const (
	MoveDraw MoveKind = iota
	MovePlayCard
	MoveDefuse
	MoveGiveCard
)

// Move is the decision an agent hands back to the match loop.
type Move struct {
	Kind            MoveKind
	CardID          string
	TargetID        string
	DistanceFromTop int
	CardIndex       int
}

// Agent is an autonomous player for one bot seat.
type Agent struct {
	ID  string
	rng *rand.Rand
}

// NewAgent constructs an agent for a provisioned bot user id.
func NewAgent(userID string) (*Agent, error) {
	if userID == "" {
		return nil, fmt.Errorf("bot user id is required")
	}
	return &Agent{
		ID:  userID,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Play decides the agent's next command for the current game state. It
// returns ok=false when the game is not waiting on this agent.
func (a *Agent) Play(g *domain.Game) (Move, bool) {
	if g == nil || g.Status != domain.StatusPlaying {
		return Move{}, false
	}
	pl := g.FindPlayer(a.ID)
	if pl == nil || !pl.Alive {
		return Move{}, false
	}

	switch g.Phase {
	case domain.PhaseDefusing:
		if g.Defuse == nil || g.Defuse.PlayerID != a.ID {
			return Move{}, false
		}
		// Bury the bomb somewhere it will not come straight back.
		distance := 0
		if n := len(g.Deck); n > 0 {
			distance = a.rng.Intn(n + 1)
		}
		return Move{Kind: MoveDefuse, DistanceFromTop: distance}, true

	case domain.PhaseGivingFavor:
		if g.Favor == nil || g.Favor.GiverID != a.ID {
			return Move{}, false
		}
		if len(pl.Hand) == 0 {
			return Move{}, false
		}
		return Move{Kind: MoveGiveCard, CardIndex: a.cheapestCard(pl.Hand)}, true

	case domain.PhasePlaying:
		if g.CurrentTurnID != a.ID {
			return Move{}, false
		}
		// Under an attack, shed the extra draw if possible.
		if g.TurnsLeft > 1 {
			if i := domain.IndexOfType(pl.Hand, domain.CardSkip); i >= 0 {
				return Move{Kind: MovePlayCard, CardID: pl.Hand[i].ID}, true
			}
			if i := domain.IndexOfType(pl.Hand, domain.CardAttack); i >= 0 {
				return Move{Kind: MovePlayCard, CardID: pl.Hand[i].ID}, true
			}
		}
		return Move{Kind: MoveDraw}, true
	}

	return Move{}, false
}

// cheapestCard picks the least useful card to give away: cats first, then
// anything that is not a defuse.
func (a *Agent) cheapestCard(hand []domain.Card) int {
	for i, c := range hand {
		if c.Type.IsCat() {
			return i
		}
	}
	for i, c := range hand {
		if c.Type != domain.CardDefuse {
			return i
		}
	}
	return 0
}
