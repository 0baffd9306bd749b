package nakama

import (
	"time"

	"kaboom/internal/domain"
)

// Client request payloads. All messages are JSON; draw and resolve carry
// no body.

type playCardRequest struct {
	CardID   string `json:"card_id"`
	TargetID string `json:"target_id,omitempty"`
}

type playPairRequest struct {
	CardType string `json:"card_type"`
	TargetID string `json:"target_id"`
}

type playNopeRequest struct {
	CardID string `json:"card_id"`
}

type submitDefuseRequest struct {
	// DistanceFromTop is where the bomb goes back in: 0 means drawn next.
	DistanceFromTop int `json:"distance_from_top"`
}

type giveCardRequest struct {
	CardIndex int `json:"card_index"`
}

// playerView is the public per-player projection. Hands are counts only;
// card identities travel on private messages.
type playerView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Alive       bool   `json:"alive"`
	HandCount   int    `json:"hand_count"`
	IsTurn      bool   `json:"is_turn"`
}

type pendingView struct {
	Card      domain.Card `json:"card"`
	SourceID  string      `json:"source_id"`
	TargetID  string      `json:"target_id,omitempty"`
	NopeCount int         `json:"nope_count"`
	Deadline  time.Time   `json:"deadline"`
}

// gameView is the public room snapshot broadcast after every applied
// command and on (re)join.
type gameView struct {
	Status        domain.Status `json:"status"`
	Phase         domain.Phase  `json:"phase,omitempty"`
	DeckCount     int           `json:"deck_count"`
	DiscardCount  int           `json:"discard_count"`
	TopDiscard    *domain.Card  `json:"top_discard,omitempty"`
	CurrentTurnID string        `json:"current_turn_id,omitempty"`
	TurnsLeft     int           `json:"turns_left,omitempty"`
	Players       []playerView  `json:"players"`
	Pending       *pendingView  `json:"pending,omitempty"`
	WinnerID      string        `json:"winner_id,omitempty"`
}

// roomView wraps the lobby roster plus the in-progress game, if any.
type roomView struct {
	Roster []playerView `json:"roster"`
	Game   *gameView    `json:"game,omitempty"`
}

func toGameView(g *domain.Game) *gameView {
	if g == nil {
		return nil
	}

	players := make([]playerView, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, playerView{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			Alive:       p.Alive,
			HandCount:   len(p.Hand),
			IsTurn:      g.CurrentTurnID == p.ID,
		})
	}

	view := &gameView{
		Status:        g.Status,
		Phase:         g.Phase,
		DeckCount:     len(g.Deck),
		DiscardCount:  len(g.Discard),
		CurrentTurnID: g.CurrentTurnID,
		TurnsLeft:     g.TurnsLeft,
		Players:       players,
		WinnerID:      g.WinnerID,
	}
	if n := len(g.Discard); n > 0 {
		top := g.Discard[n-1]
		view.TopDiscard = &top
	}
	if g.Pending != nil {
		view.Pending = &pendingView{
			Card:      g.Pending.Card,
			SourceID:  g.Pending.SourceID,
			TargetID:  g.Pending.TargetID,
			NopeCount: g.Pending.NopeCount,
			Deadline:  g.Pending.NopeDeadline,
		}
	}
	return view
}
