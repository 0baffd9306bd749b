package app

import (
	"time"

	"kaboom/internal/domain"
)

// EventKind identifies emitted engine events for dispatch by the port.
type EventKind string

const (
	EventGameStarted    EventKind = "game_started"
	EventHandDealt      EventKind = "hand_dealt"
	EventCardDrawn      EventKind = "card_drawn"
	EventCardReceived   EventKind = "card_received"
	EventDefuseNeeded   EventKind = "defuse_needed"
	EventBombDefused    EventKind = "bomb_defused"
	EventPlayerExploded EventKind = "player_exploded"
	EventTurnChanged    EventKind = "turn_changed"
	EventActionPending  EventKind = "action_pending"
	EventActionResolved EventKind = "action_resolved"
	EventActionNoped    EventKind = "action_noped"
	EventDeckShuffled   EventKind = "deck_shuffled"
	EventFutureSeen     EventKind = "future_seen"
	EventFavorRequested EventKind = "favor_requested"
	EventCardGiven      EventKind = "card_given"
	EventCardStolen     EventKind = "card_stolen"
	EventStolenCard     EventKind = "stolen_card"
	EventPlayerLeft     EventKind = "player_left"
	EventGameEnded      EventKind = "game_ended"
	EventRoomAbandoned  EventKind = "room_abandoned"
)

// Event is an engine event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // player IDs; empty means broadcast
}

type GameStartedPayload struct {
	FirstTurnID string `json:"first_turn_id"`
	PlayerCount int    `json:"player_count"`
}

// HandDealtPayload is sent privately to each player at game start and
// whenever their full hand must be re-synced.
type HandDealtPayload struct {
	PlayerID string        `json:"player_id"`
	Hand     []domain.Card `json:"hand"`
}

type CardDrawnPayload struct {
	PlayerID string `json:"player_id"`
	HandSize int    `json:"hand_size"`
}

// CardReceivedPayload reveals the drawn card to the drawer only.
type CardReceivedPayload struct {
	PlayerID string      `json:"player_id"`
	Card     domain.Card `json:"card"`
}

type DefuseNeededPayload struct {
	PlayerID string      `json:"player_id"`
	Bomb     domain.Card `json:"bomb"`
}

type BombDefusedPayload struct {
	PlayerID string `json:"player_id"`
}

type PlayerExplodedPayload struct {
	PlayerID string      `json:"player_id"`
	Bomb     domain.Card `json:"bomb"`
}

type TurnChangedPayload struct {
	PlayerID  string `json:"player_id"`
	TurnsLeft int    `json:"turns_left"`
}

type ActionPendingPayload struct {
	Card     domain.Card `json:"card"`
	SourceID string      `json:"source_id"`
	TargetID string      `json:"target_id,omitempty"`
	Deadline time.Time   `json:"deadline"`
}

type ActionResolvedPayload struct {
	Card     domain.Card `json:"card"`
	SourceID string      `json:"source_id"`
}

// ActionNopedPayload reports a voided action; VoidedCard is nil when the
// nope cancelled a hand-over request rather than a played card.
type ActionNopedPayload struct {
	PlayerID   string       `json:"player_id"`
	VoidedCard *domain.Card `json:"voided_card,omitempty"`
}

type DeckShuffledPayload struct {
	SourceID string `json:"source_id"`
}

// FutureSeenPayload is sent privately to the peeking player, next-drawn
// card first.
type FutureSeenPayload struct {
	PlayerID string        `json:"player_id"`
	Cards    []domain.Card `json:"cards"`
}

type FavorRequestedPayload struct {
	RequesterID string `json:"requester_id"`
	GiverID     string `json:"giver_id"`
}

type CardGivenPayload struct {
	GiverID    string `json:"giver_id"`
	ReceiverID string `json:"receiver_id"`
}

type CardStolenPayload struct {
	ThiefID  string          `json:"thief_id"`
	VictimID string          `json:"victim_id"`
	CardType domain.CardType `json:"card_type"` // the pair type played
}

// StolenCardPayload reveals the stolen card to thief and victim only.
type StolenCardPayload struct {
	ThiefID  string      `json:"thief_id"`
	VictimID string      `json:"victim_id"`
	Card     domain.Card `json:"card"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
}

type GameEndedPayload struct {
	WinnerID string `json:"winner_id"`
}
