package app

import (
	"errors"
	"math/rand"
	"time"

	"kaboom/internal/domain"
)

// Service contains the rule-engine use-cases operating on domain state.
// Methods validate the command against phase, turn ownership and actor
// standing, mutate the game, and emit events for the port to dispatch.
// A validation failure leaves the game untouched.
//
// Service methods are not safe for concurrent use against the same Game;
// the caller must serialize all commands for a room (the Nakama match loop
// does this by construction).
type Service struct {
	rng *rand.Rand
	now func() time.Time

	// NopeWindow is how long a pending action stays open to counters.
	NopeWindow time.Duration
	// Setup controls deck composition for new games.
	Setup domain.Setup
}

// NewService constructs a Service with the provided rng or a time-seeded
// default.
func NewService(rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		rng:        rng,
		now:        time.Now,
		NopeWindow: DefaultNopeWindow,
		Setup:      domain.DefaultSetup(),
	}
}

var (
	ErrIllegalPhase     = errors.New("command not legal in current phase")
	ErrNotYourTurn      = errors.New("actor is not the current-turn player")
	ErrNotYourAction    = errors.New("actor has no standing for this action")
	ErrCardNotHeld      = errors.New("card not present in actor's hand")
	ErrCardNotPlayable  = errors.New("card type cannot be played this way")
	ErrNoStealTarget    = errors.New("target has no cards to steal")
	ErrEmptyDeck        = errors.New("draw from empty deck")
	ErrTooFewPlayers    = errors.New("not enough players to start")
	ErrUnknownPlayer    = errors.New("player not found")
	ErrInvalidTarget    = errors.New("invalid target player")
	ErrInvalidCardIndex = errors.New("card index out of range")
	ErrCardConservation = errors.New("card conservation violated")
)

// RosterPlayer identifies one lobby participant, in join order.
type RosterPlayer struct {
	ID          string
	DisplayName string
}

// StartGame deals a new game for the given roster. The first roster entry
// takes the first turn.
func (s *Service) StartGame(roster []RosterPlayer) (*domain.Game, []Event, error) {
	if len(roster) < MinPlayersToStartGame {
		return nil, nil, ErrTooFewPlayers
	}

	deck, hands := domain.NewGameSetup(len(roster), s.Setup, s.rng)

	players := make([]*domain.Player, len(roster))
	total := len(deck)
	for i, rp := range roster {
		players[i] = &domain.Player{
			ID:          rp.ID,
			DisplayName: rp.DisplayName,
			Alive:       true,
			Hand:        hands[i],
		}
		total += len(hands[i])
	}

	game := &domain.Game{
		Status:        domain.StatusPlaying,
		Phase:         domain.PhasePlaying,
		Deck:          deck,
		Discard:       []domain.Card{},
		Players:       players,
		CurrentTurnID: players[0].ID,
		TurnsLeft:     1,
		TotalCards:    total,
	}

	events := make([]Event, 0, len(players)+1)
	for _, p := range players {
		events = append(events, Event{
			Kind:       EventHandDealt,
			Payload:    HandDealtPayload{PlayerID: p.ID, Hand: p.Hand},
			Recipients: []string{p.ID},
		})
	}
	events = append(events, Event{
		Kind:    EventGameStarted,
		Payload: GameStartedPayload{FirstTurnID: game.CurrentTurnID, PlayerCount: len(players)},
	})

	return game, events, nil
}

// DrawCard draws the top card for the current-turn player. A safe draw
// consumes one owed draw; a bomb either enters the defusing phase (drawer
// holds a defuse, which is spent immediately) or eliminates the drawer.
func (s *Service) DrawCard(g *domain.Game, playerID string) ([]Event, error) {
	if err := requireActive(g, domain.PhasePlaying); err != nil {
		return nil, err
	}
	pl := g.FindPlayer(playerID)
	if pl == nil {
		return nil, ErrUnknownPlayer
	}
	if g.CurrentTurnID != playerID {
		return nil, ErrNotYourTurn
	}
	if len(g.Deck) == 0 {
		// Deck accounting guarantees a bomb is drawn before exhaustion;
		// reaching this is an integrity fault, not a game outcome.
		return nil, ErrEmptyDeck
	}

	card, rest, _ := domain.DrawTop(g.Deck)
	g.Deck = rest

	if card.Type == domain.CardBomb {
		return s.drawnBomb(g, pl, card)
	}

	pl.Hand = append(pl.Hand, card)
	nextID, nextStack := domain.AdvanceTurn(playerID, g.Players, g.TurnsLeft, domain.TurnPass)
	g.CurrentTurnID = nextID
	g.TurnsLeft = nextStack

	return []Event{
		{Kind: EventCardDrawn, Payload: CardDrawnPayload{PlayerID: playerID, HandSize: len(pl.Hand)}},
		{Kind: EventCardReceived, Payload: CardReceivedPayload{PlayerID: playerID, Card: card}, Recipients: []string{playerID}},
		{Kind: EventTurnChanged, Payload: TurnChangedPayload{PlayerID: nextID, TurnsLeft: nextStack}},
	}, nil
}

func (s *Service) drawnBomb(g *domain.Game, pl *domain.Player, bomb domain.Card) ([]Event, error) {
	if i := domain.IndexOfType(pl.Hand, domain.CardDefuse); i >= 0 {
		// The defuse is spent now; the bomb is held out of all zones until
		// the drawer picks a re-insert position.
		used := pl.Hand[i]
		pl.Hand = append(pl.Hand[:i:i], pl.Hand[i+1:]...)
		g.Discard = append(g.Discard, used)
		g.Defuse = &domain.PendingDefuse{Bomb: bomb, PlayerID: pl.ID}
		g.Phase = domain.PhaseDefusing

		return []Event{
			{Kind: EventDefuseNeeded, Payload: DefuseNeededPayload{PlayerID: pl.ID, Bomb: bomb}},
		}, nil
	}

	g.Discard = append(g.Discard, bomb)
	pl.Alive = false
	nextID := domain.NextAlivePlayer(pl.ID, g.Players, 1)
	g.CurrentTurnID = nextID
	g.TurnsLeft = 1

	events := []Event{
		{Kind: EventPlayerExploded, Payload: PlayerExplodedPayload{PlayerID: pl.ID, Bomb: bomb}},
	}
	if domain.EvaluateWin(g) {
		events = append(events, Event{Kind: EventGameEnded, Payload: GameEndedPayload{WinnerID: g.WinnerID}})
	} else {
		events = append(events, Event{Kind: EventTurnChanged, Payload: TurnChangedPayload{PlayerID: nextID, TurnsLeft: 1}})
	}
	return events, nil
}

// SubmitDefuse re-inserts the held bomb at the given distance from the
// top of the deck (0 = drawn next), then rotates the turn.
func (s *Service) SubmitDefuse(g *domain.Game, playerID string, distanceFromTop int) ([]Event, error) {
	if err := requireActive(g, domain.PhaseDefusing); err != nil {
		return nil, err
	}
	if g.Defuse == nil || g.Defuse.PlayerID != playerID {
		return nil, ErrNotYourAction
	}

	g.Deck = domain.InsertAt(g.Deck, g.Defuse.Bomb, distanceFromTop)
	g.Defuse = nil
	g.Phase = domain.PhasePlaying
	nextID := domain.NextAlivePlayer(playerID, g.Players, 1)
	g.CurrentTurnID = nextID
	g.TurnsLeft = 1

	return []Event{
		{Kind: EventBombDefused, Payload: BombDefusedPayload{PlayerID: playerID}},
		{Kind: EventTurnChanged, Payload: TurnChangedPayload{PlayerID: nextID, TurnsLeft: 1}},
	}, nil
}

// PlayCard plays a single action card, opening its counter window. The
// card leaves the actor's hand immediately and is held by the pending
// action until it resolves or is noped.
func (s *Service) PlayCard(g *domain.Game, playerID, cardID, targetID string) ([]Event, error) {
	if err := requireActive(g, domain.PhasePlaying); err != nil {
		return nil, err
	}
	pl := g.FindPlayer(playerID)
	if pl == nil {
		return nil, ErrUnknownPlayer
	}
	if g.CurrentTurnID != playerID {
		return nil, ErrNotYourTurn
	}

	card, rest, found := domain.RemoveCardByID(pl.Hand, cardID)
	if !found {
		return nil, ErrCardNotHeld
	}
	if !card.Type.Playable() {
		return nil, ErrCardNotPlayable
	}
	if card.Type.NeedsTarget() {
		target := g.FindPlayer(targetID)
		if target == nil || !target.Alive || targetID == playerID {
			return nil, ErrInvalidTarget
		}
	} else {
		targetID = ""
	}

	pl.Hand = rest
	deadline := s.now().Add(s.NopeWindow)
	g.Pending = &domain.PendingAction{
		Card:         card,
		SourceID:     playerID,
		TargetID:     targetID,
		NopeDeadline: deadline,
	}
	g.Phase = domain.PhaseActionPending

	return []Event{
		{Kind: EventActionPending, Payload: ActionPendingPayload{
			Card:     card,
			SourceID: playerID,
			TargetID: targetID,
			Deadline: deadline,
		}},
	}, nil
}

// PlayPair plays two matching cat cards against a target, stealing one
// uniformly-random card from their hand. Immediate: no counter window, no
// turn or phase change.
func (s *Service) PlayPair(g *domain.Game, playerID string, cardType domain.CardType, targetID string) ([]Event, error) {
	if err := requireActive(g, domain.PhasePlaying); err != nil {
		return nil, err
	}
	pl := g.FindPlayer(playerID)
	if pl == nil {
		return nil, ErrUnknownPlayer
	}
	if g.CurrentTurnID != playerID {
		return nil, ErrNotYourTurn
	}
	if !cardType.IsCat() {
		return nil, ErrCardNotPlayable
	}
	if domain.CountType(pl.Hand, cardType) < 2 {
		return nil, ErrCardNotHeld
	}
	target := g.FindPlayer(targetID)
	if target == nil || !target.Alive || targetID == playerID {
		return nil, ErrInvalidTarget
	}
	if len(target.Hand) == 0 {
		return nil, ErrNoStealTarget
	}

	for i := 0; i < 2; i++ {
		idx := domain.IndexOfType(pl.Hand, cardType)
		g.Discard = append(g.Discard, pl.Hand[idx])
		pl.Hand = append(pl.Hand[:idx:idx], pl.Hand[idx+1:]...)
	}

	stolenIdx := s.rng.Intn(len(target.Hand))
	stolen := target.Hand[stolenIdx]
	target.Hand = append(target.Hand[:stolenIdx:stolenIdx], target.Hand[stolenIdx+1:]...)
	pl.Hand = append(pl.Hand, stolen)

	return []Event{
		{Kind: EventCardStolen, Payload: CardStolenPayload{ThiefID: playerID, VictimID: targetID, CardType: cardType}},
		{Kind: EventStolenCard, Payload: StolenCardPayload{ThiefID: playerID, VictimID: targetID, Card: stolen},
			Recipients: []string{playerID, targetID}},
	}, nil
}

// PlayNope voids the pending action (any player but its source) or, during
// a hand-over request, voids the request (the designated giver only). The
// nope and any voided played card both end in the discard pile.
func (s *Service) PlayNope(g *domain.Game, playerID, cardID string) ([]Event, error) {
	if g.Status != domain.StatusPlaying {
		return nil, ErrIllegalPhase
	}
	pl := g.FindPlayer(playerID)
	if pl == nil {
		return nil, ErrUnknownPlayer
	}

	switch g.Phase {
	case domain.PhaseActionPending:
		if g.Pending.SourceID == playerID {
			return nil, ErrNotYourAction
		}
		card, rest, found := domain.RemoveCardByID(pl.Hand, cardID)
		if !found {
			return nil, ErrCardNotHeld
		}
		if card.Type != domain.CardNope {
			return nil, ErrCardNotPlayable
		}
		pl.Hand = rest
		g.Pending.NopeCount++
		voided := g.Pending.Card
		g.Discard = append(g.Discard, card, voided)
		g.Pending = nil
		g.Phase = domain.PhasePlaying

		return []Event{
			{Kind: EventActionNoped, Payload: ActionNopedPayload{PlayerID: playerID, VoidedCard: &voided}},
		}, nil

	case domain.PhaseGivingFavor:
		if g.Favor.GiverID != playerID {
			return nil, ErrNotYourAction
		}
		card, rest, found := domain.RemoveCardByID(pl.Hand, cardID)
		if !found {
			return nil, ErrCardNotHeld
		}
		if card.Type != domain.CardNope {
			return nil, ErrCardNotPlayable
		}
		pl.Hand = rest
		g.Discard = append(g.Discard, card)
		g.Favor = nil
		g.Phase = domain.PhasePlaying

		return []Event{
			{Kind: EventActionNoped, Payload: ActionNopedPayload{PlayerID: playerID}},
		}, nil
	}

	return nil, ErrIllegalPhase
}

// ResolvePending resolves the counter window early, restricted to the
// pending action's own source player.
func (s *Service) ResolvePending(g *domain.Game, playerID string) ([]Event, error) {
	if err := requireActive(g, domain.PhaseActionPending); err != nil {
		return nil, err
	}
	if g.Pending.SourceID != playerID {
		return nil, ErrNotYourAction
	}
	return s.resolvePending(g), nil
}

// ExpirePending resolves the counter window if its deadline has passed.
// Safe to call every tick: once the phase has left action_pending (early
// resolve, a nope, or a previous expiry) it is a no-op.
func (s *Service) ExpirePending(g *domain.Game, now time.Time) ([]Event, bool) {
	if g.Status != domain.StatusPlaying || g.Phase != domain.PhaseActionPending {
		return nil, false
	}
	if now.Before(g.Pending.NopeDeadline) {
		return nil, false
	}
	return s.resolvePending(g), true
}

// resolvePending applies the pending card's effect. The counter window is
// closed before dispatch so a favor can hand the phase onward.
func (s *Service) resolvePending(g *domain.Game) []Event {
	pending := g.Pending
	g.Pending = nil
	g.Phase = domain.PhasePlaying
	g.Discard = append(g.Discard, pending.Card)

	events := []Event{
		{Kind: EventActionResolved, Payload: ActionResolvedPayload{Card: pending.Card, SourceID: pending.SourceID}},
	}

	switch pending.Card.Type {
	case domain.CardSkip:
		nextID, nextStack := domain.AdvanceTurn(pending.SourceID, g.Players, g.TurnsLeft, domain.TurnSkip)
		g.CurrentTurnID = nextID
		g.TurnsLeft = nextStack
		events = append(events, Event{Kind: EventTurnChanged, Payload: TurnChangedPayload{PlayerID: nextID, TurnsLeft: nextStack}})

	case domain.CardAttack:
		nextID, nextStack := domain.AdvanceTurn(pending.SourceID, g.Players, g.TurnsLeft, domain.TurnAttack)
		g.CurrentTurnID = nextID
		g.TurnsLeft = nextStack
		events = append(events, Event{Kind: EventTurnChanged, Payload: TurnChangedPayload{PlayerID: nextID, TurnsLeft: nextStack}})

	case domain.CardShuffle:
		// Shuffling an empty deck is ignored, not an error.
		if len(g.Deck) > 0 {
			g.Deck = domain.ShuffleDeck(g.Deck, s.rng)
			events = append(events, Event{Kind: EventDeckShuffled, Payload: DeckShuffledPayload{SourceID: pending.SourceID}})
		}

	case domain.CardSeeFuture:
		events = append(events, Event{
			Kind:       EventFutureSeen,
			Payload:    FutureSeenPayload{PlayerID: pending.SourceID, Cards: domain.PeekTop(g.Deck, FutureCardCount)},
			Recipients: []string{pending.SourceID},
		})

	case domain.CardFavor:
		// The target may have left during the window; the favor then
		// fizzles with the card already spent.
		if target := g.FindPlayer(pending.TargetID); target != nil && target.Alive {
			g.Favor = &domain.PendingFavor{RequesterID: pending.SourceID, GiverID: pending.TargetID}
			g.Phase = domain.PhaseGivingFavor
			events = append(events, Event{Kind: EventFavorRequested, Payload: FavorRequestedPayload{
				RequesterID: pending.SourceID,
				GiverID:     pending.TargetID,
			}})
		}
	}

	return events
}

// HandOverCard completes a favor: the designated giver hands the card at
// the given index of their own hand to the requester.
func (s *Service) HandOverCard(g *domain.Game, giverID string, cardIndex int) ([]Event, error) {
	if err := requireActive(g, domain.PhaseGivingFavor); err != nil {
		return nil, err
	}
	if g.Favor.GiverID != giverID {
		return nil, ErrNotYourAction
	}
	giver := g.FindPlayer(giverID)
	receiver := g.FindPlayer(g.Favor.RequesterID)
	if giver == nil || receiver == nil {
		return nil, ErrUnknownPlayer
	}
	if cardIndex < 0 || cardIndex >= len(giver.Hand) {
		return nil, ErrInvalidCardIndex
	}

	card := giver.Hand[cardIndex]
	giver.Hand = append(giver.Hand[:cardIndex:cardIndex], giver.Hand[cardIndex+1:]...)
	receiver.Hand = append(receiver.Hand, card)
	g.Favor = nil
	g.Phase = domain.PhasePlaying

	return []Event{
		{Kind: EventCardGiven, Payload: CardGivenPayload{GiverID: giverID, ReceiverID: receiver.ID}},
		{Kind: EventCardReceived, Payload: CardReceivedPayload{PlayerID: receiver.ID, Card: card},
			Recipients: []string{receiver.ID}},
	}, nil
}

// PlayerLeft removes a player from the roster entirely. Their hand moves
// to the discard pile so card conservation holds for the room; any
// sub-state involving them is voided, the turn rotates off them, and the
// win evaluator re-runs. A room with nobody left becomes abandoned.
func (s *Service) PlayerLeft(g *domain.Game, playerID string) ([]Event, error) {
	idx := -1
	for i, p := range g.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrUnknownPlayer
	}
	pl := g.Players[idx]

	events := []Event{
		{Kind: EventPlayerLeft, Payload: PlayerLeftPayload{PlayerID: playerID}},
	}

	if g.Status == domain.StatusPlaying {
		if g.Pending != nil && (g.Pending.SourceID == playerID || g.Pending.TargetID == playerID) {
			g.Discard = append(g.Discard, g.Pending.Card)
			g.Pending = nil
			g.Phase = domain.PhasePlaying
		}
		if g.Defuse != nil && g.Defuse.PlayerID == playerID {
			g.Discard = append(g.Discard, g.Defuse.Bomb)
			g.Defuse = nil
			g.Phase = domain.PhasePlaying
		}
		if g.Favor != nil && (g.Favor.RequesterID == playerID || g.Favor.GiverID == playerID) {
			g.Favor = nil
			g.Phase = domain.PhasePlaying
		}
		if g.CurrentTurnID == playerID {
			g.CurrentTurnID = domain.NextAlivePlayer(playerID, g.Players, 1)
			g.TurnsLeft = 1
		}
	}

	// The hand moves to discard, not out of existence: the room's card
	// pool stays intact for conservation accounting.
	g.Discard = append(g.Discard, pl.Hand...)
	pl.Hand = nil
	g.Players = append(g.Players[:idx:idx], g.Players[idx+1:]...)

	switch {
	case len(g.Players) == 0:
		g.Status = domain.StatusAbandoned

	case len(g.Players) == 1 && g.Status != domain.StatusFinished:
		// External removal leaving a single player: they win immediately
		// regardless of elimination path.
		g.WinnerID = g.Players[0].ID
		g.Status = domain.StatusFinished
		events = append(events, Event{Kind: EventGameEnded, Payload: GameEndedPayload{WinnerID: g.WinnerID}})

	case g.Status == domain.StatusPlaying:
		if domain.EvaluateWin(g) {
			events = append(events, Event{Kind: EventGameEnded, Payload: GameEndedPayload{WinnerID: g.WinnerID}})
		} else {
			events = append(events, Event{Kind: EventTurnChanged, Payload: TurnChangedPayload{PlayerID: g.CurrentTurnID, TurnsLeft: g.TurnsLeft}})
		}
	}

	if g.Status == domain.StatusAbandoned {
		events = append(events, Event{Kind: EventRoomAbandoned, Payload: PlayerLeftPayload{PlayerID: playerID}})
	}

	return events, nil
}

// VerifyConservation checks that every card dealt at game start is still
// accounted for across all zones. The port calls this after each applied
// command and logs a failure as an integrity fault.
func (s *Service) VerifyConservation(g *domain.Game) error {
	if g.TotalCards != 0 && g.CardsInPlay() != g.TotalCards {
		return ErrCardConservation
	}
	return nil
}

// requireActive rejects commands against non-playing rooms and commands
// whose required phase does not match the current one.
func requireActive(g *domain.Game, phase domain.Phase) error {
	if g.Status != domain.StatusPlaying || g.Phase != phase {
		return ErrIllegalPhase
	}
	return nil
}
