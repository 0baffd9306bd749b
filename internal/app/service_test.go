package app

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"kaboom/internal/domain"
)

var cardSeq int

func c(t domain.CardType) domain.Card {
	cardSeq++
	return domain.Card{ID: fmt.Sprintf("%s-%d", t, cardSeq), Type: t}
}

func newTestService(seed int64) *Service {
	return NewService(rand.New(rand.NewSource(seed)))
}

func startGame(t *testing.T, svc *Service, n int) *domain.Game {
	t.Helper()
	roster := make([]RosterPlayer, n)
	for i := range roster {
		roster[i] = RosterPlayer{ID: fmt.Sprintf("p%d", i+1), DisplayName: fmt.Sprintf("Player %d", i+1)}
	}
	game, _, err := svc.StartGame(roster)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	return game
}

// rig replaces hands and deck with a known layout, keeping conservation
// accounting in sync.
func rig(g *domain.Game, deck []domain.Card, hands map[string][]domain.Card) {
	g.Deck = deck
	g.Discard = []domain.Card{}
	total := len(deck)
	for _, p := range g.Players {
		p.Hand = hands[p.ID]
		total += len(p.Hand)
	}
	g.TotalCards = total
}

func TestStartGameDealsHands(t *testing.T) {
	svc := newTestService(42)
	roster := []RosterPlayer{{ID: "u1", DisplayName: "A"}, {ID: "u2", DisplayName: "B"}}
	game, evs, err := svc.StartGame(roster)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if game.Status != domain.StatusPlaying || game.Phase != domain.PhasePlaying {
		t.Fatalf("status=%s phase=%s, want playing/playing", game.Status, game.Phase)
	}
	if game.CurrentTurnID != "u1" {
		t.Errorf("first turn = %s, want u1", game.CurrentTurnID)
	}
	if game.TurnsLeft != 1 {
		t.Errorf("turns left = %d, want 1", game.TurnsLeft)
	}

	handEvents := 0
	for _, ev := range evs {
		if ev.Kind == EventHandDealt {
			handEvents++
			payload := ev.Payload.(HandDealtPayload)
			if len(payload.Hand) != 8 {
				t.Errorf("hand size = %d, want 8", len(payload.Hand))
			}
			if len(ev.Recipients) != 1 || ev.Recipients[0] != payload.PlayerID {
				t.Errorf("hand dealt publicly to %v", ev.Recipients)
			}
		}
	}
	if handEvents != 2 {
		t.Errorf("hand events = %d, want 2", handEvents)
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Errorf("conservation after deal: %v", err)
	}
}

func TestStartGameTooFewPlayers(t *testing.T) {
	svc := newTestService(1)
	if _, _, err := svc.StartGame([]RosterPlayer{{ID: "solo"}}); !errors.Is(err, ErrTooFewPlayers) {
		t.Fatalf("err = %v, want ErrTooFewPlayers", err)
	}
}

func TestDrawNotYourTurn(t *testing.T) {
	svc := newTestService(2)
	game := startGame(t, svc, 3)

	before := len(game.Deck)
	if _, err := svc.DrawCard(game, "p2"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("err = %v, want ErrNotYourTurn", err)
	}
	if len(game.Deck) != before {
		t.Error("rejected draw mutated the deck")
	}
}

func TestSafeDrawRotatesTurn(t *testing.T) {
	svc := newTestService(3)
	game := startGame(t, svc, 2)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {c(domain.CardDefuse)},
		"p2": {c(domain.CardDefuse)},
	})

	evs, err := svc.DrawCard(game, "p1")
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if game.CurrentTurnID != "p2" || game.TurnsLeft != 1 {
		t.Errorf("turn = %s/%d, want p2/1", game.CurrentTurnID, game.TurnsLeft)
	}
	if len(game.FindPlayer("p1").Hand) != 2 {
		t.Errorf("p1 hand = %d cards, want 2", len(game.FindPlayer("p1").Hand))
	}
	private := false
	for _, ev := range evs {
		if ev.Kind == EventCardReceived {
			private = len(ev.Recipients) == 1 && ev.Recipients[0] == "p1"
		}
	}
	if !private {
		t.Error("drawn card not delivered privately to the drawer")
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Error(err)
	}
}

func TestNeutralizationRoundTrip(t *testing.T) {
	svc := newTestService(4)
	game := startGame(t, svc, 2)

	bomb := c(domain.CardBomb)
	rig(game, []domain.Card{c(domain.CardCat1), c(domain.CardCat2), bomb}, map[string][]domain.Card{
		"p1": {c(domain.CardDefuse), c(domain.CardSkip)},
		"p2": {c(domain.CardCat3)},
	})

	evs, err := svc.DrawCard(game, "p1")
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if game.Phase != domain.PhaseDefusing {
		t.Fatalf("phase = %s, want defusing", game.Phase)
	}
	if evs[0].Kind != EventDefuseNeeded {
		t.Fatalf("event = %s, want defuse_needed", evs[0].Kind)
	}
	if domain.IndexOfType(game.FindPlayer("p1").Hand, domain.CardDefuse) != -1 {
		t.Error("defuse not spent from hand")
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Errorf("conservation while bomb held out of zones: %v", err)
	}

	// Wrong actor cannot place the bomb.
	if _, err := svc.SubmitDefuse(game, "p2", 0); !errors.Is(err, ErrNotYourAction) {
		t.Fatalf("err = %v, want ErrNotYourAction", err)
	}

	// Distance 0 puts the bomb right back on top: the next draw hits it.
	if _, err := svc.SubmitDefuse(game, "p1", 0); err != nil {
		t.Fatalf("submit defuse: %v", err)
	}
	if game.Phase != domain.PhasePlaying || game.CurrentTurnID != "p2" {
		t.Fatalf("phase=%s turn=%s, want playing/p2", game.Phase, game.CurrentTurnID)
	}
	next, _, _ := domain.DrawTop(game.Deck)
	if next.ID != bomb.ID {
		t.Errorf("next card = %s, want the re-inserted bomb %s", next.ID, bomb.ID)
	}
}

func TestExplosionWithoutDefuse(t *testing.T) {
	svc := newTestService(5)
	game := startGame(t, svc, 3)
	rig(game, []domain.Card{c(domain.CardBomb)}, map[string][]domain.Card{
		"p1": {c(domain.CardCat1)},
		"p2": {},
		"p3": {},
	})

	evs, err := svc.DrawCard(game, "p1")
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if game.FindPlayer("p1").Alive {
		t.Error("p1 should be eliminated")
	}
	if game.Status != domain.StatusPlaying {
		t.Errorf("status = %s, two players remain", game.Status)
	}
	if game.CurrentTurnID != "p2" || game.TurnsLeft != 1 {
		t.Errorf("turn = %s/%d, want p2/1", game.CurrentTurnID, game.TurnsLeft)
	}
	if evs[0].Kind != EventPlayerExploded {
		t.Errorf("event = %s, want player_exploded", evs[0].Kind)
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Error(err)
	}
}

func TestWinCondition(t *testing.T) {
	svc := newTestService(6)
	game := startGame(t, svc, 4)

	// Three consecutive bomb draws with no defuses held.
	rig(game, []domain.Card{c(domain.CardBomb), c(domain.CardBomb), c(domain.CardBomb)}, map[string][]domain.Card{
		"p1": {}, "p2": {}, "p3": {}, "p4": {},
	})

	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := svc.DrawCard(game, id); err != nil {
			t.Fatalf("draw by %s: %v", id, err)
		}
	}

	if game.Status != domain.StatusFinished || game.WinnerID != "p4" {
		t.Fatalf("status=%s winner=%s, want finished/p4", game.Status, game.WinnerID)
	}

	// Every further command is rejected with no mutation.
	if _, err := svc.DrawCard(game, "p4"); !errors.Is(err, ErrIllegalPhase) {
		t.Errorf("draw after finish: err = %v, want ErrIllegalPhase", err)
	}
	if _, err := svc.PlayCard(game, "p4", "x", ""); !errors.Is(err, ErrIllegalPhase) {
		t.Errorf("play after finish: err = %v, want ErrIllegalPhase", err)
	}
}

func TestAttackDoesNotAccumulate(t *testing.T) {
	svc := newTestService(7)
	game := startGame(t, svc, 3)

	attack1, attack2 := c(domain.CardAttack), c(domain.CardAttack)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {attack1},
		"p2": {attack2},
		"p3": {},
	})

	play := func(playerID, cardID string) {
		t.Helper()
		if _, err := svc.PlayCard(game, playerID, cardID, ""); err != nil {
			t.Fatalf("%s plays: %v", playerID, err)
		}
		if _, err := svc.ResolvePending(game, playerID); err != nil {
			t.Fatalf("%s resolves: %v", playerID, err)
		}
	}

	play("p1", attack1.ID)
	if game.CurrentTurnID != "p2" || game.TurnsLeft != 2 {
		t.Fatalf("after first attack: %s/%d, want p2/2", game.CurrentTurnID, game.TurnsLeft)
	}

	// Chained attack without drawing: flat reset to 2, not 4.
	play("p2", attack2.ID)
	if game.CurrentTurnID != "p3" || game.TurnsLeft != 2 {
		t.Fatalf("after chained attack: %s/%d, want p3/2", game.CurrentTurnID, game.TurnsLeft)
	}
}

func TestSkipUnderAttack(t *testing.T) {
	svc := newTestService(8)
	game := startGame(t, svc, 2)

	skip := c(domain.CardSkip)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {skip},
		"p2": {},
	})
	game.TurnsLeft = 2 // as if p1 had been attacked

	if _, err := svc.PlayCard(game, "p1", skip.ID, ""); err != nil {
		t.Fatalf("play skip: %v", err)
	}
	if _, err := svc.ResolvePending(game, "p1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if game.CurrentTurnID != "p1" || game.TurnsLeft != 1 {
		t.Errorf("turn = %s/%d, want p1/1 (still owes one draw)", game.CurrentTurnID, game.TurnsLeft)
	}
}

func TestNopeVoidsAttack(t *testing.T) {
	svc := newTestService(9)
	game := startGame(t, svc, 2)

	attack, nope := c(domain.CardAttack), c(domain.CardNope)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {attack},
		"p2": {nope},
	})

	if _, err := svc.PlayCard(game, "p1", attack.ID, ""); err != nil {
		t.Fatalf("play attack: %v", err)
	}

	// The source cannot nope their own action.
	if _, err := svc.PlayNope(game, "p1", "whatever"); !errors.Is(err, ErrNotYourAction) {
		t.Fatalf("self-nope err = %v, want ErrNotYourAction", err)
	}

	if _, err := svc.PlayNope(game, "p2", nope.ID); err != nil {
		t.Fatalf("nope: %v", err)
	}
	if game.Phase != domain.PhasePlaying || game.Pending != nil {
		t.Fatalf("phase = %s pending = %v, want playing/nil", game.Phase, game.Pending)
	}
	if game.CurrentTurnID != "p1" || game.TurnsLeft != 1 {
		t.Errorf("turn = %s/%d, attack must not apply", game.CurrentTurnID, game.TurnsLeft)
	}
	if len(game.Discard) != 2 {
		t.Errorf("discard = %d cards, want attack and nope both spent", len(game.Discard))
	}

	// Late resolve of the voided action is rejected: the window is gone.
	if _, err := svc.ResolvePending(game, "p1"); !errors.Is(err, ErrIllegalPhase) {
		t.Errorf("late resolve err = %v, want ErrIllegalPhase", err)
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Error(err)
	}
}

func TestCounterWindowExpiry(t *testing.T) {
	svc := newTestService(10)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return base }
	game := startGame(t, svc, 2)

	skip := c(domain.CardSkip)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {skip},
		"p2": {},
	})

	if _, err := svc.PlayCard(game, "p1", skip.ID, ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	if game.Pending.NopeDeadline != base.Add(DefaultNopeWindow) {
		t.Errorf("deadline = %v, want %v", game.Pending.NopeDeadline, base.Add(DefaultNopeWindow))
	}
	if game.Pending.NopeCount != 0 {
		t.Errorf("nope count = %d, want 0 on a fresh window", game.Pending.NopeCount)
	}

	if _, fired := svc.ExpirePending(game, base.Add(time.Second)); fired {
		t.Fatal("window expired before its deadline")
	}
	evs, fired := svc.ExpirePending(game, base.Add(DefaultNopeWindow))
	if !fired || len(evs) == 0 {
		t.Fatal("deadline did not resolve the pending action")
	}
	if game.CurrentTurnID != "p2" {
		t.Errorf("turn = %s, want p2 after skip resolved", game.CurrentTurnID)
	}

	// Second expiry attempt is a silent no-op: state already moved on.
	if _, fired := svc.ExpirePending(game, base.Add(time.Minute)); fired {
		t.Error("expiry fired twice")
	}
}

func TestResolveRestrictedToSource(t *testing.T) {
	svc := newTestService(11)
	game := startGame(t, svc, 2)

	shuffle := c(domain.CardShuffle)
	rig(game, []domain.Card{c(domain.CardCat1), c(domain.CardCat2)}, map[string][]domain.Card{
		"p1": {shuffle},
		"p2": {},
	})

	if _, err := svc.PlayCard(game, "p1", shuffle.ID, ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	if _, err := svc.ResolvePending(game, "p2"); !errors.Is(err, ErrNotYourAction) {
		t.Fatalf("err = %v, want ErrNotYourAction", err)
	}
	if _, err := svc.ResolvePending(game, "p1"); err != nil {
		t.Fatalf("source resolve: %v", err)
	}
}

func TestSeeFutureRevealsDrawOrder(t *testing.T) {
	svc := newTestService(12)
	game := startGame(t, svc, 2)

	a, b, x, future := c(domain.CardCat1), c(domain.CardCat2), c(domain.CardCat3), c(domain.CardSeeFuture)
	rig(game, []domain.Card{x, b, a}, map[string][]domain.Card{
		"p1": {future},
		"p2": {},
	})

	if _, err := svc.PlayCard(game, "p1", future.ID, ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	evs, err := svc.ResolvePending(game, "p1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var seen *FutureSeenPayload
	for _, ev := range evs {
		if ev.Kind == EventFutureSeen {
			p := ev.Payload.(FutureSeenPayload)
			seen = &p
			if len(ev.Recipients) != 1 || ev.Recipients[0] != "p1" {
				t.Errorf("future revealed to %v, want p1 only", ev.Recipients)
			}
		}
	}
	if seen == nil {
		t.Fatal("no future_seen event")
	}
	if len(seen.Cards) != 3 || seen.Cards[0].ID != a.ID || seen.Cards[1].ID != b.ID || seen.Cards[2].ID != x.ID {
		t.Errorf("future = %v, want next-drawn first [a b x]", seen.Cards)
	}
	if len(game.Deck) != 3 {
		t.Error("see_future mutated the deck")
	}
	if game.CurrentTurnID != "p1" {
		t.Error("see_future must not change the turn")
	}
}

func TestFavorHandOver(t *testing.T) {
	svc := newTestService(13)
	game := startGame(t, svc, 2)

	favor, prize := c(domain.CardFavor), c(domain.CardCat4)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {favor},
		"p2": {c(domain.CardCat2), prize},
	})

	if _, err := svc.PlayCard(game, "p1", favor.ID, "p2"); err != nil {
		t.Fatalf("play favor: %v", err)
	}
	if _, err := svc.ResolvePending(game, "p1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if game.Phase != domain.PhaseGivingFavor {
		t.Fatalf("phase = %s, want giving_favor", game.Phase)
	}

	// Only the designated giver can hand over.
	if _, err := svc.HandOverCard(game, "p1", 0); !errors.Is(err, ErrNotYourAction) {
		t.Fatalf("err = %v, want ErrNotYourAction", err)
	}
	if _, err := svc.HandOverCard(game, "p2", 5); !errors.Is(err, ErrInvalidCardIndex) {
		t.Fatalf("err = %v, want ErrInvalidCardIndex", err)
	}

	if _, err := svc.HandOverCard(game, "p2", 1); err != nil {
		t.Fatalf("hand over: %v", err)
	}
	p1 := game.FindPlayer("p1")
	if domain.IndexOfType(p1.Hand, domain.CardCat4) == -1 {
		t.Error("requester did not receive the chosen card")
	}
	if game.Phase != domain.PhasePlaying || game.Favor != nil {
		t.Error("favor state not cleared")
	}
	if game.CurrentTurnID != "p1" {
		t.Error("favor must not change the turn")
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Error(err)
	}
}

func TestFavorNopedByGiver(t *testing.T) {
	svc := newTestService(14)
	game := startGame(t, svc, 3)

	favor, nope := c(domain.CardFavor), c(domain.CardNope)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {favor},
		"p2": {nope, c(domain.CardCat2)},
		"p3": {c(domain.CardNope)},
	})

	if _, err := svc.PlayCard(game, "p1", favor.ID, "p2"); err != nil {
		t.Fatalf("play favor: %v", err)
	}
	if _, err := svc.ResolvePending(game, "p1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// A bystander cannot nope a favor request; only the giver can.
	if _, err := svc.PlayNope(game, "p3", game.FindPlayer("p3").Hand[0].ID); !errors.Is(err, ErrNotYourAction) {
		t.Fatalf("bystander nope err = %v, want ErrNotYourAction", err)
	}

	if _, err := svc.PlayNope(game, "p2", nope.ID); err != nil {
		t.Fatalf("giver nope: %v", err)
	}
	if game.Phase != domain.PhasePlaying || game.Favor != nil {
		t.Error("request not voided")
	}
	if len(game.FindPlayer("p1").Hand) != 0 {
		t.Error("requester received a card from a voided request")
	}
}

func TestPlayPairSteal(t *testing.T) {
	svc := newTestService(15)
	game := startGame(t, svc, 2)

	cat1a, cat1b := c(domain.CardCat1), c(domain.CardCat1)
	rig(game, []domain.Card{c(domain.CardCat2)}, map[string][]domain.Card{
		"p1": {cat1a, cat1b, c(domain.CardSkip)},
		"p2": {c(domain.CardCat3), c(domain.CardCat4)},
	})

	evs, err := svc.PlayPair(game, "p1", domain.CardCat1, "p2")
	if err != nil {
		t.Fatalf("play pair: %v", err)
	}

	p1, p2 := game.FindPlayer("p1"), game.FindPlayer("p2")
	if domain.CountType(p1.Hand, domain.CardCat1) != 0 {
		t.Error("pair not removed from thief's hand")
	}
	if len(p1.Hand) != 2 || len(p2.Hand) != 1 {
		t.Errorf("hands = %d/%d, want 2/1 after the steal", len(p1.Hand), len(p2.Hand))
	}
	if domain.CountType(game.Discard, domain.CardCat1) != 2 {
		t.Error("played pair must end in the discard pile")
	}
	if game.Phase != domain.PhasePlaying || game.CurrentTurnID != "p1" {
		t.Error("pair steal must not consume the turn or change phase")
	}
	private := false
	for _, ev := range evs {
		if ev.Kind == EventStolenCard && len(ev.Recipients) == 2 {
			private = true
		}
	}
	if !private {
		t.Error("stolen card identity not limited to thief and victim")
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Error(err)
	}
}

func TestPlayPairValidation(t *testing.T) {
	svc := newTestService(16)
	game := startGame(t, svc, 2)

	rig(game, []domain.Card{c(domain.CardCat2)}, map[string][]domain.Card{
		"p1": {c(domain.CardCat1), c(domain.CardCat1), c(domain.CardSkip), c(domain.CardSkip)},
		"p2": {},
	})

	if _, err := svc.PlayPair(game, "p1", domain.CardCat1, "p2"); !errors.Is(err, ErrNoStealTarget) {
		t.Errorf("empty target hand: err = %v, want ErrNoStealTarget", err)
	}
	if _, err := svc.PlayPair(game, "p1", domain.CardSkip, "p2"); !errors.Is(err, ErrCardNotPlayable) {
		t.Errorf("non-cat pair: err = %v, want ErrCardNotPlayable", err)
	}
	if _, err := svc.PlayPair(game, "p1", domain.CardCat2, "p2"); !errors.Is(err, ErrCardNotHeld) {
		t.Errorf("missing pair: err = %v, want ErrCardNotHeld", err)
	}
	if _, err := svc.PlayPair(game, "p1", domain.CardCat1, "p1"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("self target: err = %v, want ErrInvalidTarget", err)
	}
}

func TestEmptyDeckIsIntegrityFault(t *testing.T) {
	svc := newTestService(17)
	game := startGame(t, svc, 2)
	rig(game, []domain.Card{}, map[string][]domain.Card{
		"p1": {c(domain.CardCat1)},
		"p2": {},
	})

	if _, err := svc.DrawCard(game, "p1"); !errors.Is(err, ErrEmptyDeck) {
		t.Fatalf("err = %v, want ErrEmptyDeck", err)
	}
	if game.Status != domain.StatusPlaying || game.CurrentTurnID != "p1" {
		t.Error("integrity fault must reject cleanly without mutating state")
	}
}

func TestPlayerLeftMidGame(t *testing.T) {
	svc := newTestService(18)
	game := startGame(t, svc, 3)

	total := game.TotalCards
	evs, err := svc.PlayerLeft(game, "p1")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if game.FindPlayer("p1") != nil {
		t.Error("p1 still on roster")
	}
	if game.CurrentTurnID != "p2" {
		t.Errorf("turn = %s, want p2", game.CurrentTurnID)
	}
	if game.TotalCards != total || game.CardsInPlay() != total {
		t.Errorf("cards in play = %d, want %d (hand must move to discard)", game.CardsInPlay(), total)
	}
	if evs[0].Kind != EventPlayerLeft {
		t.Errorf("first event = %s, want player_left", evs[0].Kind)
	}

	// Second leave brings the roster to one: immediate winner.
	if _, err := svc.PlayerLeft(game, "p3"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if game.Status != domain.StatusFinished || game.WinnerID != "p2" {
		t.Errorf("status=%s winner=%s, want finished/p2", game.Status, game.WinnerID)
	}

	// Last player out: the room is abandoned.
	if _, err := svc.PlayerLeft(game, "p2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if game.Status != domain.StatusAbandoned {
		t.Errorf("status = %s, want abandoned", game.Status)
	}
}

func TestPlayerLeftVoidsPendingAction(t *testing.T) {
	svc := newTestService(19)
	game := startGame(t, svc, 3)

	attack := c(domain.CardAttack)
	rig(game, []domain.Card{c(domain.CardCat1)}, map[string][]domain.Card{
		"p1": {attack},
		"p2": {},
		"p3": {},
	})

	if _, err := svc.PlayCard(game, "p1", attack.ID, ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	if _, err := svc.PlayerLeft(game, "p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if game.Pending != nil || game.Phase != domain.PhasePlaying {
		t.Error("pending action must be voided when its source leaves")
	}
	if domain.CountType(game.Discard, domain.CardAttack) != 1 {
		t.Error("voided card must land in the discard pile")
	}
	if err := svc.VerifyConservation(game); err != nil {
		t.Error(err)
	}
}

func TestConservationThroughFullExchange(t *testing.T) {
	svc := newTestService(20)
	game := startGame(t, svc, 4)

	check := func(step string) {
		t.Helper()
		if err := svc.VerifyConservation(game); err != nil {
			t.Fatalf("%s: %v", step, err)
		}
	}
	check("after deal")

	// p1 draws until something interesting happens, then the turn walks on.
	for i := 0; i < 8; i++ {
		cur := game.CurrentTurnID
		_, err := svc.DrawCard(game, cur)
		if err != nil {
			t.Fatalf("draw %d by %s: %v", i, cur, err)
		}
		check(fmt.Sprintf("after draw %d", i))
		if game.Phase == domain.PhaseDefusing {
			if _, err := svc.SubmitDefuse(game, game.Defuse.PlayerID, i); err != nil {
				t.Fatalf("defuse: %v", err)
			}
			check("after defuse")
		}
		if game.Status != domain.StatusPlaying {
			break
		}
	}
}
