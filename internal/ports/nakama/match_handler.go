package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"kaboom/internal/app"
	"kaboom/internal/bot"
	"kaboom/internal/config"
	"kaboom/internal/domain"
	"kaboom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	MatchLabelKey_OpenSeats = "open" // Key for the open seats in the match label
)

// matchLabel is the JSON label the matchmaker queries against.
type matchLabel struct {
	Open  int    `json:"open"`
	Game  string `json:"game"`
	Phase string `json:"phase"`
}

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	Roster  []string `json:"roster"`   // User ids in join order; also the turn rotation order
	OwnerID string   `json:"owner_id"`
	Tick    int64    `json:"tick"`
	MatchID string   `json:"match_id"`

	Presences map[string]runtime.Presence `json:"-"`
	Names     map[string]string           `json:"names"` // Display names by user id

	App  *app.Service `json:"-"` // Rule engine
	Game *domain.Game `json:"-"` // Current active game state (nil if in lobby)

	Store           ports.RoomStorePort `json:"-"` // Snapshot persistence
	Economy         ports.EconomyPort   `json:"-"` // Interface to Nakama wallet
	SnapshotVersion string              `json:"-"` // Last seen storage version for the room snapshot
	Dirty           bool                `json:"-"` // Game state changed this tick, persist before returning

	Participants []string `json:"participants"` // Roster captured at game start, for settlement
	BaseBet      int64    `json:"base_bet"`

	MaxPlayers           int                   `json:"max_players"`
	BotsEnabled          bool                  `json:"bots_enabled"`            // Whether AI players are allowed
	BotMinDelay          int                   `json:"bot_min_delay"`           // Min seconds a bot waits
	BotMaxDelay          int                   `json:"bot_max_delay"`           // Max seconds a bot waits
	BotAutoFillDelay     int                   `json:"bot_auto_fill_delay"`     // Seconds to wait before auto-filling with bots
	BotWaitUntil         int64                 `json:"bot_wait_until"`          // Tick when the waiting bot should act
	LastSinglePlayerTick int64                 `json:"last_single_player_tick"` // Tick when a single player started waiting
	Bots                 map[string]*bot.Agent `json:"-"`                       // Active bot agents
}

func (ms *MatchState) OpenSlots() int {
	return ms.MaxPlayers - len(ms.Roster)
}

func (ms *MatchState) GetHumanPlayerCount() int {
	count := 0
	for _, id := range ms.Roster {
		if !bot.IsBot(id) {
			count++
		}
	}
	return count
}

// findFirstHuman returns the first roster entry occupied by a human, or "".
func findFirstHuman(roster []string) string {
	for _, id := range roster {
		if id != "" && !bot.IsBot(id) {
			return id
		}
	}
	return ""
}

func (ms *MatchState) displayName(userID string) string {
	if p, ok := ms.Presences[userID]; ok {
		return p.GetUsername()
	}
	if name := bot.GetDisplayName(userID); name != "" {
		return name
	}
	if name, ok := ms.Names[userID]; ok && name != "" {
		return name
	}
	return userID
}

func (ms *MatchState) removeFromRoster(userID string) {
	for i, id := range ms.Roster {
		if id == userID {
			ms.Roster = append(ms.Roster[:i:i], ms.Roster[i+1:]...)
			return
		}
	}
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	// Load bot identities from data folder
	if err := bot.LoadIdentities("data/bot_identities.json"); err != nil {
		logger.Warn("MatchInit: Could not load bot identities: %v", err)
	}

	// Load game configuration
	if err := config.LoadGameConfig("data/game_config.json"); err != nil {
		logger.Warn("MatchInit: Could not load game config: %v", err)
	}

	service := app.NewService(nil)
	service.NopeWindow = config.GetNopeWindow()
	if cfg := config.GetGameConfig(); cfg != nil && cfg.HandSize > 0 {
		service.Setup.HandSize = cfg.HandSize
	}

	matchID, _ := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string)

	state := &MatchState{
		MatchID:    matchID,
		Presences:  make(map[string]runtime.Presence),
		Names:      make(map[string]string),
		App:        service,
		MaxPlayers: config.GetMaxPlayers(),
		Bots:       make(map[string]*bot.Agent),
		Store:      NewNakamaRoomStoreAdapter(nk),
		Economy:    NewNakamaEconomyAdapter(nk),
	}

	// Read environment variables for bot configuration
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	if val, ok := env["kaboom_bots_enabled"]; ok {
		state.BotsEnabled = val == "true"
	}
	if val, ok := env["kaboom_bot_min_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMinDelay = i
		}
	}
	if val, ok := env["kaboom_bot_max_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMaxDelay = i
		}
	}
	if val, ok := env["kaboom_bot_auto_fill_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotAutoFillDelay = i
		}
	}

	// Defaults if not set
	if state.BotMinDelay == 0 {
		state.BotMinDelay = 1
	}
	if state.BotMaxDelay == 0 {
		state.BotMaxDelay = 3
	}
	if state.BotAutoFillDelay == 0 {
		if cfg := config.GetGameConfig(); cfg != nil && cfg.BotAutoFillDelaySeconds > 0 {
			state.BotAutoFillDelay = cfg.BotAutoFillDelaySeconds
		} else {
			state.BotAutoFillDelay = 5
		}
	}

	labelBytes, err := json.Marshal(&matchLabel{
		Open:  state.OpenSlots(),
		Game:  "kaboom",
		Phase: "lobby",
	})
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	tickRate := 1 // 1 tick per second; deadlines are wall-clock timestamps
	return state, tickRate, string(labelBytes)
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	// Reconnecting players are always let back into their game.
	if matchState.Game != nil && matchState.Game.FindPlayer(presence.GetUserId()) != nil {
		return state, true, ""
	}

	if matchState.OpenSlots() <= 0 {
		// A lobby bot can give up its slot to a human.
		hasBot := false
		if matchState.Game == nil {
			for _, id := range matchState.Roster {
				if bot.IsBot(id) {
					hasBot = true
					break
				}
			}
		}
		if !hasBot {
			return state, false, "Match full"
		}
	}

	if matchState.Game != nil {
		return state, false, "Game in progress"
	}

	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p
		matchState.Names[userID] = p.GetUsername()

		alreadySeated := false
		for _, id := range matchState.Roster {
			if id == userID {
				alreadySeated = true
				break
			}
		}

		if alreadySeated {
			// Reconnect: re-sync the player's private hand.
			mh.resendHand(matchState, dispatcher, logger, userID)
			continue
		}

		if matchState.OpenSlots() > 0 {
			matchState.Roster = append(matchState.Roster, userID)
			continue
		}

		// Replace a lobby bot.
		replaced := false
		if matchState.Game == nil {
			for i, id := range matchState.Roster {
				if bot.IsBot(id) {
					logger.Info("MatchJoin: Replacing bot %s with human %s", id, userID)
					delete(matchState.Bots, id)
					matchState.Roster[i] = userID
					replaced = true
					break
				}
			}
		}
		if !replaced {
			logger.Warn("MatchJoin: User %s joined but no slot was available.", userID)
		}
	}

	// Ensure the owner is a human player.
	if matchState.OwnerID == "" || bot.IsBot(matchState.OwnerID) || !contains(matchState.Roster, matchState.OwnerID) {
		matchState.OwnerID = findFirstHuman(matchState.Roster)
		if matchState.OwnerID != "" {
			logger.Debug("MatchJoin: Owner set to %s.", matchState.OwnerID)
		}
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastRoomState(matchState, dispatcher, logger)

	return matchState
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// resendHand re-delivers the private hand to a reconnecting player.
func (mh *matchHandler) resendHand(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string) {
	if state.Game == nil {
		return
	}
	pl := state.Game.FindPlayer(userID)
	if pl == nil {
		return
	}
	mh.broadcastEvent(state, dispatcher, logger, app.Event{
		Kind:       app.EventHandDealt,
		Payload:    app.HandDealtPayload{PlayerID: userID, Hand: pl.Hand},
		Recipients: []string{userID},
	})
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)

		// Leaving a live game forfeits: the engine removes the player, voids
		// their sub-state and re-evaluates the winner.
		if matchState.Game != nil && matchState.Game.FindPlayer(userID) != nil {
			events, err := matchState.App.PlayerLeft(matchState.Game, userID)
			if err != nil {
				logger.Error("MatchLeave: Failed to remove %s from game: %v", userID, err)
			} else {
				mh.dispatchEvents(ctx, matchState, dispatcher, logger, events)
			}
		}

		matchState.removeFromRoster(userID)
		logger.Debug("MatchLeave: User %s left.", userID)
	}

	if matchState.OwnerID == "" || !contains(matchState.Roster, matchState.OwnerID) || bot.IsBot(matchState.OwnerID) {
		matchState.OwnerID = findFirstHuman(matchState.Roster)
	}

	if findFirstHuman(matchState.Roster) == "" {
		logger.Info("MatchLeave: Terminating match with no humans.")
		if err := matchState.Store.DeleteSnapshot(ctx, matchState.MatchID); err != nil {
			logger.Warn("MatchLeave: Failed to delete room snapshot: %v", err)
		}
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastRoomState(matchState, dispatcher, logger)

	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	// Handle incoming messages
	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartGame:
			mh.handleStartGame(ctx, matchState, dispatcher, logger, msg)
		case OpDrawCard:
			mh.handleDrawCard(ctx, matchState, dispatcher, logger, msg)
		case OpPlayCard:
			mh.handlePlayCard(ctx, matchState, dispatcher, logger, msg)
		case OpPlayPair:
			mh.handlePlayPair(ctx, matchState, dispatcher, logger, msg)
		case OpPlayNope:
			mh.handlePlayNope(ctx, matchState, dispatcher, logger, msg)
		case OpResolveAction:
			mh.handleResolveAction(ctx, matchState, dispatcher, logger, msg)
		case OpSubmitDefuse:
			mh.handleSubmitDefuse(ctx, matchState, dispatcher, logger, msg)
		case OpGiveCard:
			mh.handleGiveCard(ctx, matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	// Auto-resolve counter windows whose deadline has passed.
	if matchState.Game != nil {
		if events, fired := matchState.App.ExpirePending(matchState.Game, time.Now()); fired {
			mh.dispatchEvents(ctx, matchState, dispatcher, logger, events)
		}
	}

	// AI logic
	if matchState.BotsEnabled {
		mh.processBots(ctx, matchState, dispatcher, logger)
	}

	if matchState.Dirty {
		matchState.Dirty = false
		if matchState.Game != nil {
			mh.persistGame(ctx, matchState, logger)
		}
	}

	return matchState
}

// dispatchEvents broadcasts engine events and applies their side effects:
// settlement on game end, snapshot cleanup on abandonment, and the public
// room snapshot that follows every applied command.
func (mh *matchHandler) dispatchEvents(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, events []app.Event) {
	gameEnded := false
	abandoned := false
	winnerID := ""

	for _, ev := range events {
		mh.broadcastEvent(state, dispatcher, logger, ev)
		switch ev.Kind {
		case app.EventGameEnded:
			gameEnded = true
			winnerID = ev.Payload.(app.GameEndedPayload).WinnerID
		case app.EventRoomAbandoned:
			abandoned = true
		}
	}

	state.Dirty = true

	if state.Game != nil {
		if err := state.App.VerifyConservation(state.Game); err != nil {
			logger.Error("dispatchEvents: Integrity fault in match %s: %v", state.MatchID, err)
		}
	}

	if gameEnded {
		mh.settleGame(ctx, state, logger, winnerID)
		state.Game = nil
		state.Participants = nil
		state.Dirty = false
		if err := state.Store.DeleteSnapshot(ctx, state.MatchID); err != nil {
			logger.Warn("dispatchEvents: Failed to delete room snapshot: %v", err)
		}
		state.SnapshotVersion = ""
		mh.updateLabel(state, dispatcher, logger)
	}
	if abandoned {
		state.Game = nil
		state.Participants = nil
		state.Dirty = false
		if err := state.Store.DeleteSnapshot(ctx, state.MatchID); err != nil {
			logger.Warn("dispatchEvents: Failed to delete room snapshot: %v", err)
		}
		state.SnapshotVersion = ""
	}

	mh.broadcastRoomState(state, dispatcher, logger)
}

// persistGame writes the room snapshot with the last seen version. A stale
// version means something else wrote the record; the version is refreshed
// and the write retried once.
func (mh *matchHandler) persistGame(ctx context.Context, state *MatchState, logger runtime.Logger) {
	snap := &ports.RoomSnapshot{
		MatchID: state.MatchID,
		Game:    state.Game,
		Version: state.SnapshotVersion,
	}

	version, err := state.Store.SaveSnapshot(ctx, snap)
	if errors.Is(err, ports.ErrStaleSnapshot) {
		logger.Warn("persistGame: Snapshot version conflict for match %s, refreshing.", state.MatchID)
		current, loadErr := state.Store.LoadSnapshot(ctx, state.MatchID)
		if loadErr != nil {
			logger.Error("persistGame: Failed to reload snapshot: %v", loadErr)
			return
		}
		if current != nil {
			snap.Version = current.Version
		} else {
			snap.Version = ""
		}
		version, err = state.Store.SaveSnapshot(ctx, snap)
	}
	if err != nil {
		logger.Error("persistGame: Failed to persist match %s: %v", state.MatchID, err)
		return
	}
	state.SnapshotVersion = version
}

// settleGame moves gold between the participants: every loser pays the base
// bet into the pot, the winner takes the pot minus the house tax. Bots hold
// no wallets and are skipped.
func (mh *matchHandler) settleGame(ctx context.Context, state *MatchState, logger runtime.Logger, winnerID string) {
	if state.Economy == nil || state.BaseBet <= 0 || winnerID == "" {
		return
	}

	var losers []string
	for _, id := range state.Participants {
		if id != winnerID {
			losers = append(losers, id)
		}
	}
	if len(losers) == 0 {
		return
	}

	pot := state.BaseBet * int64(len(losers))
	taxRate := 0.0
	if cfg := config.GetGameConfig(); cfg != nil {
		taxRate = cfg.TaxRate
	}
	winnings := pot - int64(float64(pot)*taxRate)

	updates := make([]ports.WalletUpdate, 0, len(losers)+1)
	for _, id := range losers {
		if bot.IsBot(id) {
			continue
		}
		updates = append(updates, ports.WalletUpdate{
			UserID: id,
			Amount: -state.BaseBet,
			Reason: "game_settlement",
			Metadata: map[string]interface{}{
				"match_id": state.MatchID,
			},
		})
	}
	if !bot.IsBot(winnerID) {
		updates = append(updates, ports.WalletUpdate{
			UserID: winnerID,
			Amount: winnings,
			Reason: "game_settlement",
			Metadata: map[string]interface{}{
				"match_id": state.MatchID,
			},
		})
	}

	if err := state.Economy.UpdateBalances(ctx, updates); err != nil {
		logger.Error("settleGame: Failed to update balances: %v", err)
	}
}

func (mh *matchHandler) handleStartGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()

	logger.Info("StartGame: Request received from %s (owner=%s, players=%d)", senderID, state.OwnerID, len(state.Roster))

	if senderID != state.OwnerID {
		logger.Warn("StartGame: User %s tried to start game but is not owner (owner=%s)", senderID, state.OwnerID)
		mh.sendError(state, dispatcher, logger, senderID, 400, "only the room owner can start the game")
		return
	}
	if state.Game != nil {
		logger.Warn("StartGame: Game already in progress.")
		mh.sendError(state, dispatcher, logger, senderID, 400, "game already in progress")
		return
	}
	if len(state.Roster) < app.MinPlayersToStartGame {
		logger.Warn("StartGame: Cannot start with %d players. Need at least %d.", len(state.Roster), app.MinPlayersToStartGame)
		mh.sendError(state, dispatcher, logger, senderID, 400, app.ErrTooFewPlayers.Error())
		return
	}

	roster := make([]app.RosterPlayer, len(state.Roster))
	for i, id := range state.Roster {
		roster[i] = app.RosterPlayer{ID: id, DisplayName: state.displayName(id)}
	}

	game, events, err := state.App.StartGame(roster)
	if err != nil {
		logger.Error("StartGame: Failed to start game: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	state.Game = game
	state.Participants = append([]string(nil), state.Roster...)
	// TODO: read the bet tier from match creation params once the client sends one.
	state.BaseBet = config.GetBaseBet("")

	mh.updateLabel(state, dispatcher, logger)
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)

	logger.Info("StartGame: Game started with %d players.", len(roster))
}

func (mh *matchHandler) handleDrawCard(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handleDrawCard: Game not started.")
		return
	}

	events, err := state.App.DrawCard(state.Game, msg.GetUserId())
	if err != nil {
		logger.Warn("handleDrawCard: User %s failed to draw: %v", msg.GetUserId(), err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handlePlayCard(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handlePlayCard: Game not started.")
		return
	}

	var req playCardRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Error("handlePlayCard: Failed to unmarshal request: %v", err)
		return
	}

	events, err := state.App.PlayCard(state.Game, msg.GetUserId(), req.CardID, req.TargetID)
	if err != nil {
		logger.Warn("handlePlayCard: User %s failed to play card %s: %v", msg.GetUserId(), req.CardID, err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handlePlayPair(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handlePlayPair: Game not started.")
		return
	}

	var req playPairRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Error("handlePlayPair: Failed to unmarshal request: %v", err)
		return
	}

	events, err := state.App.PlayPair(state.Game, msg.GetUserId(), domain.CardType(req.CardType), req.TargetID)
	if err != nil {
		logger.Warn("handlePlayPair: User %s failed to play pair of %s: %v", msg.GetUserId(), req.CardType, err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handlePlayNope(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handlePlayNope: Game not started.")
		return
	}

	var req playNopeRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Error("handlePlayNope: Failed to unmarshal request: %v", err)
		return
	}

	events, err := state.App.PlayNope(state.Game, msg.GetUserId(), req.CardID)
	if err != nil {
		logger.Warn("handlePlayNope: User %s failed to nope: %v", msg.GetUserId(), err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handleResolveAction(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handleResolveAction: Game not started.")
		return
	}

	events, err := state.App.ResolvePending(state.Game, msg.GetUserId())
	if err != nil {
		logger.Warn("handleResolveAction: User %s failed to resolve: %v", msg.GetUserId(), err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handleSubmitDefuse(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handleSubmitDefuse: Game not started.")
		return
	}

	var req submitDefuseRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Error("handleSubmitDefuse: Failed to unmarshal request: %v", err)
		return
	}

	events, err := state.App.SubmitDefuse(state.Game, msg.GetUserId(), req.DistanceFromTop)
	if err != nil {
		logger.Warn("handleSubmitDefuse: User %s failed to defuse: %v", msg.GetUserId(), err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handleGiveCard(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	if state.Game == nil {
		logger.Warn("handleGiveCard: Game not started.")
		return
	}

	var req giveCardRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Error("handleGiveCard: Failed to unmarshal request: %v", err)
		return
	}

	events, err := state.App.HandOverCard(state.Game, msg.GetUserId(), req.CardIndex)
	if err != nil {
		logger.Warn("handleGiveCard: User %s failed to give card: %v", msg.GetUserId(), err)
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), 400, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) processBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	// 1. Auto-fill lobby with bots if there's only one human player after delay
	if state.Game == nil {
		humanCount := state.GetHumanPlayerCount()
		if humanCount == 1 {
			if state.LastSinglePlayerTick == 0 {
				state.LastSinglePlayerTick = state.Tick
				logger.Debug("processBots: Single player detected, starting auto-fill timer.")
			}

			if state.Tick-state.LastSinglePlayerTick >= int64(state.BotAutoFillDelay) {
				added := false
				for state.OpenSlots() > 0 {
					identity := bot.GetIdentity(len(state.Roster))
					botID := identity.UserID
					if contains(state.Roster, botID) {
						break
					}
					state.Roster = append(state.Roster, botID)

					agent, err := bot.NewAgent(botID)
					if err != nil {
						logger.Error("Failed to create bot agent for %s: %v", botID, err)
					} else {
						state.Bots[botID] = agent
					}

					logger.Info("processBots: Added bot %s (%s)", identity.DisplayName, botID)
					added = true
				}
				if added {
					mh.updateLabel(state, dispatcher, logger)
					mh.broadcastRoomState(state, dispatcher, logger)
				}
				state.LastSinglePlayerTick = 0
			}
		} else {
			// Reset timer if 0 or >1 humans
			state.LastSinglePlayerTick = 0
		}
		return
	}

	// 2. Handle bot moves in-game. Work out which player the game is
	// waiting on; the counter window resolves on its own deadline.
	g := state.Game
	waitingID := ""
	switch g.Phase {
	case domain.PhasePlaying:
		waitingID = g.CurrentTurnID
	case domain.PhaseDefusing:
		if g.Defuse != nil {
			waitingID = g.Defuse.PlayerID
		}
	case domain.PhaseGivingFavor:
		if g.Favor != nil {
			waitingID = g.Favor.GiverID
		}
	}

	if waitingID == "" || !bot.IsBot(waitingID) {
		state.BotWaitUntil = 0
		return
	}

	if state.BotWaitUntil == 0 {
		delay := rand.Intn(state.BotMaxDelay-state.BotMinDelay+1) + state.BotMinDelay
		state.BotWaitUntil = state.Tick + int64(delay)
		logger.Debug("processBots: Bot %s will act at tick %d (current %d)", waitingID, state.BotWaitUntil, state.Tick)
		return
	}
	if state.Tick < state.BotWaitUntil {
		return
	}
	state.BotWaitUntil = 0

	agent, exists := state.Bots[waitingID]
	if !exists {
		var err error
		agent, err = bot.NewAgent(waitingID)
		if err != nil {
			logger.Error("processBots: Failed to create fallback agent: %v", err)
			return
		}
		state.Bots[waitingID] = agent
	}

	move, ok := agent.Play(g)
	if !ok {
		return
	}

	var events []app.Event
	var err error
	switch move.Kind {
	case bot.MoveDraw:
		events, err = state.App.DrawCard(g, waitingID)
	case bot.MovePlayCard:
		events, err = state.App.PlayCard(g, waitingID, move.CardID, move.TargetID)
	case bot.MoveDefuse:
		events, err = state.App.SubmitDefuse(g, waitingID, move.DistanceFromTop)
	case bot.MoveGiveCard:
		events, err = state.App.HandOverCard(g, waitingID, move.CardIndex)
	}
	if err != nil {
		logger.Error("processBots: Bot %s move failed: %v", waitingID, err)
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

// broadcastRoomState sends the public room snapshot: lobby roster plus the
// redacted game view. Hands travel only on private messages.
func (mh *matchHandler) broadcastRoomState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	roster := make([]playerView, 0, len(state.Roster))
	for _, id := range state.Roster {
		view := playerView{
			UserID:      id,
			DisplayName: state.displayName(id),
			Alive:       true,
		}
		if state.Game != nil {
			if pl := state.Game.FindPlayer(id); pl != nil {
				view.Alive = pl.Alive
				view.HandCount = len(pl.Hand)
				view.IsTurn = state.Game.CurrentTurnID == id
			}
		}
		roster = append(roster, view)
	}

	snapshot := roomView{
		Roster: roster,
		Game:   toGameView(state.Game),
	}
	bytes, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error("broadcastRoomState: Failed to marshal snapshot: %v", err)
		return
	}
	dispatcher.BroadcastMessage(OpStateSnapshot, bytes, nil, nil, true)
}

// eventOpCode maps an engine event to its wire opcode.
func eventOpCode(kind app.EventKind) (int64, bool) {
	switch kind {
	case app.EventGameStarted:
		return OpGameStarted, true
	case app.EventHandDealt:
		return OpHandDealt, true
	case app.EventCardDrawn:
		return OpCardDrawn, true
	case app.EventCardReceived:
		return OpCardReceived, true
	case app.EventDefuseNeeded:
		return OpDefuseNeeded, true
	case app.EventBombDefused:
		return OpBombDefused, true
	case app.EventPlayerExploded:
		return OpPlayerExploded, true
	case app.EventTurnChanged:
		return OpTurnChanged, true
	case app.EventActionPending:
		return OpActionPending, true
	case app.EventActionResolved:
		return OpActionResolved, true
	case app.EventActionNoped:
		return OpActionNoped, true
	case app.EventDeckShuffled:
		return OpDeckShuffled, true
	case app.EventFutureSeen:
		return OpFutureSeen, true
	case app.EventFavorRequested:
		return OpFavorRequested, true
	case app.EventCardGiven:
		return OpCardGiven, true
	case app.EventCardStolen:
		return OpCardStolen, true
	case app.EventStolenCard:
		return OpStolenCard, true
	case app.EventPlayerLeft:
		return OpPlayerLeftGame, true
	case app.EventGameEnded:
		return OpGameEnded, true
	case app.EventRoomAbandoned:
		return OpRoomAbandoned, true
	}
	return 0, false
}

// broadcastEvent dispatches one engine event to its recipients.
func (mh *matchHandler) broadcastEvent(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	opCode, ok := eventOpCode(ev.Kind)
	if !ok {
		logger.Warn("Unknown event kind: %v", ev.Kind)
		return
	}

	bytes, err := json.Marshal(ev.Payload)
	if err != nil {
		logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	// Determine recipients (default to broadcast)
	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, uid := range ev.Recipients {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}

		// If we had intended recipients but none are connected (e.g. they
		// are bots), we MUST NOT broadcast to everyone else.
		if len(recipients) == 0 {
			return
		}
	}

	dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true)
}

// sendError sends a game error payload to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	bytes, err := json.Marshal(map[string]interface{}{
		"code":    code,
		"message": message,
	})
	if err != nil {
		logger.Error("Failed to marshal error payload: %v", err)
		return
	}

	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}

	dispatcher.BroadcastMessage(OpGameError, bytes, []runtime.Presence{presence}, nil, true)
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	phase := "lobby"
	if state.Game != nil {
		phase = "playing"
	}

	labelBytes, err := json.Marshal(&matchLabel{
		Open:  state.OpenSlots(),
		Game:  "kaboom",
		Phase: phase,
	})
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(string(labelBytes)); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	if matchState, ok := state.(*MatchState); ok && matchState.Game != nil {
		mh.persistGame(ctx, matchState, logger)
	}
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
