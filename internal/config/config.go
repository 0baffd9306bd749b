package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

type BetTier struct {
	ID      string `json:"id"`
	BaseBet int64  `json:"base_bet"`
}

type GameConfig struct {
	TaxRate     float64   `json:"tax_rate"`
	DefaultTier string    `json:"default_tier"`
	Tiers       []BetTier `json:"tiers"`
	// NopeWindowSeconds is how long a played action card stays open to
	// counter plays before it auto-resolves.
	NopeWindowSeconds int `json:"nope_window_seconds"`
	// HandSize is the number of safe cards dealt per player; every player
	// also gets one defuse on top.
	HandSize   int `json:"hand_size"`
	MinPlayers int `json:"min_players"`
	MaxPlayers int `json:"max_players"`
	// BotAutoFillDelaySeconds configures how many seconds to wait before adding a bot to a solo human lobby.
	BotAutoFillDelaySeconds int `json:"bot_auto_fill_delay_seconds"`
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}

		var c GameConfig
		if err := json.Unmarshal(data, &c); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal game config: %w", err)
			return
		}
		cfg = &c
	})
	return loadErr
}

// GetGameConfig returns the global game configuration.
func GetGameConfig() *GameConfig {
	return cfg
}

// GetNopeWindow returns the configured counter window, or a default when
// no config was loaded.
func GetNopeWindow() time.Duration {
	if cfg == nil || cfg.NopeWindowSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(cfg.NopeWindowSeconds) * time.Second
}

// GetMaxPlayers returns the room capacity.
func GetMaxPlayers() int {
	if cfg == nil || cfg.MaxPlayers <= 0 {
		return 5
	}
	return cfg.MaxPlayers
}

// GetBaseBet resolves the base bet for a tier ID. An empty or unknown ID
// falls back to the default tier, then to 100 gold.
func GetBaseBet(tierID string) int64 {
	const fallbackBet = 100
	if cfg == nil {
		return fallbackBet
	}

	lookup := func(id string) (int64, bool) {
		for _, tier := range cfg.Tiers {
			if tier.ID == id {
				return tier.BaseBet, true
			}
		}
		return 0, false
	}

	if tierID != "" {
		if bet, ok := lookup(tierID); ok {
			return bet
		}
	}
	if bet, ok := lookup(cfg.DefaultTier); ok {
		return bet
	}
	return fallbackBet
}
