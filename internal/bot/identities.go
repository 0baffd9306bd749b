package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Identity is one entry of the bot profile pool loaded from data.
type Identity struct {
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarIndex int    `json:"avatar_index"`
}

var (
	identities    []Identity
	identityByID  map[string]Identity
	loadOnce      sync.Once
	provisionOnce sync.Once
	loadErr       error
)

// LoadIdentities loads the bot profiles from the given path.
func LoadIdentities(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read bot identities: %w", err)
			return
		}

		if err := json.Unmarshal(data, &identities); err != nil {
			loadErr = fmt.Errorf("failed to unmarshal bot identities: %w", err)
			return
		}

		identityByID = make(map[string]Identity)
		for _, id := range identities {
			if id.UserID != "" {
				identityByID[id.UserID] = id
			}
		}
	})
	return loadErr
}

// ProvisionBots ensures the bot accounts exist in the Nakama database and
// carry the is_bot metadata.
func ProvisionBots(ctx context.Context, nk runtime.NakamaModule, logger runtime.Logger) error {
	provisionOnce.Do(func() {
		for i := range identities {
			id := &identities[i]
			if id.DeviceID == "" {
				continue
			}

			userID, username, _, err := nk.AuthenticateDevice(ctx, id.DeviceID, id.Username, true)
			if err != nil {
				logger.Error("ProvisionBots: Failed to authenticate bot %s: %v", id.Username, err)
				continue
			}

			id.UserID = userID
			id.Username = username

			metadata := map[string]interface{}{
				"is_bot":       true,
				"avatar_index": id.AvatarIndex,
			}
			if err := nk.AccountUpdateId(ctx, userID, id.Username, metadata, id.DisplayName, "", "", "", ""); err != nil {
				logger.Warn("ProvisionBots: Failed to update bot account %s: %v", userID, err)
			}

			identityByID[userID] = *id
			logger.Info("ProvisionBots: Bot %s (%s) is ready.", id.DisplayName, userID)
		}
	})
	return nil
}

// syntheticBotPrefix marks fallback identities handed out when the pool is
// empty. Real Nakama user ids are UUIDs, so the prefix cannot collide with a
// human, and IsBot can recognize these ids without touching the pool map.
const syntheticBotPrefix = "bot:"

// GetIdentity returns an identity for a bot by index (mod pool size). With
// an empty pool it synthesizes one; such ids still register as bots.
func GetIdentity(index int) Identity {
	if len(identities) == 0 {
		return Identity{
			UserID:      fmt.Sprintf("%s%d", syntheticBotPrefix, index),
			DisplayName: fmt.Sprintf("AI Player %d", index),
		}
	}
	return identities[index%len(identities)]
}

// GetDisplayName returns the display name for a bot ID, or an empty string
// if not a bot.
func GetDisplayName(userID string) string {
	if id, ok := identityByID[userID]; ok {
		if id.DisplayName == "" {
			return id.Username
		}
		return id.DisplayName
	}
	if n, ok := strings.CutPrefix(userID, syntheticBotPrefix); ok {
		return "AI Player " + n
	}
	return ""
}

// IsBot reports whether the given user ID belongs to the bot pool.
func IsBot(userID string) bool {
	if strings.HasPrefix(userID, syntheticBotPrefix) {
		return true
	}
	_, ok := identityByID[userID]
	return ok
}
