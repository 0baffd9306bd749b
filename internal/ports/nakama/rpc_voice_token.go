package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"kaboom/internal/app/voice"

	"github.com/heroiclabs/nakama-common/runtime"
)

// voiceService is initialized lazily from runtime env credentials.
var voiceService *voice.Service

// RpcGetVoiceToken handles the RPC call from the client to obtain a voice
// channel access token.
// Payload: {"action": "login" | "join", "channel": "<match id>"}
func RpcGetVoiceToken(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("Unauthorized", 16) // UNAUTHENTICATED
	}

	var req struct {
		Action  string `json:"action"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("Invalid payload", 3) // INVALID_ARGUMENT
	}
	if req.Action == "" {
		req.Action = voice.ActionLogin
	}

	if voiceService == nil {
		env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
		voiceService = voice.NewService(env["voice_secret"], env["voice_issuer"], env["voice_domain"])
	}

	token, err := voiceService.GenerateToken(userID, req.Action, req.Channel)
	if err != nil {
		logger.Error("Failed to generate voice token: %v", err)
		return "", runtime.NewError("Internal error", 13) // INTERNAL
	}

	res := map[string]string{
		"token": token,
	}
	resBytes, _ := json.Marshal(res)
	return string(resBytes), nil
}
