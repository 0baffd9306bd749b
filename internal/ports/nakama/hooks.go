package nakama

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"kaboom/internal/app/onboarding"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// AfterAuthenticateDevice onboards freshly created accounts: a generated
// display name plus the one-time welcome bonus. Existing accounts pass
// straight through.
func AfterAuthenticateDevice(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateDeviceRequest) error {
	if !out.Created {
		return nil
	}

	userID, err := sessionUserID(ctx, out.Token)
	if err != nil {
		logger.Error("AfterAuthenticateDevice: Could not resolve user id: %v", err)
		return err
	}

	svc := onboarding.NewService(NewNakamaAccountAdapter(nk), NewNakamaWelcomeBonusAdapter(nk), nil)
	result, err := svc.OnboardNewUser(ctx, userID)
	if result.ProfileUpdateErr != nil {
		logger.Warn("AfterAuthenticateDevice: Profile update failed for %s: %v", userID, result.ProfileUpdateErr)
	}
	if err != nil {
		logger.Error("AfterAuthenticateDevice: Onboarding failed for %s: %v", userID, err)
		return err
	}
	if result.WelcomeBonusGranted {
		logger.Info("AfterAuthenticateDevice: Onboarded new user %s", userID)
	}
	return nil
}

// sessionUserID resolves the user id from the runtime context, falling back
// to the uid claim of the freshly issued session token. The hook runs before
// the context carries the user on some server versions.
func sessionUserID(ctx context.Context, token string) (string, error) {
	if id, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string); ok && id != "" {
		return id, nil
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed session token")
	}
	// Session tokens use unpadded URL-safe base64.
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode session token payload: %w", err)
	}

	var claims struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parse session token claims: %w", err)
	}
	if claims.UID == "" {
		return "", fmt.Errorf("session token carries no uid claim")
	}
	return claims.UID, nil
}
