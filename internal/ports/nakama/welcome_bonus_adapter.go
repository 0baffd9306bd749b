package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kaboom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	welcomeBonusCollection = "onboarding"
	welcomeBonusKey        = "welcome_bonus_v1"
)

// bonusMarker is the storage record proving a grant happened.
type bonusMarker struct {
	Amount    int64  `json:"amount"`
	GrantedAt string `json:"granted_at"`
}

// NakamaWelcomeBonusAdapter implements ports.WelcomeBonusPort. The marker
// write and the wallet credit go through a single MultiUpdate so the grant
// is atomic: either both land or neither does.
type NakamaWelcomeBonusAdapter struct {
	nk runtime.NakamaModule
}

func NewNakamaWelcomeBonusAdapter(nk runtime.NakamaModule) *NakamaWelcomeBonusAdapter {
	return &NakamaWelcomeBonusAdapter{nk: nk}
}

// GrantWelcomeBonusOnce credits the bonus unless the marker already exists.
// The marker is written with version "*", which the storage engine rejects
// when the key is present; that rejection is the already-granted signal.
func (a *NakamaWelcomeBonusAdapter) GrantWelcomeBonusOnce(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("user id is required")
	}
	if amount <= 0 {
		return false, fmt.Errorf("bonus amount must be positive, got %d", amount)
	}

	marker, err := json.Marshal(bonusMarker{
		Amount:    amount,
		GrantedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, fmt.Errorf("marshal bonus marker: %w", err)
	}

	writes := []*runtime.StorageWrite{{
		Collection:      welcomeBonusCollection,
		Key:             welcomeBonusKey,
		UserID:          userID,
		Value:           string(marker),
		Version:         "*",
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}}
	credits := []*runtime.WalletUpdate{{
		UserID:    userID,
		Changeset: map[string]int64{"gold": amount},
		Metadata:  metadata,
	}}

	if _, _, err := a.nk.MultiUpdate(ctx, nil, writes, nil, credits, true); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("grant welcome bonus: %w", err)
	}
	return true, nil
}

var _ ports.WelcomeBonusPort = (*NakamaWelcomeBonusAdapter)(nil)
