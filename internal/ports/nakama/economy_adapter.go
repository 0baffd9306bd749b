package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"kaboom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// NakamaEconomyAdapter moves gold through Nakama wallets.
type NakamaEconomyAdapter struct {
	nk runtime.NakamaModule
}

func NewNakamaEconomyAdapter(nk runtime.NakamaModule) *NakamaEconomyAdapter {
	return &NakamaEconomyAdapter{nk: nk}
}

// GetBalance reads the gold entry of the user's wallet. A wallet without a
// gold entry reads as zero.
func (a *NakamaEconomyAdapter) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load account %s: %w", userID, err)
	}

	var wallet map[string]int64
	if err := json.Unmarshal([]byte(account.Wallet), &wallet); err != nil {
		return 0, fmt.Errorf("parse wallet for %s: %w", userID, err)
	}
	return wallet["gold"], nil
}

// UpdateBalances applies each wallet change in order. The reason travels in
// the wallet ledger metadata so settlements stay auditable. Zero-amount
// updates are skipped.
func (a *NakamaEconomyAdapter) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	for _, update := range updates {
		if update.Amount == 0 {
			continue
		}

		metadata := update.Metadata
		if update.Reason != "" {
			if metadata == nil {
				metadata = make(map[string]interface{}, 1)
			}
			metadata["reason"] = update.Reason
		}

		changeset := map[string]int64{"gold": update.Amount}
		if _, _, err := a.nk.WalletUpdate(ctx, update.UserID, changeset, metadata, true); err != nil {
			return fmt.Errorf("update wallet for %s: %w", update.UserID, err)
		}
	}
	return nil
}

var _ ports.EconomyPort = (*NakamaEconomyAdapter)(nil)
