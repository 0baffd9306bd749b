package ports

import "context"

// WalletUpdate represents a single currency change for a user.
type WalletUpdate struct {
	UserID string
	Amount int64
	// Reason tags the ledger entry (e.g. "game_settlement").
	Reason   string
	Metadata map[string]interface{}
}

// EconomyPort defines the interface for managing game currency.
type EconomyPort interface {
	// GetBalance retrieves the current gold balance for a user.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// UpdateBalances applies multiple wallet changes. Used at the end of a
	// game to settle the pot between winner and losers.
	UpdateBalances(ctx context.Context, updates []WalletUpdate) error
}
