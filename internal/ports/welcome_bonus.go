package ports

import "context"

// WelcomeBonusPort hands out the signup bonus at most once per account.
type WelcomeBonusPort interface {
	// GrantWelcomeBonusOnce credits amount to the user's wallet unless a
	// previous grant exists. granted is false on the repeat path.
	GrantWelcomeBonusOnce(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) (granted bool, err error)
}
