package ports

import "context"

// AccountPort writes profile fields on a player account.
type AccountPort interface {
	// UpdateProfile sets the username and display name on the account
	// identified by userID.
	UpdateProfile(ctx context.Context, userID, username, displayName string) error
}
