package nakama

import (
	"context"
	"fmt"

	"kaboom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// NakamaAccountAdapter backs ports.AccountPort with the Nakama account API.
type NakamaAccountAdapter struct {
	nk runtime.NakamaModule
}

func NewNakamaAccountAdapter(nk runtime.NakamaModule) *NakamaAccountAdapter {
	return &NakamaAccountAdapter{nk: nk}
}

// UpdateProfile writes the username and display name. Avatar, language and
// location are left untouched.
func (a *NakamaAccountAdapter) UpdateProfile(ctx context.Context, userID, username, displayName string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	return a.nk.AccountUpdateId(ctx, userID, username, nil, displayName, "", "", "", "")
}

var _ ports.AccountPort = (*NakamaAccountAdapter)(nil)
