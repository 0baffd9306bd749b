package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kaboom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	roomCollection = "rooms"
)

// NakamaRoomStoreAdapter persists room snapshots as system-owned storage
// objects, one per match id. Writes carry the last seen version so a
// concurrent writer surfaces as ports.ErrStaleSnapshot instead of silently
// clobbering newer state.
type NakamaRoomStoreAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaRoomStoreAdapter creates a new room store adapter.
func NewNakamaRoomStoreAdapter(nk runtime.NakamaModule) *NakamaRoomStoreAdapter {
	return &NakamaRoomStoreAdapter{nk: nk}
}

// SaveSnapshot writes the snapshot conditioned on its version and returns
// the storage engine's new version token.
func (a *NakamaRoomStoreAdapter) SaveSnapshot(ctx context.Context, snap *ports.RoomSnapshot) (string, error) {
	if snap == nil || snap.MatchID == "" {
		return "", fmt.Errorf("snapshot requires a match id")
	}

	value, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal room snapshot: %w", err)
	}

	acks, err := a.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      roomCollection,
			Key:             snap.MatchID,
			Value:           string(value),
			Version:         snap.Version,
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	})
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return "", ports.ErrStaleSnapshot
		}
		return "", fmt.Errorf("failed to write room snapshot: %w", err)
	}
	if len(acks) == 0 {
		return "", fmt.Errorf("room snapshot write returned no ack")
	}
	return acks[0].Version, nil
}

// LoadSnapshot reads the snapshot for a match, or nil when none exists.
func (a *NakamaRoomStoreAdapter) LoadSnapshot(ctx context.Context, matchID string) (*ports.RoomSnapshot, error) {
	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: roomCollection, Key: matchID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read room snapshot: %w", err)
	}
	if len(objects) == 0 {
		return nil, nil
	}

	var snap ports.RoomSnapshot
	if err := json.Unmarshal([]byte(objects[0].Value), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room snapshot: %w", err)
	}
	snap.Version = objects[0].Version
	return &snap, nil
}

// DeleteSnapshot removes the record once the room is gone.
func (a *NakamaRoomStoreAdapter) DeleteSnapshot(ctx context.Context, matchID string) error {
	err := a.nk.StorageDelete(ctx, []*runtime.StorageDelete{
		{Collection: roomCollection, Key: matchID},
	})
	if err != nil {
		return fmt.Errorf("failed to delete room snapshot: %w", err)
	}
	return nil
}

var _ ports.RoomStorePort = (*NakamaRoomStoreAdapter)(nil)
