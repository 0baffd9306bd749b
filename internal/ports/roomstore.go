package ports

import (
	"context"
	"errors"

	"kaboom/internal/domain"
)

// ErrStaleSnapshot is returned when a snapshot write lost a version race.
var ErrStaleSnapshot = errors.New("room snapshot version is stale")

// RoomSnapshot is the persisted record of one room's game.
type RoomSnapshot struct {
	MatchID string       `json:"match_id"`
	Game    *domain.Game `json:"game"`
	// Version is the storage engine's concurrency token. Empty on a
	// snapshot that has never been written.
	Version string `json:"-"`
}

// RoomStorePort persists room snapshots with optimistic concurrency. A
// write carrying a stale version fails with ErrStaleSnapshot instead of
// clobbering a newer record.
type RoomStorePort interface {
	// SaveSnapshot writes the snapshot and returns the new version token.
	SaveSnapshot(ctx context.Context, snap *RoomSnapshot) (string, error)

	// LoadSnapshot reads the snapshot for a match, or nil when none exists.
	LoadSnapshot(ctx context.Context, matchID string) (*RoomSnapshot, error)

	// DeleteSnapshot removes the record once the room is gone.
	DeleteSnapshot(ctx context.Context, matchID string) error
}
