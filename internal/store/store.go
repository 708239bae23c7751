// Package store persists cache snapshots so a live session can restart
// without replaying its full WAL: restore the latest snapshot, then replay
// only the segments recorded after it.
package store

import (
	"context"
	"errors"

	"main/internal/cache"
)

var ErrNoSnapshot = errors.New("store: no snapshot")

// SnapshotStore saves and restores cache snapshots.
type SnapshotStore interface {
	// Save persists one snapshot. Save never partially overwrites an
	// earlier snapshot.
	Save(ctx context.Context, snap cache.Snapshot) error

	// Load returns the most recent snapshot, or ErrNoSnapshot when none
	// has been saved yet.
	Load(ctx context.Context) (cache.Snapshot, error)

	Close() error
}
