// Package session keeps coordinator sessions addressable by id for HTTP
// clients. Snapshots are cached with a TTL; nothing here is durable.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Store caches the latest snapshot of each session.
type Store interface {
	Save(ctx context.Context, id string, snap coordinator.Snapshot, ttl time.Duration) error
	// Load returns ErrNotFound when id is unknown or expired.
	Load(ctx context.Context, id string) (coordinator.Snapshot, error)
	Delete(ctx context.Context, id string) error
}
