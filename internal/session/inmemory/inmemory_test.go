package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session"
)

func TestStoreSaveLoadExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	snap := coordinator.Snapshot{State: coordinator.UploadReady, AssetIDs: []string{"abc1234567"}}
	if err := s.Save(ctx, "s1", snap, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "s1")
	if err != nil || got.State != coordinator.UploadReady {
		t.Fatalf("Load: %+v %v", got, err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := s.Load(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired entry: %v", err)
	}
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("missing entry: %v", err)
	}

	_ = s.Save(ctx, "s2", snap, 0)
	_ = s.Delete(ctx, "s2")
	if _, err := s.Load(ctx, "s2"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("deleted entry: %v", err)
	}
}
