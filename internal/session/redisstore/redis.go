// Package redisstore keeps session snapshots in Redis so several server
// instances can answer for the same session.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session"
)

// Conn dials Redis and checks it answers PING.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	slog.Debug("redis options", slog.String("addr", client.Options().Addr), slog.Int("db", db))

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

type Store struct {
	client *redis.Client
	prefix string
}

// NewStore wraps client. Keys are "<prefix>session:<id>:meta".
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%ssession:%s:meta", s.prefix, id)
}

func (s *Store) Save(ctx context.Context, id string, snap coordinator.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

func (s *Store) Load(ctx context.Context, id string) (coordinator.Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return coordinator.Snapshot{}, session.ErrNotFound
	}
	if err != nil {
		return coordinator.Snapshot{}, err
	}
	var snap coordinator.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return coordinator.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
