package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkup/internal/domain"
)

// Store keeps session records in Redis so several servers can share them.
type Store struct {
	client *redis.Client
	ttl    time.Duration // 0 = keep forever
}

// NewStore creates a new Redis store. ttl is applied to every write.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a record by name. A missing key returns (nil, nil).
func (s *Store) Get(ctx context.Context, name string) (*domain.Record, error) {
	data, err := s.client.Get(ctx, SessionKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", name, err)
	}
	return &rec, nil
}

// Put stores a record, replacing any previous value
func (s *Store) Put(ctx context.Context, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SessionKey(rec.Name), data, s.ttl)
	pipe.SAdd(ctx, AllSessionsKey(), rec.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// PutIfAbsent stores a record only if its name is free (SETNX). This is what
// keeps names unique across servers sharing one Redis.
func (s *Store) PutIfAbsent(ctx context.Context, rec *domain.Record) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, SessionKey(rec.Name), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim session: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := s.client.SAdd(ctx, AllSessionsKey(), rec.Name).Err(); err != nil {
		return true, fmt.Errorf("failed to add session to set: %w", err)
	}
	return true, nil
}

// Delete removes a record
func (s *Store) Delete(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, SessionKey(name))
	pipe.SRem(ctx, AllSessionsKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List retrieves all records. Names whose key expired are pruned from the set.
func (s *Store) List(ctx context.Context) ([]*domain.Record, error) {
	names, err := s.client.SMembers(ctx, AllSessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session names: %w", err)
	}

	records := make([]*domain.Record, 0, len(names))
	for _, name := range names {
		rec, err := s.Get(ctx, name)
		if err != nil {
			// Skip records that couldn't be retrieved
			continue
		}
		if rec == nil {
			_ = s.client.SRem(ctx, AllSessionsKey(), name).Err()
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
