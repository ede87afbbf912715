package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// Store persists session records in Redis so sessions survive gateway
// restarts. It also maintains a per-role index of active session keys used
// by the snapshot fan-out worker.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Save writes the full record under the session key. Token and identity are
// part of the same document, so they can never be persisted separately.
func (s *Store) Save(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save record: %w", err)
	}
	return nil
}

// Load reads a persisted record. Returns shared.ErrNoSession when the key
// holds nothing.
func (s *Store) Load(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNoSession
		}
		return nil, fmt.Errorf("session: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session: decode record: %w", err)
	}
	return &rec, nil
}

// Delete removes a persisted record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.recordKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: delete record: %w", err)
	}
	return nil
}

// IndexRole adds the session key to the role's active-session index.
func (s *Store) IndexRole(ctx context.Context, roleID int64, key string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.roleKey(roleID), key)
	pipe.Expire(ctx, s.roleKey(roleID), s.ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: index role: %w", err)
	}
	return nil
}

// UnindexRole removes the session key from the role's index.
func (s *Store) UnindexRole(ctx context.Context, roleID int64, key string) error {
	if err := s.client.SRem(ctx, s.roleKey(roleID), key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: unindex role: %w", err)
	}
	return nil
}

// SessionsByRole lists the session keys currently indexed for a role.
func (s *Store) SessionsByRole(ctx context.Context, roleID int64) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.roleKey(roleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: sessions by role: %w", err)
	}
	return keys, nil
}

// SweepRoleIndex drops index members whose session record has expired.
// Returns the number of members removed.
func (s *Store) SweepRoleIndex(ctx context.Context, roleID int64) (int, error) {
	keys, err := s.SessionsByRole(ctx, roleID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		exists, err := s.client.Exists(ctx, s.recordKey(key)).Result()
		if err != nil {
			return removed, fmt.Errorf("session: sweep role index: %w", err)
		}
		if exists == 0 {
			if err := s.UnindexRole(ctx, roleID, key); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// TTL exposes the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) recordKey(key string) string {
	return "session:" + key
}

func (s *Store) roleKey(roleID int64) string {
	return fmt.Sprintf("sessions:role:%d", roleID)
}
