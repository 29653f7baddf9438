// Package session stores the server-side record behind each access token so
// that tokens can be revoked before they expire.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for a token id that was never saved, has expired or
// was revoked.
var ErrNotFound = errors.New("session not found or expired")

// Principal is the account bound to an access token.
type Principal struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisStore keeps access sessions in Redis with a TTL matching the token.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "access:",
	}
}

func (s *RedisStore) key(jti string) string {
	return s.prefix + jti
}

// Save records the principal for a token id until expiresAt.
func (s *RedisStore) Save(ctx context.Context, jti string, principal Principal, expiresAt time.Time) error {
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = time.Now().UTC()
	}
	jsonData, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save session %s: already expired", jti)
	}

	if err := s.client.Set(ctx, s.key(jti), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lookup returns the principal saved for a token id.
func (s *RedisStore) Lookup(ctx context.Context, jti string) (Principal, error) {
	jsonData, err := s.client.Get(ctx, s.key(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return Principal{}, ErrNotFound
	}
	if err != nil {
		return Principal{}, fmt.Errorf("lookup session: %w", err)
	}

	var principal Principal
	if err := json.Unmarshal([]byte(jsonData), &principal); err != nil {
		return Principal{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return principal, nil
}

// Revoke deletes a session. Revoking an unknown id is not an error.
func (s *RedisStore) Revoke(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, s.key(jti)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
