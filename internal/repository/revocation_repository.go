package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevokedValue is stored under every revocation marker.
const RevokedValue = "true"

// ErrInvalidTTL is returned for expirations Redis would reject or ignore.
var ErrInvalidTTL = errors.New("ttl must be at least one second")

// RevocationRepository records revoked token ids in Redis. Markers carry a TTL
// matching the remaining lifetime of the token they revoke.
type RevocationRepository struct {
	client *redis.Client
	prefix string
}

// NewRevocationRepository constructs a revocation store. Keys are namespaced
// with prefix.
func NewRevocationRepository(client *redis.Client, prefix string) *RevocationRepository {
	return &RevocationRepository{client: client, prefix: prefix}
}

// Get returns the value stored for key and whether it exists.
func (r *RevocationRepository) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key without expiration.
func (r *RevocationRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetWithTTL stores value under key expiring after seconds.
func (r *RevocationRepository) SetWithTTL(ctx context.Context, key, value string, seconds int64) error {
	if seconds < 1 {
		return ErrInvalidTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, time.Duration(seconds)*time.Second).Err(); err != nil {
		return fmt.Errorf("redis setex %s: %w", key, err)
	}
	return nil
}

// IsRevoked reports whether a marker exists for tokenID.
func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	value, ok, err := r.Get(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return ok && value == RevokedValue, nil
}

// Close releases the underlying Redis connection.
func (r *RevocationRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
