// Package cache is the short-lived display cache in front of the pass and
// rotation stores. Advisory only: validation and redemption never trust it,
// they read the stores. A nil client degrades every call to a miss/no-op so
// the core runs without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/musicamatics/queueskip/internal/platform/redis"
	id "github.com/musicamatics/queueskip/pkg/domain"
)

const (
	passKeyPrefix       = "pass:"
	credentialKeyPrefix = "cred:"

	passTTL = 5 * time.Minute
	// credentialTTL outlives one rotation so a display refresh between ticks
	// hits the cache, but never outlives two.
	credentialTTL = time.Minute
)

// Cache wraps the shared Redis client with pass-domain keys.
type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// GetJSON loads key into dest. Returns false on miss, absent client, or
// decode failure (a corrupt entry is a miss, not an error).
func (c *Cache) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// GetPass loads a cached pass snapshot into dest.
func (c *Cache) GetPass(ctx context.Context, passID id.PassID, dest any) (bool, error) {
	return c.getJSON(ctx, passKeyPrefix+passID.String(), dest)
}

// SetPass caches a pass snapshot.
func (c *Cache) SetPass(ctx context.Context, passID id.PassID, value any) error {
	return c.setJSON(ctx, passKeyPrefix+passID.String(), value, passTTL)
}

// GetCredential loads the cached current credential for a pass.
func (c *Cache) GetCredential(ctx context.Context, passID id.PassID, dest any) (bool, error) {
	return c.getJSON(ctx, credentialKeyPrefix+passID.String(), dest)
}

// SetCredential caches the current credential for a pass.
func (c *Cache) SetCredential(ctx context.Context, passID id.PassID, value any) error {
	return c.setJSON(ctx, credentialKeyPrefix+passID.String(), value, credentialTTL)
}

// Invalidate removes all cached entries for a pass. Called after every
// terminal transition.
func (c *Cache) Invalidate(ctx context.Context, passID id.PassID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, passKeyPrefix+passID.String(), credentialKeyPrefix+passID.String()).Err()
}
