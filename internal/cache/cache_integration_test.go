//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicamatics/queueskip/internal/cache"
	"github.com/musicamatics/queueskip/internal/credential"
	"github.com/musicamatics/queueskip/internal/pass/models"
	"github.com/musicamatics/queueskip/internal/platform/config"
	"github.com/musicamatics/queueskip/internal/platform/redis"
	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/testutil/containers"
)

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	rc := containers.NewRedisContainer(t)
	client, err := redis.New(config.RedisConfig{
		URL:          rc.URL,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client)
}

func TestCachePassRoundTrip(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	passID := id.NewPassID()

	p := &models.Pass{
		ID:     passID,
		UserID: id.NewUserID(),
		Status: models.StatusActive,
	}
	require.NoError(t, c.SetPass(ctx, passID, p))

	var got models.Pass
	hit, err := c.GetPass(ctx, passID, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.UserID, got.UserID)
}

func TestCacheMissOnUnknownPass(t *testing.T) {
	c := newCache(t)

	var got models.Pass
	hit, err := c.GetPass(context.Background(), id.NewPassID(), &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheInvalidateDropsBothEntries(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	passID := id.NewPassID()

	require.NoError(t, c.SetPass(ctx, passID, &models.Pass{ID: passID}))
	require.NoError(t, c.SetCredential(ctx, passID, &credential.Credential{Token: "tok"}))

	require.NoError(t, c.Invalidate(ctx, passID))

	var p models.Pass
	hit, err := c.GetPass(ctx, passID, &p)
	require.NoError(t, err)
	assert.False(t, hit)

	var cred credential.Credential
	hit, err = c.GetCredential(ctx, passID, &cred)
	require.NoError(t, err)
	assert.False(t, hit)
}
