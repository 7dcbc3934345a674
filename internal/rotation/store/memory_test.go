package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

func record(passID id.PassID, issued time.Time, ttl time.Duration) *Record {
	return &Record{
		ID:        uuid.NewString(),
		PassID:    passID,
		Token:     "tok-" + uuid.NewString(),
		TokenHash: "hash-" + uuid.NewString(),
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
	}
}

func TestCurrentReturnsMostRecentUnexpired(t *testing.T) {
	store := NewMemory()
	passID := id.NewPassID()
	now := time.Now()

	first := record(passID, now.Add(-time.Minute), 30*time.Second)
	second := record(passID, now, 30*time.Second)
	require.NoError(t, store.Record(context.Background(), first))
	require.NoError(t, store.Record(context.Background(), second))

	cur, err := store.Current(context.Background(), passID, now)
	require.NoError(t, err)
	assert.Equal(t, second.TokenHash, cur.TokenHash)
}

func TestCurrentNotFoundWhenAllExpired(t *testing.T) {
	store := NewMemory()
	passID := id.NewPassID()
	now := time.Now()

	require.NoError(t, store.Record(context.Background(), record(passID, now.Add(-time.Minute), 30*time.Second)))

	_, err := store.Current(context.Background(), passID, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCurrentNotFoundForUnknownPass(t *testing.T) {
	store := NewMemory()
	_, err := store.Current(context.Background(), id.NewPassID(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGCExpiredKeepsLiveRecords(t *testing.T) {
	store := NewMemory()
	passID := id.NewPassID()
	now := time.Now()

	require.NoError(t, store.Record(context.Background(), record(passID, now.Add(-2*time.Minute), 30*time.Second)))
	require.NoError(t, store.Record(context.Background(), record(passID, now.Add(-time.Minute), 30*time.Second)))
	live := record(passID, now, 30*time.Second)
	require.NoError(t, store.Record(context.Background(), live))

	require.NoError(t, store.GCExpired(context.Background(), passID, now))
	assert.Equal(t, 1, store.Count(passID))

	cur, err := store.Current(context.Background(), passID, now)
	require.NoError(t, err)
	assert.Equal(t, live.TokenHash, cur.TokenHash)
}

func TestGCExpiredDropsEmptyPassEntry(t *testing.T) {
	store := NewMemory()
	passID := id.NewPassID()
	now := time.Now()

	require.NoError(t, store.Record(context.Background(), record(passID, now.Add(-time.Minute), 30*time.Second)))
	require.NoError(t, store.GCExpired(context.Background(), passID, now))
	assert.Equal(t, 0, store.Count(passID))
}
