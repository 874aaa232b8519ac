package database

import (
	"context"
	"testing"
	"time"

	"subscription-sync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateStore(client), mr
}

func testState(userID string) *models.SubscriptionState {
	purchased := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.SubscriptionState{
		UserID:            userID,
		IsSubscribed:      true,
		ProductID:         "weekly.sub",
		LastPremiumPlan:   "weekly.sub",
		LastPurchaseDate:  purchased,
		FirstPurchaseDate: purchased.Add(-30 * 24 * time.Hour),
		ExpirationDate:    purchased.Add(7 * 24 * time.Hour),
		StatusMessage:     "active",
	}
}

func TestRedisStateStoreLoadMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	state, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.Nil(t, state)
}

func TestRedisStateStoreSaveAndLoad(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	in := testState("user-1")

	require.NoError(t, store.Save(ctx, in))
	assert.False(t, in.UpdatedAt.IsZero())

	key := stateKey("user-1")
	assert.Equal(t, "true", mr.HGet(key, fieldIsSubscribed))
	assert.Equal(t, "weekly.sub", mr.HGet(key, fieldProductID))
	assert.Equal(t, "2024-03-17T12:00:00Z", mr.HGet(key, fieldExpirationDate))

	out, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, in.SameContent(*out))
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}

func TestRedisStateStoreOverwrites(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testState("user-1")))

	expired := testState("user-1")
	expired.IsSubscribed = false
	expired.StatusMessage = "expired"
	require.NoError(t, store.Save(ctx, expired))

	out, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, out.IsSubscribed)
	assert.Equal(t, "expired", out.StatusMessage)
	assert.Equal(t, "weekly.sub", out.LastPremiumPlan)
}

func TestRedisStateStoreCorruptFields(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testState("bad-flag")))
	mr.HSet(stateKey("bad-flag"), fieldIsSubscribed, "maybe")
	_, err := store.Load(ctx, "bad-flag")
	assert.ErrorContains(t, err, fieldIsSubscribed)

	require.NoError(t, store.Save(ctx, testState("bad-date")))
	mr.HSet(stateKey("bad-date"), fieldExpirationDate, "next tuesday")
	_, err = store.Load(ctx, "bad-date")
	assert.ErrorContains(t, err, fieldExpirationDate)
}

func TestRedisStateStoreServerError(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.SetError("ERR redis unavailable")

	_, err := store.Load(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)

	assert.Error(t, store.Save(context.Background(), testState("user-1")))
}
