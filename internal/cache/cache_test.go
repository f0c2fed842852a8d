package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbinjamal/travelhub/internal/cache"
)

func newTestStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewStore(client), mr
}

func TestStore_SetAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetEx(ctx, "hotel_reviews:42", time.Hour, []byte(`{"score":9.1}`)))

	got, err := s.Get(ctx, "hotel_reviews:42")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"score":9.1}`), got)
}

func TestStore_Get_Miss(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got, "cache miss should return nil, nil")
}

func TestStore_TTLExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetEx(ctx, "airport_info:paris", time.Hour, []byte(`"CDG"`)))

	mr.FastForward(2 * time.Hour)

	got, err := s.Get(ctx, "airport_info:paris")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry should read as a miss")
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetEx(ctx, "exchange_rates:BHD", time.Hour, []byte(`{}`)))
	require.NoError(t, s.Delete(ctx, "exchange_rates:BHD"))

	got, err := s.Get(ctx, "exchange_rates:BHD")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Delete_AbsentKey(t *testing.T) {
	s, _ := newTestStore(t)

	assert.NoError(t, s.Delete(context.Background(), "never-written"))
}
