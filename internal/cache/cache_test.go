package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-panel/internal/domain"
)

func TestNew_EmptyAddrIsNoop(t *testing.T) {
	s := New("", time.Minute, nil)
	_, ok := s.(Noop)
	require.True(t, ok)

	ctx := context.Background()
	got, err := s.Lines(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.Hit)
	assert.Nil(t, got.Lines)

	basketID, claimed, err := s.ClaimSubmission(ctx, "sub-1", "b-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "b-1", basketID)
}

func TestLinesScope(t *testing.T) {
	assert.Equal(t, "all", linesScope(""))
	assert.Equal(t, "p1", linesScope("p1"))
}

func TestRedis_LinesAndClaims(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	s := NewRedis(rdb, time.Minute, nil)

	productID := uuid.NewString()
	miss, err := s.Lines(ctx, productID)
	require.NoError(t, err)
	assert.False(t, miss.Hit)

	basketID := "cart-1"
	require.NoError(t, s.SetLines(ctx, productID, miss.Version, []domain.OrderLine{{ID: "l1", BasketID: &basketID, Quantity: 1}}))
	hit, err := s.Lines(ctx, productID)
	require.NoError(t, err)
	require.True(t, hit.Hit)
	require.Len(t, hit.Lines, 1)
	assert.Equal(t, "cart-1", *hit.Lines[0].BasketID)

	require.NoError(t, s.InvalidateLines(ctx))
	after, err := s.Lines(ctx, productID)
	require.NoError(t, err)
	assert.False(t, after.Hit)
	assert.Greater(t, after.Version, miss.Version)

	sub := uuid.NewString()
	got, claimed, err := s.ClaimSubmission(ctx, sub, "basket-a")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "basket-a", got)

	got, claimed, err = s.ClaimSubmission(ctx, sub, "basket-b")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "basket-a", got)

	require.NoError(t, s.ReleaseSubmission(ctx, sub))
	_, claimed, err = s.ClaimSubmission(ctx, sub, "basket-c")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRedis_SetLinesUnderRetiredVersionIsDropped(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	s := NewRedis(rdb, time.Minute, nil)

	productID := uuid.NewString()
	miss, err := s.Lines(ctx, productID)
	require.NoError(t, err)
	require.False(t, miss.Hit)

	// a write lands and invalidates while the reader is still fetching
	require.NoError(t, s.InvalidateLines(ctx))

	stale := []domain.OrderLine{{ID: "a", Quantity: 1}}
	require.NoError(t, s.SetLines(ctx, productID, miss.Version, stale))

	got, err := s.Lines(ctx, productID)
	require.NoError(t, err)
	assert.False(t, got.Hit)
}
