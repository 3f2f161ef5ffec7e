package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "chatpro")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-valid-url", 100, time.Minute)
	assert.Error(t, err)
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter(fmt.Sprintf("redis://%s/0", srv.Addr()), 3, time.Minute)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "chatpro")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "chatpro")
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit should be rejected")

	// Providers are limited independently.
	allowed, err = limiter.Allow(ctx, "echo")
	require.NoError(t, err)
	assert.True(t, allowed)
}
