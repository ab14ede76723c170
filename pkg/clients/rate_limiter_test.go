package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "burst exhausted")

	allowed, blocked := rl.Stats()
	assert.Equal(t, int64(2), allowed)
	assert.Equal(t, int64(1), blocked)
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	rl := NewRateLimiter(0.5, 0)
	assert.True(t, rl.Allow(), "burst defaults to at least one")
}

func TestRateLimiterWaitCanceled(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.Error(t, err)
}

func TestRateLimiterSetRate(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.SetRate(1000)
	rl.SetBurst(100)

	for i := 0; i < 50; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d blocked after raising the rate", i)
		}
	}
}
