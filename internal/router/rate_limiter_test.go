package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(1), "message %d within burst", i)
	}
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "buckets are per connection")
	assert.Equal(t, 2, rl.Tracked())
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))

	rl.Forget(1)
	assert.Zero(t, rl.Tracked())
	assert.True(t, rl.Allow(1), "forgotten id starts with a full bucket")

	rl.Forget(42)
}
