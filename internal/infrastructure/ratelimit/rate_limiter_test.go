package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustsAndRefills(t *testing.T) {
	bucket := NewTokenBucket(2, 1, 20*time.Millisecond)

	allowed, _ := bucket.Allow()
	assert.True(t, allowed)
	allowed, _ = bucket.Allow()
	assert.True(t, allowed)

	allowed, wait := bucket.Allow()
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))

	time.Sleep(25 * time.Millisecond)
	allowed, _ = bucket.Allow()
	assert.True(t, allowed)
}

func TestRateLimiterBurstPerAction(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 10; i++ {
		allowed, _ := rl.Allow("u1", ActionSendMessage)
		assert.True(t, allowed, "send %d should be allowed", i+1)
	}
	allowed, wait := rl.Allow("u1", ActionSendMessage)
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))

	// Other actions and other users keep their own buckets.
	allowed, _ = rl.Allow("u1", ActionCreateConversation)
	assert.True(t, allowed)
	allowed, _ = rl.Allow("u2", ActionSendMessage)
	assert.True(t, allowed)
}

func TestRateLimiterCreateConversationBurst(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 5; i++ {
		allowed, _ := rl.Allow("u1", ActionCreateConversation)
		assert.True(t, allowed)
	}
	allowed, _ := rl.Allow("u1", ActionCreateConversation)
	assert.False(t, allowed)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter()
	rl.Allow("u1", ActionSendMessage)

	rl.buckets["u1:"+ActionSendMessage].lastRefill = time.Now().Add(-2 * time.Hour)
	rl.Cleanup()

	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	assert.Empty(t, rl.buckets)
}
