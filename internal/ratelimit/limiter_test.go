package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUpToMax(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	assert.True(t, l.Allow("198.51.100.1"))
	assert.True(t, l.Allow("198.51.100.1"))
	assert.True(t, l.Allow("198.51.100.1"))
	assert.False(t, l.Allow("198.51.100.1"))
}

func TestLimiter_WindowReset(t *testing.T) {
	current := time.Now()
	l := NewLimiter(1, 100*time.Millisecond)
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow("198.51.100.1"))
	assert.False(t, l.Allow("198.51.100.1"))

	current = current.Add(150 * time.Millisecond)
	assert.True(t, l.Allow("198.51.100.1"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	assert.True(t, l.Allow("198.51.100.1"))
	assert.False(t, l.Allow("198.51.100.1"))
	assert.True(t, l.Allow("198.51.100.2"))
}

func TestLimiter_Remaining(t *testing.T) {
	l := NewLimiter(2, time.Minute)

	assert.Equal(t, 2, l.Remaining("198.51.100.1"))
	l.Allow("198.51.100.1")
	assert.Equal(t, 1, l.Remaining("198.51.100.1"))
	l.Allow("198.51.100.1")
	assert.Equal(t, 0, l.Remaining("198.51.100.1"))
}

func TestLimiter_Prune(t *testing.T) {
	current := time.Now()
	l := NewLimiter(5, 100*time.Millisecond)
	l.now = func() time.Time { return current }

	l.Allow("198.51.100.1")
	l.Allow("198.51.100.2")
	assert.Equal(t, 0, l.Prune())

	current = current.Add(200 * time.Millisecond)
	assert.Equal(t, 2, l.Prune())
	assert.Empty(t, l.buckets)
}
