package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(ceiling int, window time.Duration) (*Limiter, *time.Time) {
	l := NewLimiter(ceiling, window)
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_UnderCeiling(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d should be admitted", i+1)
	}
}

func TestAllow_DeniesOverCeiling(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	// 5 submissions within 10 seconds all succeed
	for i := 0; i < 5; i++ {
		*now = now.Add(2 * time.Second)
		assert.True(t, l.Allow("10.0.0.1"))
	}

	// The 6th within the same window is denied
	assert.False(t, l.Allow("10.0.0.1"))

	// After the window has passed, admission resumes
	*now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestAllow_PerClientIsolation(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestAllow_SlidingWindow(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)

	assert.True(t, l.Allow("10.0.0.1"))
	*now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// The first admission slides out of the window; one slot frees up
	*now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestPurgeIdle(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	assert.True(t, l.Allow("10.0.0.1"))
	*now = now.Add(2 * time.Hour)
	assert.True(t, l.Allow("10.0.0.2"))

	purged := l.PurgeIdle()
	assert.Equal(t, 1, purged)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.Equal(t, 5, l.Ceiling())
	assert.Equal(t, time.Minute, l.window)
}
