// Package ratelimit implements per-client sliding-window admission control.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// idleExpiry is how long a client key may sit with no recent
	// admissions before the janitor drops it
	idleExpiry = time.Hour
	// janitorInterval is how often idle client keys are purged
	janitorInterval = 10 * time.Minute
)

// Limiter admits or denies requests per client key using a sliding window
// of recent admission timestamps. State is in-memory only; it resets on
// process restart, which is an accepted tradeoff.
type Limiter struct {
	window  time.Duration
	ceiling int

	mu      sync.Mutex
	clients map[string][]time.Time
	now     func() time.Time
}

// NewLimiter creates a limiter allowing ceiling admissions per window
func NewLimiter(ceiling int, window time.Duration) *Limiter {
	if ceiling <= 0 {
		ceiling = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		window:  window,
		ceiling: ceiling,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records and admits a request for the client key unless the key has
// reached the ceiling within the current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.clients[key][:0]
	for _, t := range l.clients[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.ceiling {
		l.clients[key] = recent
		return false
	}

	l.clients[key] = append(recent, now)
	return true
}

// Ceiling returns the configured admissions-per-window limit
func (l *Limiter) Ceiling() int {
	return l.ceiling
}

// PurgeIdle drops client keys with no admissions in the last hour,
// bounding memory for long-running processes.
func (l *Limiter) PurgeIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleExpiry)
	purged := 0
	for key, stamps := range l.clients {
		active := false
		for _, t := range stamps {
			if t.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(l.clients, key)
			purged++
		}
	}
	return purged
}

// Start runs the idle-key janitor until ctx is cancelled
func (l *Limiter) Start(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if purged := l.PurgeIdle(); purged > 0 {
				logrus.WithField("purged_keys", purged).Debug("Purged idle rate limit entries")
			}
		case <-ctx.Done():
			return
		}
	}
}
