package signaling

import (
	"sync"
	"time"

	"github.com/dkeye/meetlink/internal/domain"
)

// PeerRateLimiter caps how many envelopes one peer may send in a sliding window.
type PeerRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewPeerRateLimiter returns nil when limit or interval is not positive; a nil limiter
// allows everything.
func NewPeerRateLimiter(limit int, interval time.Duration) *PeerRateLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &PeerRateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *PeerRateLimiter) Allow(peer domain.UserID) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[peer]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[peer] = fresh
		return false
	}
	rl.history[peer] = append(fresh, now)
	return true
}

// Forget drops the history of a peer that left.
func (rl *PeerRateLimiter) Forget(peer domain.UserID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, peer)
	rl.mu.Unlock()
}
