package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeerRateLimiter_SlidingWindow(t *testing.T) {
	req := require.New(t)
	rl := NewPeerRateLimiter(2, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	req.True(rl.Allow("u2"))
	req.True(rl.Allow("u2"))
	req.False(rl.Allow("u2"))
	req.True(rl.Allow("u3"), "limits are per peer")

	now = now.Add(1500 * time.Millisecond)
	req.True(rl.Allow("u2"))

	rl.Forget("u2")
	req.True(rl.Allow("u2"))
	req.False(rl.Allow("u2"))
}

func TestPeerRateLimiter_DisabledAllowsAll(t *testing.T) {
	req := require.New(t)
	rl := NewPeerRateLimiter(0, time.Second)
	req.Nil(rl)
	for i := 0; i < 100; i++ {
		req.True(rl.Allow("u2"))
	}
	rl.Forget("u2")
}
