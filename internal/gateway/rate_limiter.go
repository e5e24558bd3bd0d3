package gateway

import (
	"sync"
	"time"
)

// controlBucket throttles the control messages of one client. It holds up to
// Burst tokens and regains Burst tokens per RefillInterval.
type controlBucket struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	tokens  float64
	perSec  float64
	last    time.Time
	dropped int
	now     func() time.Time
}

func newControlBucket(cfg RateLimitConfig, now func() time.Time) *controlBucket {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &controlBucket{
		cfg:    cfg,
		tokens: float64(cfg.Burst),
		perSec: float64(cfg.Burst) / cfg.RefillInterval.Seconds(),
		last:   now(),
		now:    now,
	}
}

// take consumes one token. When none is left it records the drop and reports
// false along with the number of messages dropped so far.
func (b *controlBucket) take() (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.now()
	if elapsed := t.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(float64(b.cfg.Burst), b.tokens+elapsed*b.perSec)
	}
	b.last = t

	if b.tokens < 1 {
		b.dropped++
		return false, b.dropped
	}
	b.tokens--
	return true, b.dropped
}
