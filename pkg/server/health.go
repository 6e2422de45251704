package server

import (
	"sync"
	"time"
)

// Health is the only process-wide state the mock carries: a health flag
// toggled by the healthy request attribute, and a monotonic deadline
// before which the node silently drops all inbound traffic. Both are
// guarded by a single mutex; a reader observes the most recent write.
type Health struct {
	mu                sync.Mutex
	healthy           bool
	unresponsiveUntil time.Time
}

// NewHealth returns a Health that starts healthy and responsive.
func NewHealth() *Health {
	return &Health{healthy: true}
}

// Healthy reports the current health flag.
func (h *Health) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

// SetHealthy sets the health flag.
func (h *Health) SetHealthy(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = v
}

// Responsive reports whether the unresponsive window has passed.
func (h *Health) Responsive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !time.Now().Before(h.unresponsiveUntil)
}

// SetUnresponsiveFor starts an unresponsive window of duration d from now.
func (h *Health) SetUnresponsiveFor(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unresponsiveUntil = time.Now().Add(d)
}
