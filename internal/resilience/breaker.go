package resilience

import (
	"sync"
	"time"
)

// CircuitBreaker tracks consecutive failures per language driver; after a
// threshold it short-circuits further retries for a cooldown window, per
// §4.5.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	consecutive int
	openedAt    time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive++
	if c.consecutive >= c.threshold && c.openedAt.IsZero() {
		c.openedAt = time.Now()
	}
}

func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive = 0
	c.openedAt = time.Time{}
}

// Open reports whether the breaker is currently short-circuiting. Once the
// cooldown window elapses, the breaker resets itself (half-open probing is
// left to the next call succeeding or failing normally).
func (c *CircuitBreaker) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openedAt.IsZero() {
		return false
	}
	if time.Since(c.openedAt) >= c.cooldown {
		c.consecutive = 0
		c.openedAt = time.Time{}
		return false
	}
	return true
}

// Registry keeps one CircuitBreaker per language driver key.
type Registry struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{threshold: threshold, cooldown: cooldown, breakers: make(map[string]*CircuitBreaker)}
}

func (r *Registry) For(driver string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[driver]
	if !ok {
		cb = NewCircuitBreaker(r.threshold, r.cooldown)
		r.breakers[driver] = cb
	}
	return cb
}
