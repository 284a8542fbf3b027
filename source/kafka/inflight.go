package kafka

import "sync"

// inFlight caps the number of frames emitted but not yet acknowledged.
type inFlight struct {
	capacity int64

	mu     sync.Mutex
	tokens int64
}

func newInFlight(capacity int64) *inFlight {
	return &inFlight{capacity: capacity, tokens: capacity}
}

func (c *inFlight) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == 0 {
		return false
	}
	c.tokens--
	return true
}

func (c *inFlight) Release() {
	c.mu.Lock()
	if c.tokens < c.capacity {
		c.tokens++
	}
	c.mu.Unlock()
}

// Reset returns every token, e.g. after a rebalance dropped the pending set.
func (c *inFlight) Reset() {
	c.mu.Lock()
	c.tokens = c.capacity
	c.mu.Unlock()
}
