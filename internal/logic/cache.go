package logic

import "time"

// Cache holds the most recent successful reading for fallback use.
// Not safe for concurrent use; only the control loop touches it.
type Cache struct {
	ttl     time.Duration
	reading Reading
	has     bool
}

// NewCache creates an empty cache whose entries stay usable for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Record stores r, replacing any previous reading.
func (c *Cache) Record(r Reading) {
	c.reading = r
	c.has = true
}

// Get returns the cached reading if it is still usable at now.
// The TTL boundary is inclusive. A stale entry is kept, only reported as missing.
func (c *Cache) Get(now time.Time) (Reading, bool) {
	if !c.has {
		return Reading{}, false
	}
	if c.reading.Age(now) > c.ttl {
		return Reading{}, false
	}
	return c.reading, true
}

// Peek returns the cached reading regardless of age.
func (c *Cache) Peek() (Reading, bool) {
	return c.reading, c.has
}
