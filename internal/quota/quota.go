// Package quota enforces per-dependency daily call budgets. Counters reset
// lazily at the UTC midnight boundary; a cap of zero or below disables
// enforcement for that key.
package quota

import (
	"fmt"
	"sync"
	"time"
)

// Well-known counter keys for the external dependencies this process calls.
const (
	KeyMarket    = "market"
	KeyInference = "inference"
	KeyEmail     = "email"
)

// LimitError is returned when an increment would exceed a key's daily cap.
type LimitError struct {
	Key string
	Cap int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s daily limit reached (cap %d)", e.Key, e.Cap)
}

type counter struct {
	count   int
	resetAt time.Time
}

// Counters tracks daily usage per dependency key. It is safe for concurrent
// use and holds no persistent state: a restart starts the day fresh.
type Counters struct {
	mu       sync.Mutex
	caps     map[string]int
	counters map[string]*counter
	now      func() time.Time
}

// New creates Counters with the given per-key daily caps.
func New(caps map[string]int) *Counters {
	return &Counters{
		caps:     caps,
		counters: make(map[string]*counter, len(caps)),
		now:      time.Now,
	}
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock(caps map[string]int, now func() time.Time) *Counters {
	c := New(caps)
	c.now = now
	return c
}

// Touch consumes amount units for key. It must be called before the guarded
// external call; on *LimitError the caller must not perform the call.
func (c *Counters) Touch(key string, amount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cap, ok := c.caps[key]
	if !ok || cap <= 0 {
		return nil
	}

	ctr := c.fresh(key)
	if ctr.count+amount > cap {
		return &LimitError{Key: key, Cap: cap}
	}
	ctr.count += amount
	return nil
}

// Remaining reports headroom for key. Keys without an enforced cap report -1.
func (c *Counters) Remaining(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cap, ok := c.caps[key]
	if !ok || cap <= 0 {
		return -1
	}
	return cap - c.fresh(key).count
}

// fresh returns the counter for key, resetting it if the UTC day rolled over.
// Callers must hold mu.
func (c *Counters) fresh(key string) *counter {
	now := c.now()
	ctr, ok := c.counters[key]
	if !ok {
		ctr = &counter{resetAt: nextUTCMidnight(now)}
		c.counters[key] = ctr
	}
	if !now.Before(ctr.resetAt) {
		ctr.count = 0
		ctr.resetAt = nextUTCMidnight(now)
	}
	return ctr
}

func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
