package testutil

import (
	"fmt"
	"sync"
	"time"
)

// SessionEpoch is the instant FixedClock starts at.
var SessionEpoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock stamps sessions with deterministic times. A stepping clock moves
// forward by its step after every reading, so a session that opens and
// finishes within one capture gets distinct created and finished times.
// Safe for concurrent use.
type StubClock struct {
	mu    sync.Mutex
	now   time.Time
	step  time.Duration
	reads int
}

// NewStubClock creates a clock that stays at t until advanced.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// NewSteppingClock creates a clock at start that moves by step on each Now.
func NewSteppingClock(start time.Time, step time.Duration) *StubClock {
	return &StubClock{now: start, step: step}
}

// FixedClock returns a StubClock set to SessionEpoch.
func FixedClock() *StubClock {
	return NewStubClock(SessionEpoch)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	c.reads++
	return t
}

// Advance moves the clock forward by d without counting as a reading.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reads reports how many times Now has been called.
func (c *StubClock) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// StubIDGenerator hands out session IDs "session-1", "session-2", and so on.
type StubIDGenerator struct {
	mu     sync.Mutex
	issued []string
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("session-%d", len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns every ID handed out so far, oldest first.
func (g *StubIDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
