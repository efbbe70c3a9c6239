package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

// Cell wraps a self-referential field value. An eager cell holds a value
// computed at construction; a lazy cell defers its computation until the
// first Force and memoizes the result. Lazy cells are the engine's support
// for unbounded, self-referential structures that would never terminate if
// eagerly expanded.
type Cell struct {
	id string

	mu      sync.Mutex
	value   interface{}
	forced  bool
	compute func() (interface{}, error)

	events *telemetry.EventPublisher
}

// EagerCell wraps an already-computed value. Force is O(1) with no side
// effects.
func EagerCell(value interface{}) *Cell {
	return &Cell{
		id:     uuid.New().String(),
		value:  value,
		forced: true,
	}
}

// LazyCell stores a computation unevaluated. The computation runs at most
// once, on the first Force; concurrent first-forces serialize so it runs
// exactly once.
func LazyCell(compute func() (interface{}, error)) *Cell {
	return &Cell{
		id:      uuid.New().String(),
		compute: compute,
	}
}

// WithPublisher attaches an event publisher so forces emit lazy.forced
// events. Returns the cell for chaining.
func (c *Cell) WithPublisher(events *telemetry.EventPublisher) *Cell {
	c.events = events
	return c
}

// ID returns the cell's unique identifier.
func (c *Cell) ID() string {
	return c.id
}

// Forced reports whether the cell holds a computed value.
func (c *Cell) Forced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced
}

// Peek returns the memoized value without triggering computation. The second
// return is false while a lazy cell is still pending.
func (c *Cell) Peek() (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.forced {
		return nil, false
	}
	return c.value, true
}

// Force evaluates the cell. For an eager or already-forced cell it returns
// the memoized value immediately. For a pending lazy cell it runs the
// computation under the cell lock: of two concurrent first-forces exactly
// one runs the computation, the other blocks and receives the memoized
// result.
//
// A computation that fails leaves the cell pending rather than poisoned, so
// a later Force retries it; the failure surfaces as a computation error.
func (c *Cell) Force() (interface{}, error) {
	c.mu.Lock()

	if c.forced {
		value := c.value
		c.mu.Unlock()
		return value, nil
	}

	start := time.Now()
	value, err := c.compute()
	if err != nil {
		c.mu.Unlock()
		return nil, NewComputationError("lazy computation failed", err)
	}

	c.value = value
	c.forced = true
	// The deferred computation is dropped once forced; only the result is
	// retained.
	c.compute = nil
	events := c.events
	c.mu.Unlock()

	// Published outside the cell lock so a subscriber touching the cell
	// cannot deadlock.
	_ = events.PublishLazyForced(c.id, time.Since(start))
	return value, nil
}
