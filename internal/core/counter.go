package core

import (
	"fmt"
	"math"
	"sync"

	"estatecore/pkg/domain"
)

// Counter issues identifiers from a durable cell. Every id it returns is
// strictly greater than any id it returned before across all entity kinds,
// except an id handed back through release.
type Counter struct {
	mu   sync.Mutex
	cell domain.Cell
}

// NewCounter wraps cell. A fresh cell holds zero, so the first id is 1.
func NewCounter(cell domain.Cell) *Counter {
	return &Counter{cell: cell}
}

// NextID persists current+1 and returns it.
func (c *Counter) NextID() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.cell.Get()
	if err != nil {
		return 0, fmt.Errorf("read id counter: %w", err)
	}
	if current == math.MaxUint64 {
		return 0, domain.ErrCounterExhausted
	}
	next := current + 1
	if err := c.cell.Set(next); err != nil {
		return 0, fmt.Errorf("persist id counter: %w", err)
	}
	return next, nil
}

// Current returns the last issued id, or zero if none was issued.
func (c *Counter) Current() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cell.Get()
}

// release hands id back when it was the most recently issued value and the
// record it was issued for could not be written. This is the one place the
// counter moves down: the released id was never attached to a stored record,
// so every id that is visible in the store stays unique and ids of stored or
// deleted records are never reissued. A create that fails therefore leaves
// the counter as if it had not run.
func (c *Counter) release(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.cell.Get()
	if err != nil {
		return err
	}
	if current != id || id == 0 {
		return nil
	}
	return c.cell.Set(id - 1)
}

// advanceTo raises the counter to at least value. It never lowers it.
func (c *Counter) advanceTo(value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.cell.Get()
	if err != nil {
		return err
	}
	if value <= current {
		return nil
	}
	return c.cell.Set(value)
}
