package core

import (
	"errors"
	"math"
	"testing"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

type failingCell struct {
	value   uint64
	failGet bool
	failSet bool
}

func (c *failingCell) Get() (uint64, error) {
	if c.failGet {
		return 0, errors.New("get failed")
	}
	return c.value, nil
}

func (c *failingCell) Set(v uint64) error {
	if c.failSet {
		return errors.New("set failed")
	}
	c.value = v
	return nil
}

func TestCounterStartsAtOne(t *testing.T) {
	c := NewCounter(&memory.Cell{})
	for want := uint64(1); want <= 3; want++ {
		got, err := c.NextID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if cur, _ := c.Current(); cur != 3 {
		t.Fatalf("expected current 3, got %d", cur)
	}
}

func TestCounterPersistFailureIsReturned(t *testing.T) {
	cell := &failingCell{value: 5, failSet: true}
	c := NewCounter(cell)
	if _, err := c.NextID(); err == nil {
		t.Fatalf("expected persistence error")
	}
	if cell.value != 5 {
		t.Fatalf("failed persist must not change the cell, got %d", cell.value)
	}
	cell.failSet, cell.failGet = false, true
	if _, err := c.NextID(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestCounterExhausted(t *testing.T) {
	cell := &failingCell{value: math.MaxUint64}
	c := NewCounter(cell)
	if _, err := c.NextID(); !errors.Is(err, domain.ErrCounterExhausted) {
		t.Fatalf("expected ErrCounterExhausted, got %v", err)
	}
}

func TestCounterReleaseOnlyLatest(t *testing.T) {
	cell := &failingCell{}
	c := NewCounter(cell)
	first, _ := c.NextID()
	second, _ := c.NextID()
	if err := c.release(first); err != nil {
		t.Fatalf("release: %v", err)
	}
	if cell.value != second {
		t.Fatalf("releasing a stale id must be a no-op, got %d", cell.value)
	}
	if err := c.release(second); err != nil {
		t.Fatalf("release: %v", err)
	}
	if cell.value != first {
		t.Fatalf("expected counter back at %d, got %d", first, cell.value)
	}
}

func TestCounterAdvanceNeverLowers(t *testing.T) {
	cell := &failingCell{value: 10}
	c := NewCounter(cell)
	_ = c.advanceTo(4)
	if cell.value != 10 {
		t.Fatalf("advance must not lower the counter, got %d", cell.value)
	}
	_ = c.advanceTo(12)
	if cell.value != 12 {
		t.Fatalf("expected 12, got %d", cell.value)
	}
}
