// Package memory implements an in-process PersistentStore. Regions are
// B-trees keyed by record id; counter cells are plain values. The SQLite and
// Postgres stores reuse these structures as their read path.
package memory

import (
	"estatecore/pkg/domain"
	"sync"

	"github.com/google/btree"
)

// Compile-time contract assertions.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.OrderedMap      = (*OrderedMap)(nil)
	_ domain.Cell            = (*Cell)(nil)
)

const btreeDegree = 32

type entry struct {
	key   uint64
	value []byte
}

func lessEntry(a, b entry) bool { return a.key < b.key }

// OrderedMap is a concurrency-safe B-tree region.
type OrderedMap struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
}

// NewOrderedMap returns an empty region.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{tree: btree.NewG(btreeDegree, lessEntry)}
}

// Get returns a copy of the value stored under key.
func (m *OrderedMap) Get(key uint64) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tree.Get(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(e.value), true, nil
}

// Insert stores a copy of value under key.
func (m *OrderedMap) Insert(key uint64, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(entry{key: key, value: cloneBytes(value)})
	return nil
}

// Remove deletes key and returns the previous value.
func (m *OrderedMap) Remove(key uint64) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tree.Delete(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Ascend iterates a point-in-time copy of the region so fn may call back
// into the map.
func (m *OrderedMap) Ascend(fn func(key uint64, value []byte) bool) error {
	m.mu.RLock()
	snapshot := m.tree.Clone()
	m.mu.RUnlock()
	snapshot.Ascend(func(e entry) bool {
		return fn(e.key, cloneBytes(e.value))
	})
	return nil
}

// Len returns the number of stored entries.
func (m *OrderedMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Cell is a concurrency-safe scalar.
type Cell struct {
	mu    sync.Mutex
	value uint64
}

// Get returns the current value.
func (c *Cell) Get() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

// Set replaces the current value.
func (c *Cell) Set(value uint64) error {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
	return nil
}

// Store hands out lazily created regions and cells.
type Store struct {
	mu      sync.Mutex
	cells   map[domain.RegionID]*Cell
	regions map[domain.RegionID]*OrderedMap
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		cells:   make(map[domain.RegionID]*Cell),
		regions: make(map[domain.RegionID]*OrderedMap),
	}
}

// Counter returns the cell for id, creating it at zero on first use.
func (s *Store) Counter(id domain.RegionID) (domain.Cell, error) {
	return s.CellFor(id), nil
}

// Region returns the ordered map for id, creating it on first use.
func (s *Store) Region(id domain.RegionID) (domain.OrderedMap, error) {
	return s.MapFor(id), nil
}

// CellFor is Counter with the concrete type, for backends layering on Store.
func (s *Store) CellFor(id domain.RegionID) *Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cells[id]
	if !ok {
		c = &Cell{}
		s.cells[id] = c
	}
	return c
}

// MapFor is Region with the concrete type, for backends layering on Store.
func (s *Store) MapFor(id domain.RegionID) *OrderedMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.regions[id]
	if !ok {
		m = NewOrderedMap()
		s.regions[id] = m
	}
	return m
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
