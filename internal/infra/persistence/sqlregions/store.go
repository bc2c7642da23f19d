// Package sqlregions persists PersistentStore regions to a SQL database. Each
// ordered-map region is a table of (id, payload) rows and every counter cell
// is a row of a shared counters table. Reads are served from an in-memory
// mirror hydrated when a region is first opened; writes go to the database
// first and reach the mirror only after the statement succeeds.
package sqlregions

import (
	"database/sql"
	"errors"
	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
	"fmt"
	"sync"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// CountersTable holds one row per counter cell.
const CountersTable = "estate_counters"

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name        string
	PayloadType string
	// Bind returns the placeholder for the n-th (1-based) statement argument.
	Bind func(n int) string
}

// TableName returns the table backing an ordered-map region.
func TableName(id domain.RegionID) string {
	return fmt.Sprintf("estate_region_%d", id)
}

// Store is a write-through PersistentStore over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mirror  *memory.Store

	mu       sync.Mutex
	counters map[domain.RegionID]uint64
	cells    map[domain.RegionID]*cell
	regions  map[domain.RegionID]*region
}

// Open prepares the counters table and loads persisted counter values.
func Open(db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlregions: nil db")
	}
	if dialect.Bind == nil {
		return nil, fmt.Errorf("sqlregions: dialect %q has no placeholder binder", dialect.Name)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		region INTEGER PRIMARY KEY,
		value BIGINT NOT NULL
	)`, CountersTable)
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create %s table: %w", CountersTable, err)
	}
	s := &Store{
		db:       db,
		dialect:  dialect,
		mirror:   memory.NewStore(),
		counters: make(map[domain.RegionID]uint64),
		cells:    make(map[domain.RegionID]*cell),
		regions:  make(map[domain.RegionID]*region),
	}
	if err := s.loadCounters(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadCounters() error {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT region, value FROM %s`, CountersTable))
	if err != nil {
		return fmt.Errorf("select counters: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, value int64
		if err := rows.Scan(&id, &value); err != nil {
			return fmt.Errorf("scan counter: %w", err)
		}
		s.counters[domain.RegionID(id)] = uint64(value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate counters: %w", err)
	}
	return nil
}

// Counter returns the durable cell for id.
func (s *Store) Counter(id domain.RegionID) (domain.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cells[id]; ok {
		return c, nil
	}
	mc := s.mirror.CellFor(id)
	if err := mc.Set(s.counters[id]); err != nil {
		return nil, err
	}
	c := &cell{store: s, id: id, mirror: mc}
	s.cells[id] = c
	return c, nil
}

// Region returns the durable ordered map for id, creating its table and
// hydrating the mirror on first use.
func (s *Store) Region(id domain.RegionID) (domain.OrderedMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.regions[id]; ok {
		return r, nil
	}
	table := TableName(id)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT PRIMARY KEY,
		payload %s NOT NULL
	)`, table, s.dialect.PayloadType)
	if _, err := s.db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create %s table: %w", table, err)
	}
	mm := s.mirror.MapFor(id)
	if err := s.hydrate(table, mm); err != nil {
		return nil, err
	}
	r := &region{store: s, table: table, mirror: mm}
	s.regions[id] = r
	return r, nil
}

func (s *Store) hydrate(table string, mm *memory.OrderedMap) error {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT id, payload FROM %s`, table))
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if err := mm.Insert(uint64(id), payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

type cell struct {
	store  *Store
	id     domain.RegionID
	mirror *memory.Cell
}

func (c *cell) Get() (uint64, error) { return c.mirror.Get() }

func (c *cell) Set(value uint64) error {
	bind := c.store.dialect.Bind
	stmt := fmt.Sprintf(`INSERT INTO %s (region, value) VALUES (%s, %s) ON CONFLICT (region) DO UPDATE SET value = excluded.value`,
		CountersTable, bind(1), bind(2))
	if _, err := c.store.db.Exec(stmt, int64(c.id), int64(value)); err != nil {
		return fmt.Errorf("persist counter %d: %w", c.id, err)
	}
	return c.mirror.Set(value)
}

type region struct {
	store  *Store
	table  string
	mirror *memory.OrderedMap
}

func (r *region) Get(key uint64) ([]byte, bool, error) { return r.mirror.Get(key) }

func (r *region) Insert(key uint64, value []byte) error {
	bind := r.store.dialect.Bind
	stmt := fmt.Sprintf(`INSERT INTO %s (id, payload) VALUES (%s, %s) ON CONFLICT (id) DO UPDATE SET payload = excluded.payload`,
		r.table, bind(1), bind(2))
	if _, err := r.store.db.Exec(stmt, int64(key), value); err != nil {
		return fmt.Errorf("upsert %s/%d: %w", r.table, key, err)
	}
	return r.mirror.Insert(key, value)
}

func (r *region) Remove(key uint64) ([]byte, bool, error) {
	if _, ok, err := r.mirror.Get(key); err != nil || !ok {
		return nil, false, err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, r.table, r.store.dialect.Bind(1))
	if _, err := r.store.db.Exec(stmt, int64(key)); err != nil {
		return nil, false, fmt.Errorf("delete %s/%d: %w", r.table, key, err)
	}
	return r.mirror.Remove(key)
}

func (r *region) Ascend(fn func(key uint64, value []byte) bool) error {
	return r.mirror.Ascend(fn)
}

func (r *region) Len() int { return r.mirror.Len() }
