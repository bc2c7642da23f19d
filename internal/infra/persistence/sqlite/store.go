// Package sqlite provides the embedded SQLite PersistentStore.
package sqlite

import (
	"database/sql"
	"errors"
	"estatecore/internal/infra/persistence/sqlregions"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "estatecore.db"

var dialect = sqlregions.Dialect{
	Name:        "sqlite",
	PayloadType: "BLOB",
	Bind:        func(int) string { return "?" },
}

// Store persists regions to a single SQLite file.
type Store struct {
	*sqlregions.Store
	path string
}

// NewStore opens (creating if needed) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)
	regions, err := sqlregions.Open(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: regions, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
