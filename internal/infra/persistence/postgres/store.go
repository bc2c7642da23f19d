// Package postgres provides a Postgres-backed PersistentStore that mirrors the
// in-memory semantics while writing every mutation through to the database.
package postgres

import (
	"context"
	"database/sql"
	"estatecore/internal/infra/persistence/sqlregions"
	"estatecore/pkg/domain"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/estatecore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var dialect = sqlregions.Dialect{
	Name:        "postgres",
	PayloadType: "BYTEA",
	Bind:        func(n int) string { return "$" + strconv.Itoa(n) },
}

// Store persists regions to Postgres.
type Store struct {
	*sqlregions.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	regions, err := sqlregions.Open(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: regions}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
