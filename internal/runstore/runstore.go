// Package runstore selects the persistence driver for layout run history.
package runstore

import (
	"context"
	"fmt"

	"plantgrid/internal/infra/persistence/memory"
	"plantgrid/internal/infra/persistence/postgres"
	"plantgrid/internal/infra/persistence/sqlite"
	"plantgrid/internal/layout"
)

// Driver names a run store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store is a layout.RunStore that owns closable resources.
type Store interface {
	layout.RunStore
	Close() error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open returns the store for driver. dsn is the SQLite file path or the
// Postgres connection string; it is ignored for the memory driver.
func Open(ctx context.Context, driver Driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(dsn)
	case DriverPostgres:
		return postgres.NewStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}
