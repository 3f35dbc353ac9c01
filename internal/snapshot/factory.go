package snapshot

import (
	"context"
	"fmt"
	"os"

	memoryindex "agrobridge/internal/infra/index/memory"
	postgresindex "agrobridge/internal/infra/index/postgres"
	sqliteindex "agrobridge/internal/infra/index/sqlite"
)

// NewMemoryIndex returns an in-memory metadata index suitable for tests.
func NewMemoryIndex() Index { return memoryindex.New() }

// OpenIndex selects a metadata index implementation using environment
// variables.
//
//	AGROBRIDGE_INDEX_DRIVER: memory|sqlite|postgres (default sqlite)
//	AGROBRIDGE_INDEX_SQLITE_PATH: database path when driver=sqlite
//	AGROBRIDGE_INDEX_POSTGRES_DSN: connection string when driver=postgres
func OpenIndex(ctx context.Context) (Index, error) {
	driver := os.Getenv("AGROBRIDGE_INDEX_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "memory":
		return memoryindex.New(), nil
	case "sqlite":
		return sqliteindex.Open(os.Getenv("AGROBRIDGE_INDEX_SQLITE_PATH"))
	case "postgres":
		return postgresindex.Open(ctx, os.Getenv("AGROBRIDGE_INDEX_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown index driver %s", driver)
	}
}
