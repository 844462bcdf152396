package memory

import (
	"context"
	"fmt"
	"strings"
)

// Backend drivers accepted by NewStore.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a record backend.
type Options struct {
	Driver      string
	DBPath      string
	DatabaseURL string
}

// NewStore opens the backend named by opts.Driver (sqlite when empty).
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		return NewSQLiteStore(opts.DBPath)
	case DriverPostgres:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres driver requires a database url")
		}
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case DriverMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown memory driver %q", opts.Driver)
	}
}
