package backend

import (
	"context"

	"saldo/internal/auth"
	"saldo/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the wired backend, its session store and optional cleanup.
type Result struct {
	Backend  ledger.Backend
	Sessions auth.SessionStore
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath    string
	AMQPURL         string
	AMQPExchange    string
	AMQPExportQueue string
	AMQPDriftQueue  string
}

// Type selects the ledger implementation.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
