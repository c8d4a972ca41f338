package store

import (
	"errors"
	"time"

	"github.com/psantana5/ytconvert/pkg/models"
)

// Store persists the conversion audit log.
// Memory, SQLite and PostgreSQL implement this interface.
type Store interface {
	SaveConversion(rec *models.ConversionRecord) error
	GetConversion(id string) (*models.ConversionRecord, error)
	// ListConversions returns newest first
	ListConversions(limit int) ([]*models.ConversionRecord, error)
	DeleteConversionsBefore(cutoff time.Time) (int64, error)

	// Lifecycle
	Close() error
	HealthCheck() error
	Vacuum() error
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // Connection string, or file path for sqlite

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Memory specific
	MaxRecords int
}

// DefaultListLimit applies when callers pass a non-positive limit
const DefaultListLimit = 50

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "sqlite", "sqlite3":
		path := config.DSN
		if path == "" {
			path = "convertd.db"
		}
		return NewSQLiteStore(path)
	case "memory", "":
		return NewMemoryStore(config.MaxRecords), nil
	default:
		return nil, ErrUnsupportedDatabase
	}
}

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrNotFound            = errors.New("conversion not found")
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
