package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/psantana5/ytconvert/pkg/models"
)

// PostgreSQLStore implements Store using PostgreSQL
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore creates a new PostgreSQL store
func NewPostgreSQLStore(config Config) (*PostgreSQLStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}

	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}

	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	} else {
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist
func (s *PostgreSQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversions (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		format TEXT NOT NULL,
		quality TEXT,
		title TEXT,
		file_name TEXT,
		state TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		exit_reason TEXT,
		bytes BIGINT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		error TEXT,
		client_ip TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at);
	CREATE INDEX IF NOT EXISTS idx_conversions_state ON conversions(state);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveConversion inserts or updates a record
func (s *PostgreSQLStore) SaveConversion(rec *models.ConversionRecord) error {
	query := `
	INSERT INTO conversions (
		id, source, format, quality, title, file_name, state, exit_code,
		exit_reason, bytes, duration_ms, error, client_ip, created_at, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		exit_code = EXCLUDED.exit_code,
		exit_reason = EXCLUDED.exit_reason,
		bytes = EXCLUDED.bytes,
		duration_ms = EXCLUDED.duration_ms,
		error = EXCLUDED.error,
		completed_at = EXCLUDED.completed_at
	`
	_, err := s.db.Exec(query,
		rec.ID, rec.Source, string(rec.Format), rec.Quality, rec.Title, rec.FileName,
		string(rec.State), rec.ExitCode, rec.ExitReason, rec.Bytes, rec.DurationMs,
		rec.Error, rec.ClientIP, rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

const postgresSelect = `
	SELECT id, source, format, quality, title, file_name, state, exit_code,
		exit_reason, bytes, duration_ms, error, client_ip, created_at, completed_at
	FROM conversions`

// GetConversion retrieves a record by id
func (s *PostgreSQLStore) GetConversion(id string) (*models.ConversionRecord, error) {
	row := s.db.QueryRow(postgresSelect+` WHERE id = $1`, id)
	rec, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListConversions returns up to limit records, newest first
func (s *PostgreSQLStore) ListConversions(limit int) ([]*models.ConversionRecord, error) {
	rows, err := s.db.Query(postgresSelect+` ORDER BY created_at DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversionRecord
	for rows.Next() {
		rec, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteConversionsBefore drops records created before cutoff
func (s *PostgreSQLStore) DeleteConversionsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM conversions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies database connectivity
func (s *PostgreSQLStore) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Vacuum runs VACUUM ANALYZE on the conversions table
func (s *PostgreSQLStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM ANALYZE conversions")
	return err
}
