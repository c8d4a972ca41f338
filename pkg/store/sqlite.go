package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/ytconvert/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the audit log
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// - _journal_mode=WAL: readers don't block the writer
	// - _busy_timeout=10000: wait up to 10 seconds when the database is locked
	// - _synchronous=NORMAL: safe with WAL, fewer fsyncs
	// - _txlock=immediate: take the write lock at transaction start
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
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
		bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		client_ip TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at);
	CREATE INDEX IF NOT EXISTS idx_conversions_state ON conversions(state);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveConversion inserts or replaces a record
func (s *SQLiteStore) SaveConversion(rec *models.ConversionRecord) error {
	query := `
	INSERT OR REPLACE INTO conversions (
		id, source, format, quality, title, file_name, state, exit_code,
		exit_reason, bytes, duration_ms, error, client_ip, created_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		rec.ID, rec.Source, string(rec.Format), rec.Quality, rec.Title, rec.FileName,
		string(rec.State), rec.ExitCode, rec.ExitReason, rec.Bytes, rec.DurationMs,
		rec.Error, rec.ClientIP, rec.CreatedAt.UTC(), rec.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

const sqliteSelect = `
	SELECT id, source, format, quality, title, file_name, state, exit_code,
		exit_reason, bytes, duration_ms, error, client_ip, created_at, completed_at
	FROM conversions`

// GetConversion retrieves a record by id
func (s *SQLiteStore) GetConversion(id string) (*models.ConversionRecord, error) {
	row := s.db.QueryRow(sqliteSelect+` WHERE id = ?`, id)
	rec, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListConversions returns up to limit records, newest first
func (s *SQLiteStore) ListConversions(limit int) ([]*models.ConversionRecord, error) {
	rows, err := s.db.Query(sqliteSelect+` ORDER BY created_at DESC LIMIT ?`, normalizeLimit(limit))
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
func (s *SQLiteStore) DeleteConversionsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM conversions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies database connectivity
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// Vacuum reclaims space after deletions
func (s *SQLiteStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversion(row rowScanner) (*models.ConversionRecord, error) {
	var (
		rec                                                    models.ConversionRecord
		format, state                                          string
		quality, title, fileName, exitReason, errMsg, clientIP sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.Source, &format, &quality, &title, &fileName, &state,
		&rec.ExitCode, &exitReason, &rec.Bytes, &rec.DurationMs, &errMsg, &clientIP,
		&rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Format = models.OutputKind(format)
	rec.State = models.SessionState(state)
	rec.Quality = quality.String
	rec.Title = title.String
	rec.FileName = fileName.String
	rec.ExitReason = exitReason.String
	rec.Error = errMsg.String
	rec.ClientIP = clientIP.String
	return &rec, nil
}
