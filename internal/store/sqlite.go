package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"marketpanel/internal/domain"
)

// Compile-time interface check.
var _ FetchLog = (*SQLiteStore)(nil)

// SQLiteStore implements FetchLog backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers from batch and refresh runs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT NOT NULL,
			bar_interval TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			row_count  INTEGER NOT NULL,
			last_date  TEXT,
			source     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_symbol ON fetch_log(symbol, bar_interval, fetched_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordFetch appends a fetch record.
func (s *SQLiteStore) RecordFetch(ctx context.Context, rec FetchRecord) error {
	var lastDate any
	if !rec.LastDate.IsZero() {
		lastDate = rec.LastDate.Format(domain.DateLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_log (symbol, bar_interval, fetched_at, row_count, last_date, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Symbol, rec.Interval, rec.FetchedAt.UnixMilli(), rec.Rows, lastDate, rec.Source)
	if err != nil {
		return fmt.Errorf("insert fetch_log: %w", err)
	}
	return nil
}

// LastFetch returns the most recent record for symbol and interval.
func (s *SQLiteStore) LastFetch(ctx context.Context, symbol, interval string) (FetchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT symbol, bar_interval, fetched_at, row_count, last_date, source
		 FROM fetch_log WHERE symbol = ? AND bar_interval = ?
		 ORDER BY fetched_at DESC, id DESC LIMIT 1`, symbol, interval)
	rec, err := scanFetch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FetchRecord{}, fmt.Errorf("%w: fetch log for %s", ErrNotFound, symbol)
	}
	return rec, err
}

// History returns up to limit records for symbol, newest first. A
// non-positive limit returns every record.
func (s *SQLiteStore) History(ctx context.Context, symbol string, limit int) ([]FetchRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, bar_interval, fetched_at, row_count, last_date, source
		 FROM fetch_log WHERE symbol = ?
		 ORDER BY fetched_at DESC, id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch_log: %w", err)
	}
	defer rows.Close()

	var out []FetchRecord
	for rows.Next() {
		rec, err := scanFetch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFetch(sc scanner) (FetchRecord, error) {
	var (
		rec       FetchRecord
		fetchedAt int64
		lastDate  sql.NullString
		source    sql.NullString
	)
	if err := sc.Scan(&rec.Symbol, &rec.Interval, &fetchedAt, &rec.Rows, &lastDate, &source); err != nil {
		return FetchRecord{}, err
	}
	rec.FetchedAt = time.UnixMilli(fetchedAt).UTC()
	rec.Source = source.String
	if lastDate.Valid {
		if d, err := time.Parse(domain.DateLayout, lastDate.String); err == nil {
			rec.LastDate = d
		}
	}
	return rec, nil
}
