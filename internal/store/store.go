// Package store defines storage interfaces for persisting and retrieving
// cached market data: per-symbol series, company names, and the fetch log.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketpanel/internal/domain"
)

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("store: not found")

// SeriesStore persists one series per symbol.
type SeriesStore interface {
	// Save fully replaces the stored series for s.Symbol.
	Save(ctx context.Context, s *domain.Series) error

	// Load returns the stored series for symbol, or ErrNotFound.
	Load(ctx context.Context, symbol string) (*domain.Series, error)
}

// NameStore persists company names keyed by symbol.
type NameStore interface {
	// Get returns the stored name for symbol.
	Get(symbol string) (string, bool)

	// Put stores name for symbol and persists the whole map.
	Put(symbol, name string) error
}

// FetchRecord describes one network fetch of a series.
type FetchRecord struct {
	Symbol    string
	Interval  string
	FetchedAt time.Time
	Rows      int
	LastDate  time.Time
	Source    string
}

// FetchLog records network fetches.
type FetchLog interface {
	// RecordFetch appends a fetch record.
	RecordFetch(ctx context.Context, rec FetchRecord) error

	// LastFetch returns the most recent record for symbol and interval, or
	// ErrNotFound.
	LastFetch(ctx context.Context, symbol, interval string) (FetchRecord, error)

	// History returns up to limit records for symbol, newest first.
	History(ctx context.Context, symbol string, limit int) ([]FetchRecord, error)
}

// SafeName maps a symbol to its on-disk base name: lowercased, with path
// separators replaced by underscores.
func SafeName(symbol string) string {
	r := strings.NewReplacer("/", "_", `\`, "_")
	return r.Replace(strings.ToLower(symbol))
}
