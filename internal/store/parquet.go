package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketpanel/internal/domain"
)

// Compile-time interface check.
var _ SeriesStore = (*ParquetStore)(nil)

// ParquetStore implements SeriesStore using one Parquet file per symbol.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for a cached daily bar. Series metadata is
// repeated on every row.
type BarRecord struct {
	Symbol    string  `parquet:"symbol,dict"`
	Interval  string  `parquet:"interval,dict"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
	Name      string  `parquet:"name,dict"`
	Exchange  string  `parquet:"exchange,dict"`
	MICCode   string  `parquet:"mic_code,dict"`
	Currency  string  `parquet:"currency,dict"`
}

// PanelRecord is the Parquet schema for a combined panel row.
type PanelRecord struct {
	DS       string  `parquet:"ds"`
	UniqueID string  `parquet:"unique_id,dict"`
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	Volume   float64 `parquet:"volume"`
	Y        float64 `parquet:"y"`
}

// ---------------------------------------------------------------------------
// SeriesStore implementation
// ---------------------------------------------------------------------------

// Save writes the series to <DataDir>/<safe symbol>.parquet, replacing any
// previous file atomically.
func (s *ParquetStore) Save(_ context.Context, series *domain.Series) error {
	if series == nil {
		return errors.New("store: nil series")
	}
	records := make([]BarRecord, 0, len(series.Bars))
	for _, b := range series.Bars {
		records = append(records, BarRecord{
			Symbol:    series.Symbol,
			Interval:  series.Interval,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Name:      series.Meta.Name,
			Exchange:  series.Meta.Exchange,
			MICCode:   series.Meta.MICCode,
			Currency:  series.Meta.Currency,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	if err := writeParquetFile(s.seriesPath(series.Symbol), records); err != nil {
		return fmt.Errorf("writing series for %s: %w", series.Symbol, err)
	}
	return nil
}

// Load reads the stored series for symbol.
func (s *ParquetStore) Load(_ context.Context, symbol string) (*domain.Series, error) {
	path := s.seriesPath(symbol)
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("reading series for %s: %w", symbol, err)
	}

	out := &domain.Series{Symbol: symbol, Bars: make([]domain.Bar, 0, len(records))}
	for i, r := range records {
		if i == 0 {
			out.Symbol = r.Symbol
			out.Interval = r.Interval
			out.Meta = domain.SeriesMeta{
				Name:     r.Name,
				Exchange: r.Exchange,
				MICCode:  r.MICCode,
				Currency: r.Currency,
			}
		}
		out.Bars = append(out.Bars, domain.Bar{
			Date:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return out, nil
}

// Exists reports whether a series file is present for symbol.
func (s *ParquetStore) Exists(symbol string) bool {
	_, err := os.Stat(s.seriesPath(symbol))
	return err == nil
}

// seriesPath returns the filesystem path for a symbol's series file.
// Layout: <dataDir>/<symbol>.parquet
func (s *ParquetStore) seriesPath(symbol string) string {
	return filepath.Join(s.DataDir, SafeName(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Panel output
// ---------------------------------------------------------------------------

// WritePanel writes panel rows to a Parquet file at path.
func WritePanel(path string, rows []domain.PanelRow) error {
	records := make([]PanelRecord, len(rows))
	for i, r := range rows {
		records[i] = PanelRecord{
			DS:       r.Date.Format(domain.DateLayout),
			UniqueID: r.Symbol,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
			Y:        r.Y,
		}
	}
	return writeParquetFile(path, records)
}

// ReadPanel reads panel rows written by WritePanel.
func ReadPanel(path string) ([]domain.PanelRow, error) {
	records, err := readParquetFile[PanelRecord](path)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.PanelRow, 0, len(records))
	for _, r := range records {
		d, err := time.Parse(domain.DateLayout, r.DS)
		if err != nil {
			return nil, fmt.Errorf("panel row %q: %w", r.DS, err)
		}
		rows = append(rows, domain.PanelRow{
			Date: d, Symbol: r.UniqueID,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, Y: r.Y,
		})
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records to a temporary file in the target
// directory and renames it over path, so readers never see a partial file.
func writeParquetFile[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := parquet.Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
