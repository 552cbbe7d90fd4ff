package panel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"marketpanel/internal/domain"
	"marketpanel/internal/store"
)

// CombinedCSV and CombinedParquet are the combined output file names.
const (
	CombinedCSV     = "combined.csv"
	CombinedParquet = "combined.parquet"
)

// WriteOutputs writes one CSV per frame, the combined CSV, and the combined
// Parquet file under dir.
func WriteOutputs(dir string, p *Panel) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, f := range p.Frames {
		path := filepath.Join(dir, store.SafeName(f.Symbol)+".csv")
		if err := WriteCSV(path, f.Rows); err != nil {
			return fmt.Errorf("writing %s: %w", f.Symbol, err)
		}
	}
	if err := WriteCSV(filepath.Join(dir, CombinedCSV), p.Rows); err != nil {
		return fmt.Errorf("writing combined csv: %w", err)
	}
	if err := store.WritePanel(filepath.Join(dir, CombinedParquet), p.Rows); err != nil {
		return fmt.Errorf("writing combined parquet: %w", err)
	}
	return nil
}

// WriteCSV writes rows with the panel header.
func WriteCSV(path string, rows []domain.PanelRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format(domain.DateLayout),
			r.Symbol,
			formatFloat(r.Open),
			formatFloat(r.High),
			formatFloat(r.Low),
			formatFloat(r.Close),
			formatFloat(r.Volume),
			formatFloat(r.Y),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV reads a file written by WriteCSV.
func ReadCSV(path string) ([]domain.PanelRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}

	rows := make([]domain.PanelRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(Columns) {
			return nil, fmt.Errorf("%s line %d: %d fields, want %d", path, i+2, len(rec), len(Columns))
		}
		d, err := domain.ParseDay(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		vals := make([]float64, 6)
		for j := range vals {
			v, err := strconv.ParseFloat(rec[j+2], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
			}
			vals[j] = v
		}
		rows = append(rows, domain.PanelRow{
			Date: d, Symbol: rec[1],
			Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3],
			Volume: vals[4], Y: vals[5],
		})
	}
	return rows, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
