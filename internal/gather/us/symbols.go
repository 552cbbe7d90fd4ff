package us

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// LoadSymbolFile reads a symbol universe from a CSV file with a header row.
// The column named "symbol" is used when present, the first column
// otherwise. Symbols are uppercased and deduplicated in file order.
func LoadSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		return nil, nil
	}

	col := 0
	for i, name := range records[0] {
		if strings.EqualFold(strings.TrimSpace(name), "symbol") {
			col = i
			break
		}
	}

	seen := make(map[string]struct{}, len(records)-1)
	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) <= col {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[col]))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}
