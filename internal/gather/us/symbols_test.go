package us

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "universe.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSymbolFile(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "symbol column",
			body: "name,symbol,exchange\nApple,aapl,NASDAQ\nSPDR Gold,GLD,NYSE\nApple again,AAPL,NASDAQ\n",
			want: []string{"AAPL", "GLD"},
		},
		{
			name: "first column fallback",
			body: "ticker,weight\nMSFT,0.2\n nvda ,0.3\n",
			want: []string{"MSFT", "NVDA"},
		},
		{
			name: "comments and ragged rows",
			body: "symbol\n# benchmark\nSPY\n\nTSLA,extra\n",
			want: []string{"SPY", "TSLA"},
		},
		{
			name: "header only",
			body: "symbol\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSymbolFile(writeCSV(t, tt.body))
			if err != nil {
				t.Fatalf("LoadSymbolFile: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("LoadSymbolFile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadSymbolFileMissing(t *testing.T) {
	if _, err := LoadSymbolFile(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
