package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"marketpanel/internal/config"
	"marketpanel/internal/domain"
	"marketpanel/internal/store"
	"marketpanel/internal/util"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"SQLITE_PATH", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "ALPACA_BASE_URL", "SYMBOLS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("TWELVE_API_KEY", "test-key")
	t.Setenv("DATA_DIR", filepath.Join(t.TempDir(), "data"))
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, util.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Market != domain.MarketNYSE {
		t.Errorf("Market = %q", a.Market)
	}
	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		t.Errorf("fetch log not created: %v", err)
	}
	if a.Cache == nil || a.Builder == nil || a.Names == nil {
		t.Fatal("components not wired")
	}
}

func TestPanelRequest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Panel.EndDateOffset = 2
	cfg.Panel.Workers = 3
	a, err := New(cfg, util.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	// 01:30 UTC on the 10th is still the 9th in New York.
	now := time.Date(2024, 1, 10, 1, 30, 0, 0, time.UTC)
	req := a.PanelRequest(now, nil)

	if want := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC); !req.End.Equal(want) {
		t.Errorf("End = %s, want %s", req.End, want)
	}
	if want := req.End.AddDate(0, 0, -5*365); !req.Start.Equal(want) {
		t.Errorf("Start = %s, want %s", req.Start, want)
	}
	if len(req.Symbols) != 8 || req.Symbols[7] != "SPY" {
		t.Errorf("Symbols = %v", req.Symbols)
	}
	if req.Years != 5 || req.Workers != 3 || req.MaxMissing != 0.05 || req.Interval != "1day" {
		t.Errorf("request = %+v", req)
	}

	if got := a.PanelRequest(now, []string{"GLD"}).Symbols; len(got) != 1 || got[0] != "GLD" {
		t.Errorf("explicit symbols = %v", got)
	}
}

func TestStatusAndHistory(t *testing.T) {
	a, err := New(testConfig(t), util.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	s := &domain.Series{Symbol: "AAPL", Interval: "1day", Bars: []domain.Bar{
		{Date: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1},
		{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1},
	}}
	if err := a.Series.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	for i, src := range []string{"time_series", "quote_fallback"} {
		rec := store.FetchRecord{Symbol: "AAPL", Interval: "1day", Rows: 2, Source: src,
			FetchedAt: time.Date(2024, 1, 5, 21, i, 0, 0, time.UTC), LastDate: s.Last()}
		if err := a.FetchLog.RecordFetch(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Names.Put("AAPL", "Apple Inc"); err != nil {
		t.Fatal(err)
	}

	st, err := a.Status(ctx, []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st) != 2 {
		t.Fatalf("got %d statuses", len(st))
	}
	aapl, msft := st[0], st[1]
	if !aapl.Cached || aapl.Rows != 2 || !aapl.First.Equal(s.First()) || !aapl.Last.Equal(s.Last()) {
		t.Errorf("AAPL = %+v", aapl)
	}
	if aapl.Fresh {
		t.Error("a 2024 series cannot be fresh")
	}
	if aapl.LastFetch == nil || aapl.LastFetch.Source != "quote_fallback" {
		t.Errorf("AAPL last fetch = %+v", aapl.LastFetch)
	}
	if msft.Cached || msft.LastFetch != nil {
		t.Errorf("MSFT = %+v", msft)
	}

	var buf bytes.Buffer
	a.WriteStatus(&buf, st)
	out := buf.String()
	for _, want := range []string{"2 rows 2024-01-04..2024-01-05 (stale)", "MSFT", "never", "company names cached: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := a.WriteHistory(ctx, &buf, []string{"AAPL"}, 1); err != nil {
		t.Fatalf("WriteHistory: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "AAPL: 1 fetches") || !strings.Contains(out, "quote_fallback") {
		t.Errorf("history output:\n%s", out)
	}
}
