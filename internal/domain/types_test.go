package domain

import (
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if !bar.Date.IsZero() {
		t.Error("expected zero Date for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 || bar.Volume != 0 {
		t.Error("expected zero OHLCV values for zero-value Bar")
	}

	var s *Series
	if !s.Empty() {
		t.Error("nil Series should be empty")
	}
	if !s.Last().IsZero() {
		t.Error("nil Series should have zero Last()")
	}

	if MarketNYSE != "NYSE" || MarketNASDAQ != "NASDAQ" {
		t.Error("Market constants have unexpected values")
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02 15:30:00", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.in)
		if err != nil {
			t.Fatalf("ParseDay(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseDay("not-a-date"); err == nil {
		t.Error("ParseDay should reject malformed input")
	}
}

func TestDayKeepsCivilDate(t *testing.T) {
	et := time.FixedZone("ET", -5*3600)
	in := time.Date(2024, 3, 8, 23, 30, 0, 0, et)
	got := Day(in)
	want := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day(%v) = %v, want %v", in, got, want)
	}
}

func TestBarFinite(t *testing.T) {
	b := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	if !b.Finite() {
		t.Error("expected finite bar")
	}
	b.Volume = math.NaN()
	if b.Finite() {
		t.Error("bar with NaN volume should not be finite")
	}
}

func TestSeriesClone(t *testing.T) {
	s := &Series{Symbol: "AAPL", Bars: []Bar{{Close: 1}}}
	c := s.Clone()
	c.Bars[0].Close = 2
	if s.Bars[0].Close != 1 {
		t.Error("Clone should not share bar storage")
	}
}
