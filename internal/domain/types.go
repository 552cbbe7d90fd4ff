// Package domain defines the core value types shared across the market-data
// layer: daily bars, symbol series, quote snapshots, and panel rows.
package domain

import (
	"math"
	"time"
)

// Market identifies an exchange calendar.
type Market string

const (
	MarketNYSE   Market = "NYSE"
	MarketNASDAQ Market = "NASDAQ"
)

// DateLayout is the civil-date layout used on the wire and on disk.
const DateLayout = "2006-01-02"

// Day truncates t to its civil date at UTC midnight, keeping t's own
// calendar fields.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a provider datetime ("2024-01-02" or
// "2024-01-02 15:30:00") into a civil date.
func ParseDay(s string) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}

// Bar is one daily OHLCV record. Missing provider values are carried as NaN
// until the series is cleaned.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Finite reports whether every numeric field of b is a finite number.
func (b Bar) Finite() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SeriesMeta is the provider metadata attached to a time series.
type SeriesMeta struct {
	Name     string
	Exchange string
	MICCode  string
	Currency string
}

// Series is an ordered-by-date sequence of bars for one symbol.
type Series struct {
	Symbol   string
	Interval string
	Meta     SeriesMeta
	Bars     []Bar
}

// Empty reports whether the series has no bars.
func (s *Series) Empty() bool { return s == nil || len(s.Bars) == 0 }

// First returns the earliest bar date.
func (s *Series) First() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Bars[0].Date
}

// Last returns the latest bar date.
func (s *Series) Last() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// Clone returns a deep copy so callers can mutate bars without touching a
// cached series.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	out := *s
	out.Bars = append([]Bar(nil), s.Bars...)
	return &out
}

// FiftyTwoWeek holds the 52-week statistics block of a quote.
type FiftyTwoWeek struct {
	Low               string `json:"low"`
	High              string `json:"high"`
	LowChange         string `json:"low_change"`
	LowChangePercent  string `json:"low_change_percent"`
	HighChange        string `json:"high_change"`
	HighChangePercent string `json:"high_change_percent"`
	Range             string `json:"range"`
}

// Quote is a latest-quote snapshot. Numeric values keep the provider's
// decimal string form; absent values are empty strings.
type Quote struct {
	Symbol        string       `json:"symbol"`
	Name          string       `json:"name"`
	Exchange      string       `json:"exchange"`
	MICCode       string       `json:"mic_code"`
	Currency      string       `json:"currency"`
	Datetime      string       `json:"datetime"`
	Open          string       `json:"open"`
	High          string       `json:"high"`
	Low           string       `json:"low"`
	Close         string       `json:"close"`
	Volume        string       `json:"volume"`
	PreviousClose string       `json:"previous_close"`
	Change        string       `json:"change"`
	PercentChange string       `json:"percent_change"`
	AverageVolume string       `json:"average_volume"`
	FiftyTwoWeek  FiftyTwoWeek `json:"fifty_two_week"`
	// Derived is set when the quote was synthesized from recent bars.
	Derived bool `json:"-"`
}

// PanelRow is one (date, symbol) row of the forecasting panel.
type PanelRow struct {
	Date   time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Y      float64
}

// Finite reports whether every numeric field of r is a finite number.
func (r PanelRow) Finite() bool {
	for _, v := range [...]float64{r.Open, r.High, r.Low, r.Close, r.Volume, r.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
