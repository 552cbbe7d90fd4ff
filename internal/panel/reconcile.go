package panel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketpanel/internal/domain"
)

// Columns is the column set of every frame this package builds.
var Columns = []string{"ds", "unique_id", "open", "high", "low", "close", "volume", "y"}

// VolatilityWindow is the number of trailing bars whose return variance
// must be non-zero.
const VolatilityWindow = 120

// Frame is one symbol's reconciled rows.
type Frame struct {
	Symbol  string
	Columns []string
	Rows    []domain.PanelRow
	// Imputed lists the sessions filled from a neighbouring row.
	Imputed []time.Time
}

// Period maps a lookback in years onto the provider period vocabulary.
func Period(years int) string {
	return fmt.Sprintf("%dmo", years*12)
}

// round rounds half away from zero. Non-finite values pass through.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// dailyReturn is close/open - 1.
func dailyReturn(b domain.Bar) float64 {
	return b.Close/b.Open - 1
}

// toRows converts bars into panel rows with y rounded to 5 decimals.
func toRows(symbol string, bars []domain.Bar) []domain.PanelRow {
	rows := make([]domain.PanelRow, len(bars))
	for i, b := range bars {
		rows[i] = domain.PanelRow{
			Date:   b.Date,
			Symbol: symbol,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			Y:      round(dailyReturn(b), 5),
		}
	}
	return rows
}

// hasDate reports whether bars, sorted ascending, contain day.
func hasDate(bars []domain.Bar, day time.Time) bool {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(day) })
	return i < len(bars) && bars[i].Date.Equal(day)
}

// CheckVariance requires at least VolatilityWindow bars and a positive
// sample standard deviation of their daily returns.
func CheckVariance(bars []domain.Bar) error {
	if len(bars) < VolatilityWindow {
		return fmt.Errorf("%w: %d bars, need %d for the volatility check",
			ErrInsufficientHistory, len(bars), VolatilityWindow)
	}
	sd := stddev(bars[len(bars)-VolatilityWindow:])
	if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return fmt.Errorf("%w: stddev %v over the last %d bars", ErrZeroVariance, sd, VolatilityWindow)
	}
	return nil
}

// stddev is the sample (n-1) standard deviation of daily returns,
// skipping non-finite returns.
func stddev(bars []domain.Bar) float64 {
	var vals []float64
	for _, b := range bars {
		r := dailyReturn(b)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		vals = append(vals, r)
	}
	if len(vals) < 2 {
		return math.NaN()
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// Clean drops rows with any non-finite field.
func Clean(rows []domain.PanelRow) []domain.PanelRow {
	out := make([]domain.PanelRow, 0, len(rows))
	for _, r := range rows {
		if r.Finite() {
			out = append(out, r)
		}
	}
	return out
}

// Reconcile fills every expected session missing from rows with a copy of
// the nearest earlier row, or the first row when none is earlier. It fails
// when more than maxMissing of the expected sessions are absent. rows must
// be sorted ascending; the result is too.
func Reconcile(rows []domain.PanelRow, expected []time.Time, maxMissing float64) ([]domain.PanelRow, []time.Time, error) {
	present := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		present[r.Date.Unix()] = struct{}{}
	}
	var missing []time.Time
	for _, d := range expected {
		if _, ok := present[d.Unix()]; !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return rows, nil, nil
	}

	limit := float64(len(expected)) * maxMissing
	if float64(len(missing)) > limit {
		return nil, nil, fmt.Errorf("%w: %d of %d sessions missing, limit %.0f%%",
			ErrTooManyMissing, len(missing), len(expected), maxMissing*100)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no rows to fill from", ErrTooManyMissing)
	}

	out := make([]domain.PanelRow, len(rows), len(rows)+len(missing))
	copy(out, rows)
	for _, d := range missing {
		i := sort.Search(len(rows), func(i int) bool { return !rows[i].Date.Before(d) })
		src := rows[0]
		if i > 0 {
			src = rows[i-1]
		}
		src.Date = d
		out = append(out, src)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, missing, nil
}

// RoundPrices rounds open, high, low, and close to 2 decimals in place.
func RoundPrices(rows []domain.PanelRow) {
	for i := range rows {
		rows[i].Open = round(rows[i].Open, 2)
		rows[i].High = round(rows[i].High, 2)
		rows[i].Low = round(rows[i].Low, 2)
		rows[i].Close = round(rows[i].Close, 2)
	}
}
