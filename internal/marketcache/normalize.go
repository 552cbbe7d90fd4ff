package marketcache

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"marketpanel/internal/domain"
	"marketpanel/internal/gather/twelvedata"
)

// Normalize converts a raw provider response into an ascending,
// date-unique series. Rows whose datetime cannot be parsed are skipped.
// Missing-value sentinels become NaN, and an absent volume field becomes 0.
func Normalize(symbol, interval string, resp *twelvedata.SeriesResponse) (*domain.Series, error) {
	if resp == nil || len(resp.Values) == 0 {
		return nil, ErrEmptyResponse
	}

	name := resp.Meta.Name
	if name == "" {
		name = symbol
	}
	out := &domain.Series{
		Symbol:   symbol,
		Interval: interval,
		Meta: domain.SeriesMeta{
			Name:     name,
			Exchange: resp.Meta.Exchange,
			MICCode:  resp.Meta.MICCode,
			Currency: resp.Meta.Currency,
		},
		Bars: make([]domain.Bar, 0, len(resp.Values)),
	}

	for _, v := range resp.Values {
		date, err := domain.ParseDay(v.Datetime())
		if err != nil {
			continue
		}
		out.Bars = append(out.Bars, domain.Bar{
			Date:   date,
			Open:   numeric(v, "open", math.NaN()),
			High:   numeric(v, "high", math.NaN()),
			Low:    numeric(v, "low", math.NaN()),
			Close:  numeric(v, "close", math.NaN()),
			Volume: numeric(v, "volume", 0),
		})
	}

	// Stable so the provider's first row wins among duplicate dates.
	sort.SliceStable(out.Bars, func(i, j int) bool {
		return out.Bars[i].Date.Before(out.Bars[j].Date)
	})
	uniq := out.Bars[:0]
	for i, b := range out.Bars {
		if i > 0 && b.Date.Equal(uniq[len(uniq)-1].Date) {
			continue
		}
		uniq = append(uniq, b)
	}
	out.Bars = uniq

	if len(out.Bars) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

// numeric parses a field, returning absent when the key is missing and NaN
// for sentinel or malformed values.
func numeric(v twelvedata.Value, field string, absent float64) float64 {
	s, ok := v.Field(field)
	if !ok {
		return absent
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
