package marketcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketpanel/internal/domain"
	"marketpanel/internal/gather/twelvedata"
)

// GetQuote returns the latest quote for symbol. Quotes live only in
// memory. When the quote endpoint fails the quote is derived from the two
// most recent rows of a short series fetch.
func (m *Manager) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Quote{}, errors.New("marketcache: empty symbol")
	}
	if q, ok := m.memQuotes.Get(symbol); ok {
		return q, nil
	}

	v, err := m.shared(ctx, "quote:"+symbol, func(ctx context.Context) (any, error) {
		if q, ok := m.memQuotes.Get(symbol); ok {
			return q, nil
		}
		q, err := m.fetchQuote(ctx, symbol)
		if err != nil {
			return domain.Quote{}, err
		}
		m.memQuotes.Set(symbol, q)
		return q, nil
	})
	if err != nil {
		return domain.Quote{}, err
	}
	return v.(domain.Quote), nil
}

func (m *Manager) fetchQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	resp, qErr := m.client.FetchQuote(ctx, symbol)
	if qErr == nil {
		return completeQuote(symbol, resp.Quote), nil
	}
	if ctx.Err() != nil {
		return domain.Quote{}, ctx.Err()
	}

	m.log.Warn("quote endpoint failed, deriving from series", "symbol", symbol, "error", qErr)
	series, sErr := m.client.FetchSeries(ctx, symbol, DefaultInterval, m.quoteOutputSize)
	if sErr != nil {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", symbol, errors.Join(qErr, sErr))
	}
	if len(series.Values) == 0 {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", symbol, ErrEmptyResponse)
	}
	m.record(ctx, symbol, DefaultInterval, len(series.Values), lastDate(series), "quote_fallback")
	return DeriveQuote(symbol, series), nil
}

// completeQuote fills the fields the provider may leave out.
func completeQuote(symbol string, q domain.Quote) domain.Quote {
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if q.Name == "" {
		q.Name = symbol
	}
	return q
}

// DeriveQuote builds a quote from a newest-first series response.
func DeriveQuote(symbol string, resp *twelvedata.SeriesResponse) domain.Quote {
	name := resp.Meta.Name
	if name == "" {
		name = symbol
	}
	q := domain.Quote{
		Symbol:   symbol,
		Name:     name,
		Exchange: resp.Meta.Exchange,
		MICCode:  resp.Meta.MICCode,
		Currency: resp.Meta.Currency,
		Derived:  true,
	}
	if len(resp.Values) == 0 {
		return q
	}

	cur := resp.Values[0]
	q.Datetime, _ = cur.Field("datetime")
	q.Open, _ = cur.Field("open")
	q.High, _ = cur.Field("high")
	q.Low, _ = cur.Field("low")
	q.Close, _ = cur.Field("close")
	q.Volume, _ = cur.Field("volume")

	if len(resp.Values) < 2 {
		return q
	}
	prev := resp.Values[1]
	q.PreviousClose, _ = prev.Field("close")

	c0, err0 := decimal.NewFromString(strings.TrimSpace(q.Close))
	c1, err1 := decimal.NewFromString(strings.TrimSpace(q.PreviousClose))
	if err0 != nil || err1 != nil {
		return q
	}
	diff := c0.Sub(c1)
	q.Change = diff.Round(2).StringFixed(2)
	if !c1.IsZero() {
		q.PercentChange = diff.Div(c1).Mul(decimal.NewFromInt(100)).Round(2).StringFixed(2)
	}
	return q
}

func lastDate(resp *twelvedata.SeriesResponse) time.Time {
	if len(resp.Values) == 0 {
		return time.Time{}
	}
	d, _ := domain.ParseDay(resp.Values[0].Datetime())
	return d
}

// CompanyName returns the display name for symbol. It never fails: every
// lookup error falls back to the symbol itself.
func (m *Manager) CompanyName(ctx context.Context, symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name, ok := m.memNames.Get(symbol); ok {
		return name
	}
	if m.names != nil {
		if name, ok := m.names.Get(symbol); ok {
			m.memNames.Set(symbol, name)
			return name
		}
	}

	m.log.Info("fetching company name", "symbol", symbol)
	q, err := m.GetQuote(ctx, symbol)
	if err != nil {
		m.log.Warn("company name lookup failed", "symbol", symbol, "error", err)
		return symbol
	}
	name := q.Name
	if name == "" {
		name = symbol
	}
	m.memNames.Set(symbol, name)
	if m.names != nil {
		if err := m.names.Put(symbol, name); err != nil {
			m.log.Warn("saving company name failed", "symbol", symbol, "error", err)
		}
	}
	return name
}
