package util

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketpanel/internal/domain"
)

// ErrUnknownMarket is returned by calendar sources for a market they do not
// define.
var ErrUnknownMarket = errors.New("unknown market")

// MinLookbackDays is the shortest window LatestSession searches. Ten
// calendar days always contain a session, even across holiday clusters.
const MinLookbackDays = 10

// CalendarSource returns the session dates a market trades in the closed
// range [start, end], ascending, as civil dates at UTC midnight.
type CalendarSource interface {
	SessionDays(ctx context.Context, market domain.Market, start, end time.Time) ([]time.Time, error)
}

// TradingCalendar answers session questions for any market its source
// defines.
type TradingCalendar struct {
	source   CalendarSource
	lookback int
	cutoff   time.Duration // offset from local midnight; 0 = none
	log      *slog.Logger

	mu   sync.Mutex
	memo map[string][]time.Time
}

// CalendarOption configures a TradingCalendar.
type CalendarOption func(*TradingCalendar)

// WithLookbackDays sets how far back LatestSession searches. Values below
// MinLookbackDays are raised to it.
func WithLookbackDays(days int) CalendarOption {
	return func(tc *TradingCalendar) {
		tc.lookback = max(days, MinLookbackDays)
	}
}

// WithSessionCutoff makes today's session count as the latest one only
// after the given time of day in the market's time zone.
func WithSessionCutoff(sinceMidnight time.Duration) CalendarOption {
	return func(tc *TradingCalendar) {
		tc.cutoff = sinceMidnight
	}
}

// WithCalendarLogger sets the logger used for fallback warnings.
func WithCalendarLogger(l *slog.Logger) CalendarOption {
	return func(tc *TradingCalendar) {
		tc.log = l
	}
}

// NewTradingCalendar creates a TradingCalendar backed by the given source.
func NewTradingCalendar(source CalendarSource, opts ...CalendarOption) *TradingCalendar {
	tc := &TradingCalendar{
		source:   source,
		lookback: MinLookbackDays,
		log:      slog.Default(),
		memo:     make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Sessions returns the valid session dates in [start, end] for market.
func (tc *TradingCalendar) Sessions(ctx context.Context, market domain.Market, start, end time.Time) ([]time.Time, error) {
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil, nil
	}

	key := fmt.Sprintf("%s|%s|%s", market, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	tc.mu.Lock()
	cached, ok := tc.memo[key]
	tc.mu.Unlock()
	if ok {
		return append([]time.Time(nil), cached...), nil
	}

	days, err := tc.source.SessionDays(ctx, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("sessions for %s %s..%s: %w", market,
			start.Format(domain.DateLayout), end.Format(domain.DateLayout), err)
	}

	tc.mu.Lock()
	tc.memo[key] = days
	tc.mu.Unlock()
	return append([]time.Time(nil), days...), nil
}

// LatestSession returns the most recent session date on or before asOf,
// judged in the market's time zone. If the source fails or finds nothing it
// falls back to asOf's civil date.
func (tc *TradingCalendar) LatestSession(ctx context.Context, market domain.Market, asOf time.Time) time.Time {
	local := asOf.In(MarketLocation(market))
	today := domain.Day(local)

	days, err := tc.Sessions(ctx, market, today.AddDate(0, 0, -tc.lookback), today)
	if err != nil || len(days) == 0 {
		tc.log.Warn("no recent session found, using current date",
			"market", market, "asOf", today.Format(domain.DateLayout), "err", err)
		return today
	}

	latest := days[len(days)-1]
	if tc.cutoff > 0 && latest.Equal(today) && len(days) > 1 {
		y, m, d := local.Date()
		cut := time.Date(y, m, d, 0, 0, 0, 0, local.Location()).Add(tc.cutoff)
		if local.Before(cut) {
			latest = days[len(days)-2]
		}
	}
	return latest
}

// IsSession reports whether day is a valid session for market.
func (tc *TradingCalendar) IsSession(ctx context.Context, market domain.Market, day time.Time) (bool, error) {
	days, err := tc.Sessions(ctx, market, day, day)
	if err != nil {
		return false, err
	}
	return len(days) == 1, nil
}

var (
	locMu    sync.Mutex
	locCache = map[string]*time.Location{}
)

// MarketLocation returns the exchange time zone for market, or UTC when it
// is unknown or the zone database is unavailable.
func MarketLocation(market domain.Market) *time.Location {
	name := "UTC"
	switch normalizeMarket(market) {
	case domain.MarketNYSE, domain.MarketNASDAQ:
		name = "America/New_York"
	}

	locMu.Lock()
	defer locMu.Unlock()
	if loc, ok := locCache[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locCache[name] = loc
	return loc
}
