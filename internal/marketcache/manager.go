// Package marketcache decides whether market data is served from disk,
// from process memory, or fetched from the provider, and writes fetched
// data through to both tiers.
package marketcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"marketpanel/internal/domain"
	"marketpanel/internal/gather/twelvedata"
	"marketpanel/internal/store"
)

// ErrEmptyResponse is returned when the provider answers without any
// usable rows.
var ErrEmptyResponse = errors.New("marketcache: provider returned no values")

const (
	DefaultInterval        = "1day"
	DefaultPeriod          = "60mo"
	DefaultTTL             = 5 * time.Minute
	DefaultOutputSize      = 5000
	DefaultQuoteOutputSize = 30
)

// Client is the provider surface the manager needs.
type Client interface {
	FetchSeries(ctx context.Context, symbol, interval string, outputSize int) (*twelvedata.SeriesResponse, error)
	FetchQuote(ctx context.Context, symbol string) (*twelvedata.QuoteResponse, error)
}

// Calendar answers which session a cached series must reach to be fresh.
type Calendar interface {
	LatestSession(ctx context.Context, market domain.Market, asOf time.Time) time.Time
}

// Manager is the two-tier market data cache.
type Manager struct {
	client   Client
	series   store.SeriesStore
	calendar Calendar
	names    store.NameStore
	fetchLog store.FetchLog

	market          domain.Market
	outputSize      int
	quoteOutputSize int
	now             func() time.Time
	log             *slog.Logger

	memSeries *ttlCache[*domain.Series]
	memQuotes *ttlCache[domain.Quote]
	memNames  *ttlCache[string]
	group     singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithMarket sets the calendar used for freshness.
func WithMarket(m domain.Market) Option { return func(mg *Manager) { mg.market = m } }

// WithOutputSize sets the number of rows requested on a series fetch.
func WithOutputSize(n int) Option { return func(mg *Manager) { mg.outputSize = n } }

// WithQuoteOutputSize sets the number of rows fetched for a derived quote.
func WithQuoteOutputSize(n int) Option { return func(mg *Manager) { mg.quoteOutputSize = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(mg *Manager) { mg.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(mg *Manager) { mg.log = l } }

// WithNameStore enables the persistent company name tier.
func WithNameStore(n store.NameStore) Option { return func(mg *Manager) { mg.names = n } }

// WithFetchLog records every network fetch.
func WithFetchLog(f store.FetchLog) Option { return func(mg *Manager) { mg.fetchLog = f } }

// New creates a Manager. ttl bounds the in-memory tier; zero means
// DefaultTTL.
func New(client Client, series store.SeriesStore, calendar Calendar, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		client:          client,
		series:          series,
		calendar:        calendar,
		market:          domain.MarketNYSE,
		outputSize:      DefaultOutputSize,
		quoteOutputSize: DefaultQuoteOutputSize,
		now:             time.Now,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.log = m.log.With("component", "marketcache")
	m.memSeries = newTTLCache[*domain.Series](ttl, m.now)
	m.memQuotes = newTTLCache[domain.Quote](ttl, m.now)
	m.memNames = newTTLCache[string](ttl, m.now)
	return m
}

func memKey(symbol, interval, period string) string {
	return symbol + "_" + interval + "_" + period
}

// HasFresh reports whether the on-disk series for symbol reaches the latest
// session of the manager's market.
func (m *Manager) HasFresh(ctx context.Context, symbol string) bool {
	_, ok := m.freshDisk(ctx, symbol)
	return ok
}

func (m *Manager) freshDisk(ctx context.Context, symbol string) (*domain.Series, bool) {
	s, err := m.series.Load(ctx, symbol)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Debug("disk cache unreadable, treating as miss", "symbol", symbol, "error", err)
		}
		return nil, false
	}
	if s.Empty() {
		return nil, false
	}
	latest := m.calendar.LatestSession(ctx, m.market, m.now())
	if s.Last().Before(latest) {
		m.log.Debug("disk cache stale", "symbol", symbol,
			"last", s.Last().Format(domain.DateLayout), "latest_session", latest.Format(domain.DateLayout))
		return nil, false
	}
	return s, true
}

// GetSeries returns the series for symbol, from disk when fresh, else from
// memory within the TTL, else from the provider. Only daily series are
// kept on disk.
func (m *Manager) GetSeries(ctx context.Context, symbol, interval, period string) (*domain.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("marketcache: empty symbol")
	}
	if interval == "" {
		interval = DefaultInterval
	}
	if interval == DefaultInterval {
		if s, ok := m.freshDisk(ctx, symbol); ok {
			return s, nil
		}
	}

	key := memKey(symbol, interval, period)
	if s, ok := m.memSeries.Get(key); ok {
		return s.Clone(), nil
	}

	v, err := m.shared(ctx, "series:"+key, func(ctx context.Context) (any, error) {
		if s, ok := m.memSeries.Get(key); ok {
			return s, nil
		}
		return m.fetchSeries(ctx, symbol, interval, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Series).Clone(), nil
}

// shared runs fn once per key for all concurrent callers. fn runs detached
// from the cancellation of whichever caller started it; each caller waits
// only as long as its own ctx allows.
func (m *Manager) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

// fetchSeries fetches, normalizes, and writes through to both tiers.
func (m *Manager) fetchSeries(ctx context.Context, symbol, interval, key string) (*domain.Series, error) {
	m.log.Info("fetching series", "symbol", symbol, "interval", interval, "outputsize", m.outputSize)

	resp, err := m.client.FetchSeries(ctx, symbol, interval, m.outputSize)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}
	s, err := Normalize(symbol, interval, resp)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}

	m.memSeries.Set(key, s)
	if interval != DefaultInterval {
		m.record(ctx, symbol, interval, len(s.Bars), s.Last(), "time_series")
		return s, nil
	}
	if err := m.series.Save(ctx, s); err != nil {
		m.log.Warn("saving series to disk cache failed", "symbol", symbol, "error", err)
	} else {
		m.log.Info("saved series to cache", "symbol", symbol, "rows", len(s.Bars),
			"last", s.Last().Format(domain.DateLayout))
	}
	m.record(ctx, symbol, interval, len(s.Bars), s.Last(), "time_series")
	return s, nil
}

func (m *Manager) record(ctx context.Context, symbol, interval string, rows int, last time.Time, source string) {
	if m.fetchLog == nil {
		return
	}
	err := m.fetchLog.RecordFetch(ctx, store.FetchRecord{
		Symbol:    symbol,
		Interval:  interval,
		FetchedAt: m.now(),
		Rows:      rows,
		LastDate:  last,
		Source:    source,
	})
	if err != nil {
		m.log.Warn("recording fetch failed", "symbol", symbol, "error", err)
	}
}

// Refresh runs GetSeries for every symbol with the default interval and
// period. It continues past failures and returns them joined.
func (m *Manager) Refresh(ctx context.Context, symbols []string) error {
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		s, err := m.GetSeries(ctx, sym, DefaultInterval, DefaultPeriod)
		if err != nil {
			m.log.Error("refresh failed", "symbol", sym, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		m.log.Info("refreshed", "symbol", sym, "last", s.Last().Format(domain.DateLayout))
	}
	return errors.Join(errs...)
}

// Prune drops expired in-memory entries.
func (m *Manager) Prune() int {
	return m.memSeries.Prune() + m.memQuotes.Prune() + m.memNames.Prune()
}
