// Package panel turns cached daily series into an aligned, validated
// forecasting panel: one row per (session, symbol) over a trading window.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"marketpanel/internal/domain"
)

// DefaultMaxMissing is the tolerated fraction of missing sessions.
const DefaultMaxMissing = 0.05

// SeriesSource supplies per-symbol series.
type SeriesSource interface {
	GetSeries(ctx context.Context, symbol, interval, period string) (*domain.Series, error)
}

// Calendar lists the sessions of a market.
type Calendar interface {
	Sessions(ctx context.Context, market domain.Market, start, end time.Time) ([]time.Time, error)
}

// Request describes one panel build. MaxMissing is the tolerated fraction
// of missing sessions per symbol: 0 tolerates none and a negative value
// means DefaultMaxMissing, the same rule the configuration applies.
type Request struct {
	Symbols    []string
	Start, End time.Time
	Market     domain.Market
	Years      int
	MaxMissing float64
	Interval   string
	// Workers bounds concurrent symbols; values below 1 mean 1.
	Workers int
	// SkipFailed drops rejected symbols instead of failing the build.
	SkipFailed bool
}

// Panel is the combined result of a build.
type Panel struct {
	Sessions []time.Time
	Frames   []*Frame
	Rows     []domain.PanelRow
	// Failed holds symbols dropped under SkipFailed.
	Failed []*SymbolError
}

// Imputed returns the number of filled sessions per symbol.
func (p *Panel) Imputed() map[string]int {
	out := make(map[string]int, len(p.Frames))
	for _, f := range p.Frames {
		out[f.Symbol] = len(f.Imputed)
	}
	return out
}

// Builder runs the per-symbol pipeline and combines the frames.
type Builder struct {
	source   SeriesSource
	calendar Calendar
	log      *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(source SeriesSource, calendar Calendar, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{source: source, calendar: calendar, log: logger.With("component", "panel")}
}

// Build fetches, validates, and reconciles every requested symbol and
// combines them into a single panel.
func (b *Builder) Build(ctx context.Context, req Request) (*Panel, error) {
	if len(req.Symbols) == 0 {
		return nil, ErrNoData
	}
	if req.Market == "" {
		req.Market = domain.MarketNYSE
	}
	if req.Interval == "" {
		req.Interval = "1day"
	}
	if req.Years <= 0 {
		req.Years = 5
	}
	if req.MaxMissing < 0 {
		req.MaxMissing = DefaultMaxMissing
	}

	sessions, err := b.calendar.Sessions(ctx, req.Market, domain.Day(req.Start), domain.Day(req.End))
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: no %s sessions between %s and %s", ErrNoData, req.Market,
			req.Start.Format(domain.DateLayout), req.End.Format(domain.DateLayout))
	}
	b.log.Info("building panel", "symbols", len(req.Symbols), "sessions", len(sessions),
		"start", sessions[0].Format(domain.DateLayout), "end", sessions[len(sessions)-1].Format(domain.DateLayout))

	frames := make([]*Frame, len(req.Symbols))
	failures := make([]*SymbolError, len(req.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(req.Workers, 1))
	for i, sym := range req.Symbols {
		g.Go(func() error {
			f, err := b.BuildFrame(gctx, sym, sessions, req)
			if err == nil {
				frames[i] = f
				return nil
			}
			var se *SymbolError
			if !errors.As(err, &se) {
				se = &SymbolError{Symbol: sym, Stage: StageFetch, Err: err}
			}
			if req.SkipFailed && gctx.Err() == nil {
				b.log.Warn("skipping symbol", "symbol", sym, "stage", se.Stage, "error", se.Err)
				failures[i] = se
				return nil
			}
			b.log.Error("symbol rejected", "symbol", sym, "stage", se.Stage, "error", se.Err)
			return se
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := &Panel{Sessions: sessions}
	for i := range req.Symbols {
		if frames[i] != nil {
			p.Frames = append(p.Frames, frames[i])
		}
		if failures[i] != nil {
			p.Failed = append(p.Failed, failures[i])
		}
	}
	rows, err := Combine(p.Frames, sessions)
	if err != nil {
		return nil, err
	}
	p.Rows = rows
	b.log.Info("panel ready", "rows", len(rows), "frames", len(p.Frames), "failed", len(p.Failed))
	return p, nil
}

// BuildFrame runs FETCH through READY for one symbol against the window's
// expected sessions.
func (b *Builder) BuildFrame(ctx context.Context, symbol string, sessions []time.Time, req Request) (*Frame, error) {
	fail := func(stage Stage, err error) error {
		return &SymbolError{Symbol: symbol, Stage: stage, Err: err}
	}
	if len(sessions) == 0 {
		return nil, fail(StageCoverage, ErrNoData)
	}

	series, err := b.source.GetSeries(ctx, symbol, req.Interval, Period(req.Years))
	if err != nil {
		return nil, fail(StageFetch, err)
	}
	if series.Empty() {
		return nil, fail(StageFetch, ErrEmptySeries)
	}

	if !hasDate(series.Bars, sessions[0]) {
		return nil, fail(StageCoverage, fmt.Errorf("%w: missing the first market session %s",
			ErrInsufficientHistory, sessions[0].Format(domain.DateLayout)))
	}

	rows := toRows(symbol, series.Bars)

	if err := CheckVariance(series.Bars); err != nil {
		return nil, fail(StageVariance, err)
	}

	rows = Clean(rows)
	if len(rows) == 0 {
		return nil, fail(StageClean, ErrEmptySeries)
	}

	rows, imputed, err := Reconcile(rows, sessions, req.MaxMissing)
	if err != nil {
		return nil, fail(StageReconcile, err)
	}
	RoundPrices(rows)

	if len(imputed) > 0 {
		b.log.Info("filled missing sessions", "symbol", symbol, "count", len(imputed))
	}
	b.log.Debug("frame ready", "symbol", symbol, "stage", StageReady, "rows", len(rows))
	return &Frame{Symbol: symbol, Columns: Columns, Rows: rows, Imputed: imputed}, nil
}

// Combine concatenates frames, keeps rows inside the session window, sorts
// them by date, and drops duplicate (date, symbol) rows keeping the first.
func Combine(frames []*Frame, sessions []time.Time) ([]domain.PanelRow, error) {
	if len(frames) == 0 {
		return nil, ErrNoData
	}
	want := frames[0].Columns
	for _, f := range frames[1:] {
		if !slices.Equal(f.Columns, want) {
			return nil, fmt.Errorf("%w: %s has %v, want %v", ErrSchemaMismatch, f.Symbol, f.Columns, want)
		}
	}

	var first, last time.Time
	if len(sessions) > 0 {
		first, last = sessions[0], sessions[len(sessions)-1]
	}

	var rows []domain.PanelRow
	for _, f := range frames {
		for _, r := range f.Rows {
			if len(sessions) > 0 && (r.Date.Before(first) || r.Date.After(last)) {
				continue
			}
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	type key struct {
		day    int64
		symbol string
	}
	seen := make(map[key]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := key{r.Date.Unix(), r.Symbol}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}
