package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"marketpanel/internal/domain"
	"marketpanel/internal/marketcache"
	"marketpanel/internal/store"
)

// SymbolStatus is one symbol's disk cache coverage and latest fetch.
type SymbolStatus struct {
	Symbol      string
	Cached      bool
	Fresh       bool
	Rows        int
	First, Last time.Time
	LastFetch   *store.FetchRecord
}

// Status reads the disk cache and fetch log for each symbol.
func (a *App) Status(ctx context.Context, symbols []string) ([]SymbolStatus, error) {
	out := make([]SymbolStatus, 0, len(symbols))
	for _, sym := range symbols {
		st := SymbolStatus{Symbol: sym, Cached: a.Series.Exists(sym)}
		if st.Cached {
			if s, err := a.Series.Load(ctx, sym); err == nil {
				st.Rows = len(s.Bars)
				st.First, st.Last = s.First(), s.Last()
				st.Fresh = a.Cache.HasFresh(ctx, sym)
			} else {
				a.Log.Warn("cached series unreadable", "symbol", sym, "error", err)
			}
		}
		rec, err := a.FetchLog.LastFetch(ctx, sym, marketcache.DefaultInterval)
		switch {
		case err == nil:
			st.LastFetch = &rec
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("reading fetch log for %s: %w", sym, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// WriteStatus prints one line per symbol, then the number of cached
// company names.
func (a *App) WriteStatus(w io.Writer, statuses []SymbolStatus) {
	for _, st := range statuses {
		cache := "absent"
		if st.Cached {
			cache = fmt.Sprintf("%d rows %s..%s", st.Rows,
				st.First.Format(domain.DateLayout), st.Last.Format(domain.DateLayout))
			if !st.Fresh {
				cache += " (stale)"
			}
		}
		fetched := "never"
		if st.LastFetch != nil {
			fetched = st.LastFetch.FetchedAt.Format(time.RFC3339) + " via " + st.LastFetch.Source
		}
		fmt.Fprintf(w, "%-8s cache: %-36s last fetch: %s\n", st.Symbol, cache, fetched)
	}
	fmt.Fprintf(w, "company names cached: %d\n", a.Names.Len())
}

// WriteHistory prints up to limit fetch log records per symbol, newest
// first.
func (a *App) WriteHistory(ctx context.Context, w io.Writer, symbols []string, limit int) error {
	for _, sym := range symbols {
		recs, err := a.FetchLog.History(ctx, sym, limit)
		if err != nil {
			return fmt.Errorf("reading fetch log for %s: %w", sym, err)
		}
		fmt.Fprintf(w, "%s: %d fetches\n", sym, len(recs))
		for _, r := range recs {
			fmt.Fprintf(w, "  %s  %-5s %5d rows  last %s  %s\n", r.FetchedAt.Format(time.RFC3339),
				r.Interval, r.Rows, r.LastDate.Format(domain.DateLayout), r.Source)
		}
	}
	return nil
}
