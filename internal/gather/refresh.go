package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"marketpanel/internal/util"
)

// DefaultSchedule runs the refresh at 20:15 market time on weekdays,
// after the US close has settled at the provider.
const DefaultSchedule = "0 15 20 * * 1-5"

var _ Gatherer = (*RefreshGatherer)(nil)

// Refresher re-fetches stale symbols.
type Refresher interface {
	Refresh(ctx context.Context, symbols []string) error
}

// pruner is implemented by caches with an expiring memory tier.
type pruner interface {
	Prune() int
}

// RefreshGatherer refreshes a fixed symbol set on a cron schedule with a
// seconds field, evaluated in the market time zone.
type RefreshGatherer struct {
	target     Refresher
	symbols    []string
	schedule   string
	loc        *time.Location
	runOnStart bool
	runs       atomic.Int64
	log        *slog.Logger
}

// RefreshOption configures a RefreshGatherer.
type RefreshOption func(*RefreshGatherer)

// WithSchedule overrides DefaultSchedule.
func WithSchedule(schedule string) RefreshOption {
	return func(g *RefreshGatherer) {
		if schedule != "" {
			g.schedule = schedule
		}
	}
}

// WithLocation sets the schedule's time zone.
func WithLocation(loc *time.Location) RefreshOption {
	return func(g *RefreshGatherer) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithRunOnStart runs one refresh as soon as Run is called.
func WithRunOnStart(on bool) RefreshOption {
	return func(g *RefreshGatherer) { g.runOnStart = on }
}

// WithRefreshLogger sets the logger.
func WithRefreshLogger(l *slog.Logger) RefreshOption {
	return func(g *RefreshGatherer) {
		if l != nil {
			g.log = l
		}
	}
}

// NewRefreshGatherer creates a RefreshGatherer for symbols.
func NewRefreshGatherer(target Refresher, symbols []string, opts ...RefreshOption) *RefreshGatherer {
	g := &RefreshGatherer{
		target:   target,
		symbols:  append([]string(nil), symbols...),
		schedule: DefaultSchedule,
		loc:      time.UTC,
		log:      util.Discard(),
	}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.With("component", "refresh")
	return g
}

// Name implements Gatherer.
func (g *RefreshGatherer) Name() string { return "refresh" }

// Runs returns the number of completed refresh passes.
func (g *RefreshGatherer) Runs() int64 { return g.runs.Load() }

// Run schedules the refresh and blocks until ctx is cancelled. Overlapping
// passes are skipped. Per-symbol failures are logged, never returned.
func (g *RefreshGatherer) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(g.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(g.schedule, func() { g.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("parsing refresh schedule %q: %w", g.schedule, err)
	}

	if g.runOnStart {
		g.RunOnce(ctx)
	}

	c.Start()
	g.log.Info("refresh scheduled", "schedule", g.schedule, "location", g.loc.String(), "symbols", len(g.symbols))

	<-ctx.Done()
	<-c.Stop().Done()
	g.log.Info("refresh stopped", "runs", g.Runs())
	return nil
}

// RunOnce refreshes every symbol once and returns the joined failures.
func (g *RefreshGatherer) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	start := time.Now()
	err := g.target.Refresh(ctx, g.symbols)
	g.runs.Add(1)
	if p, ok := g.target.(pruner); ok {
		if n := p.Prune(); n > 0 {
			g.log.Debug("pruned expired memory entries", "count", n)
		}
	}
	if err != nil {
		g.log.Warn("refresh finished with failures", "error", err, "elapsed", time.Since(start))
		return err
	}
	g.log.Info("refresh finished", "symbols", len(g.symbols), "elapsed", time.Since(start))
	return nil
}
