package util

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"marketpanel/internal/domain"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Delays: []time.Duration{0}}
}

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), fastPolicy(5), func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3
	persistent := errors.New("persistent error")

	err := Retry(context.Background(), fastPolicy(maxAttempts), func() error {
		attempts++
		return persistent
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("error %v should wrap ErrRetriesExhausted", err)
	}
	if !errors.Is(err, persistent) {
		t.Errorf("error %v should wrap the last attempt error", err)
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	fatal := errors.New("symbol not found")
	p := fastPolicy(3)
	p.Classify = func(err error) RetryClass {
		if errors.Is(err, fatal) {
			return RetryNever
		}
		return RetryScheduled
	}

	attempts := 0
	err := Retry(context.Background(), p, func() error {
		attempts++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Retry error = %v, want %v", err, fatal)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("permanent error should not be reported as exhausted")
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRetrySchedule(t *testing.T) {
	transportErr := errors.New("connection reset")
	p := RetryPolicy{
		MaxAttempts:    4,
		Delays:         []time.Duration{time.Millisecond, 2 * time.Millisecond},
		TransportDelay: 3 * time.Millisecond,
		Classify: func(err error) RetryClass {
			if errors.Is(err, transportErr) {
				return RetryTransport
			}
			return RetryScheduled
		},
	}
	var waits []time.Duration
	p.Notify = func(_ error, wait time.Duration) { waits = append(waits, wait) }

	errs := []error{errors.New("429"), errors.New("429"), transportErr}
	i := 0
	err := Retry(context.Background(), p, func() error {
		if i < len(errs) {
			i++
			return errs[i-1]
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("got %d waits, want %d", len(waits), len(want))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, Delays: []time.Duration{time.Hour}}

	err := Retry(ctx, p, func() error {
		cancel()
		return errors.New("rate limited")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if len(p.Delays) != 2 || p.Delays[0] != 62*time.Second || p.Delays[1] != 122*time.Second {
		t.Errorf("Delays = %v, want [62s 122s]", p.Delays)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block: %v", err)
	}

	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if err := unlimited.Wait(context.Background()); err != nil {
			t.Fatalf("unlimited Wait: %v", err)
		}
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1)
	_ = rl.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait should fail on a cancelled context")
	}
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTradingCalendarNew(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{})
	if cal == nil {
		t.Fatal("NewTradingCalendar returned nil")
	}
}

func TestNYSESessionsYearCounts(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{})
	tests := []struct {
		year int
		want int
	}{
		{2022, 251},
		{2023, 250},
		{2024, 252},
	}
	for _, tt := range tests {
		start := time.Date(tt.year, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(tt.year, 12, 31, 0, 0, 0, 0, time.UTC)
		days, err := cal.Sessions(context.Background(), domain.MarketNYSE, start, end)
		if err != nil {
			t.Fatalf("Sessions(%d): %v", tt.year, err)
		}
		if len(days) != tt.want {
			t.Errorf("Sessions(%d) = %d days, want %d", tt.year, len(days), tt.want)
		}
	}
}

func TestNYSEHolidays(t *testing.T) {
	closed := []string{
		"2024-01-01", "2024-01-15", "2024-02-19", "2024-03-29", "2024-05-27",
		"2024-06-19", "2024-07-04", "2024-09-02", "2024-11-28", "2024-12-25",
		"2022-06-20", "2022-12-26", "2021-12-24", "2025-01-09",
	}
	open := []string{"2021-12-31", "2024-01-02", "2024-07-05", "2024-12-24"}

	cal := NewTradingCalendar(NYSERules{})
	ctx := context.Background()
	for _, s := range closed {
		ok, err := cal.IsSession(ctx, domain.MarketNYSE, day(s))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Errorf("%s should be a holiday", s)
		}
	}
	for _, s := range open {
		ok, err := cal.IsSession(ctx, "XNYS", day(s))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("%s should be a session", s)
		}
	}
}

func TestSessionsWindow(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{})
	days, err := cal.Sessions(context.Background(), domain.MarketNYSE, day("2024-01-02"), day("2024-01-08"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08"}
	if len(days) != len(want) {
		t.Fatalf("got %d sessions, want %d", len(days), len(want))
	}
	for i, w := range want {
		if got := days[i].Format(domain.DateLayout); got != w {
			t.Errorf("session[%d] = %s, want %s", i, got, w)
		}
	}
}

func TestSessionsUnknownMarket(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{})
	_, err := cal.Sessions(context.Background(), "LSE", day("2024-01-02"), day("2024-01-08"))
	if !errors.Is(err, ErrUnknownMarket) {
		t.Errorf("Sessions error = %v, want ErrUnknownMarket", err)
	}
}

func TestLatestSession(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{}, WithCalendarLogger(Discard()))
	ctx := context.Background()

	tests := []struct {
		name string
		asOf time.Time
		want string
	}{
		{"weekday", time.Date(2024, 1, 8, 18, 0, 0, 0, time.UTC), "2024-01-08"},
		{"saturday", time.Date(2024, 1, 6, 18, 0, 0, 0, time.UTC), "2024-01-05"},
		{"holiday monday", time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC), "2024-01-12"},
		{"late utc is still previous ET day", time.Date(2024, 1, 6, 3, 0, 0, 0, time.UTC), "2024-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.LatestSession(ctx, domain.MarketNYSE, tt.asOf)
			if got.Format(domain.DateLayout) != tt.want {
				t.Errorf("LatestSession(%v) = %s, want %s", tt.asOf, got.Format(domain.DateLayout), tt.want)
			}
		})
	}
}

func TestLatestSessionCutoff(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{}, WithSessionCutoff(20*time.Hour+5*time.Minute))
	et := MarketLocation(domain.MarketNYSE)
	ctx := context.Background()

	before := time.Date(2024, 1, 8, 10, 0, 0, 0, et)
	if got := cal.LatestSession(ctx, domain.MarketNYSE, before); !got.Equal(day("2024-01-05")) {
		t.Errorf("before cutoff = %s, want 2024-01-05", got.Format(domain.DateLayout))
	}
	after := time.Date(2024, 1, 8, 21, 0, 0, 0, et)
	if got := cal.LatestSession(ctx, domain.MarketNYSE, after); !got.Equal(day("2024-01-08")) {
		t.Errorf("after cutoff = %s, want 2024-01-08", got.Format(domain.DateLayout))
	}
}

type failingSource struct{ calls int }

func (f *failingSource) SessionDays(context.Context, domain.Market, time.Time, time.Time) ([]time.Time, error) {
	f.calls++
	return nil, errors.New("calendar unavailable")
}

func TestLatestSessionFallback(t *testing.T) {
	src := &failingSource{}
	cal := NewTradingCalendar(src, WithCalendarLogger(Discard()))
	asOf := time.Date(2024, 1, 6, 18, 0, 0, 0, time.UTC)

	got := cal.LatestSession(context.Background(), domain.MarketNYSE, asOf)
	if !got.Equal(day("2024-01-06")) {
		t.Errorf("fallback = %s, want 2024-01-06", got.Format(domain.DateLayout))
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

type countingSource struct {
	NYSERules
	calls int
}

func (c *countingSource) SessionDays(ctx context.Context, m domain.Market, s, e time.Time) ([]time.Time, error) {
	c.calls++
	return c.NYSERules.SessionDays(ctx, m, s, e)
}

func TestSessionsMemoized(t *testing.T) {
	src := &countingSource{}
	cal := NewTradingCalendar(src)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		days, err := cal.Sessions(ctx, domain.MarketNYSE, day("2024-01-02"), day("2024-01-31"))
		if err != nil {
			t.Fatal(err)
		}
		days[0] = time.Time{} // callers may mutate their copy
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
	days, _ := cal.Sessions(ctx, domain.MarketNYSE, day("2024-01-02"), day("2024-01-31"))
	if days[0].IsZero() {
		t.Error("memoized result was mutated through a returned slice")
	}
}

func TestIsSession(t *testing.T) {
	cal := NewTradingCalendar(NYSERules{})
	ctx := context.Background()
	for d, want := range map[string]bool{
		"2024-01-12": true,
		"2024-01-13": false, // Saturday
		"2024-01-15": false, // MLK day
		"2024-03-29": false, // Good Friday
	} {
		got, err := cal.IsSession(ctx, domain.MarketNYSE, day(d))
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("IsSession(%s) = %v, want %v", d, got, want)
		}
	}
	if _, err := cal.IsSession(ctx, "LSE", day("2024-01-12")); !errors.Is(err, ErrUnknownMarket) {
		t.Errorf("unknown market error = %v", err)
	}
}
