package us

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"marketpanel/internal/domain"
	"marketpanel/internal/util"
)

type fakeCalendarClient struct {
	days []alpaca.CalendarDay
	err  error
	req  alpaca.GetCalendarRequest
}

func (f *fakeCalendarClient) GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	f.req = req
	return f.days, f.err
}

func TestAlpacaCalendarSessionDays(t *testing.T) {
	fake := &fakeCalendarClient{days: []alpaca.CalendarDay{
		{Date: "2024-01-02"},
		{Date: "2024-01-03"},
		{Date: "bogus"},
		{Date: "2024-01-09"},
	}}
	c := &AlpacaCalendar{client: fake}

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	days, err := c.SessionDays(context.Background(), domain.MarketNYSE, start, end)
	if err != nil {
		t.Fatalf("SessionDays: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2 (out-of-range and malformed dropped)", len(days))
	}
	if !fake.req.Start.Equal(start) || !fake.req.End.Equal(end) {
		t.Errorf("request range = %v..%v, want %v..%v", fake.req.Start, fake.req.End, start, end)
	}
}

func TestAlpacaCalendarErrors(t *testing.T) {
	c := &AlpacaCalendar{client: &fakeCalendarClient{err: errors.New("401")}}
	ctx := context.Background()
	now := time.Now()

	if _, err := c.SessionDays(ctx, domain.MarketNYSE, now, now); err == nil {
		t.Error("expected API error to propagate")
	}
	if _, err := c.SessionDays(ctx, "LSE", now, now); !errors.Is(err, util.ErrUnknownMarket) {
		t.Errorf("unknown market error = %v, want ErrUnknownMarket", err)
	}
}

func TestNewAlpacaCalendar(t *testing.T) {
	c := NewAlpacaCalendar("key", "secret", "https://paper-api.alpaca.markets")
	if c == nil || c.client == nil {
		t.Fatal("NewAlpacaCalendar returned an unusable calendar")
	}
}
