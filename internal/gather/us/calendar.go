// Package us provides US-market collaborators: the Alpaca trading calendar
// and symbol universe files.
package us

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"marketpanel/internal/domain"
	"marketpanel/internal/util"
)

// Compile-time interface check.
var _ util.CalendarSource = (*AlpacaCalendar)(nil)

// calendarClient is the slice of the Alpaca trading client the calendar
// needs.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// AlpacaCalendar is a CalendarSource that reads the NYSE session schedule
// from the Alpaca trading calendar API.
type AlpacaCalendar struct {
	client calendarClient
}

// NewAlpacaCalendar creates an AlpacaCalendar with the given credentials.
func NewAlpacaCalendar(apiKey, apiSecret, baseURL string) *AlpacaCalendar {
	return &AlpacaCalendar{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

// SessionDays implements util.CalendarSource.
func (c *AlpacaCalendar) SessionDays(ctx context.Context, market domain.Market, start, end time.Time) ([]time.Time, error) {
	switch market {
	case domain.MarketNYSE, domain.MarketNASDAQ, "XNYS", "XNAS", "US":
	default:
		return nil, fmt.Errorf("%w: %q", util.ErrUnknownMarket, market)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	calendar, err := c.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}

	start, end = domain.Day(start), domain.Day(end)
	days := make([]time.Time, 0, len(calendar))
	for _, cd := range calendar {
		d, err := time.Parse(domain.DateLayout, cd.Date)
		if err != nil {
			continue
		}
		if d.Before(start) || d.After(end) {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}
