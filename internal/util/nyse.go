package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketpanel/internal/domain"
)

// Compile-time interface check.
var _ CalendarSource = NYSERules{}

// NYSERules is a rule-based NYSE session calendar: weekdays minus the
// exchange's regular holidays and known unscheduled closures. NASDAQ shares
// the same schedule.
type NYSERules struct{}

// SessionDays implements CalendarSource.
func (NYSERules) SessionDays(_ context.Context, market domain.Market, start, end time.Time) ([]time.Time, error) {
	switch normalizeMarket(market) {
	case domain.MarketNYSE, domain.MarketNASDAQ:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarket, market)
	}

	start, end = domain.Day(start), domain.Day(end)
	holidays := map[int]map[time.Time]bool{}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		h, ok := holidays[d.Year()]
		if !ok {
			h = nyseHolidays(d.Year())
			holidays[d.Year()] = h
		}
		if h[d] {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}

// normalizeMarket maps exchange aliases onto the canonical market names.
func normalizeMarket(m domain.Market) domain.Market {
	switch strings.ToUpper(strings.TrimSpace(string(m))) {
	case "NYSE", "XNYS", "US":
		return domain.MarketNYSE
	case "NASDAQ", "XNAS":
		return domain.MarketNASDAQ
	}
	return m
}

// nyseSpecialClosures are unscheduled full-day closures.
var nyseSpecialClosures = []string{
	"2001-09-11", "2001-09-12", "2001-09-13", "2001-09-14",
	"2004-06-11", // Reagan
	"2007-01-02", // Ford
	"2012-10-29", // Sandy
	"2012-10-30", // Sandy
	"2018-12-05", // G.H.W. Bush
	"2025-01-09", // Carter
}

func nyseHolidays(year int) map[time.Time]bool {
	h := make(map[time.Time]bool, 12)
	add := func(t time.Time) { h[t] = true }

	// New Year's Day moves to Monday when on Sunday; a Saturday New Year's
	// is not observed on the prior Friday.
	ny := date(year, time.January, 1)
	if ny.Weekday() == time.Sunday {
		ny = ny.AddDate(0, 0, 1)
	}
	if ny.Weekday() != time.Saturday {
		add(ny)
	}

	if year >= 1998 {
		add(nthWeekday(year, time.January, time.Monday, 3))
	}
	add(nthWeekday(year, time.February, time.Monday, 3))
	add(easter(year).AddDate(0, 0, -2))
	add(lastWeekday(year, time.May, time.Monday))
	if year >= 2022 {
		add(observed(date(year, time.June, 19)))
	}
	add(observed(date(year, time.July, 4)))
	add(nthWeekday(year, time.September, time.Monday, 1))
	add(nthWeekday(year, time.November, time.Thursday, 4))
	add(observed(date(year, time.December, 25)))

	for _, s := range nyseSpecialClosures {
		if t, err := time.Parse(domain.DateLayout, s); err == nil && t.Year() == year {
			add(t)
		}
	}
	return h
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// observed shifts a Saturday holiday to Friday and a Sunday one to Monday.
func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	t := date(year, month, 1)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	t := date(year, month+1, 1).AddDate(0, 0, -1)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// easter returns Easter Sunday (Gregorian, anonymous algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}
