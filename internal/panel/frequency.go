package panel

import (
	"time"

	"marketpanel/internal/domain"
)

// DefaultHorizonDays extends the holiday list past the panel's last date.
const DefaultHorizonDays = 30

// Frequency describes the panel's sampling for a forecasting service:
// business days minus the listed holidays.
type Frequency struct {
	Base     string
	Holidays []time.Time
}

// ForecastFrequency returns business days between the first panel date and
// the last panel date plus horizonDays that do not appear in rows.
func ForecastFrequency(rows []domain.PanelRow, horizonDays int) Frequency {
	freq := Frequency{Base: "B"}
	if len(rows) == 0 {
		return freq
	}
	if horizonDays < 0 {
		horizonDays = DefaultHorizonDays
	}

	present := make(map[int64]struct{})
	first, last := domain.Day(rows[0].Date), domain.Day(rows[0].Date)
	for _, r := range rows {
		d := domain.Day(r.Date)
		present[d.Unix()] = struct{}{}
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}

	end := last.AddDate(0, 0, horizonDays)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if _, ok := present[d.Unix()]; !ok {
			freq.Holidays = append(freq.Holidays, d)
		}
	}
	return freq
}
