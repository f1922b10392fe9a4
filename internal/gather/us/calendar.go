package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// calendarClient is the subset of *alpaca.Client used for session lookups.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Calendar answers exchange-session questions from the Alpaca trading
// calendar API.
type Calendar struct {
	client calendarClient
	loc    *time.Location
}

// NewCalendar creates a Calendar using the Alpaca trading API.
func NewCalendar(apiKey, apiSecret, baseURL string) (*Calendar, error) {
	return newCalendar(alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}))
}

func newCalendar(c calendarClient) (*Calendar, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	return &Calendar{client: c, loc: et}, nil
}

// sessions returns session dates within [from, to] in ascending order.
func (c *Calendar) sessions(from, to time.Time) ([]time.Time, error) {
	days, err := c.client.GetCalendar(alpaca.GetCalendarRequest{Start: from, End: to})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		t, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// IsTradingDay reports whether now's New York date is an exchange session.
func (c *Calendar) IsTradingDay(now time.Time) (bool, error) {
	local := now.In(c.loc)
	days, err := c.sessions(local, local)
	if err != nil {
		return false, err
	}
	today := local.Format("2006-01-02")
	for _, d := range days {
		if d.Format("2006-01-02") == today {
			return true, nil
		}
	}
	return false, nil
}

// LatestFinishedTradingDay returns the most recent session whose daily bar
// has settled (after 20:05 ET, once extended-hours data is in).
func (c *Calendar) LatestFinishedTradingDay(now time.Time) (time.Time, error) {
	now = now.In(c.loc)
	days, err := c.sessions(now.AddDate(0, 0, -10), now)
	if err != nil {
		return time.Time{}, err
	}
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, c.loc)

	for i := len(days) - 1; i >= 0; i-- {
		d := days[i]
		if d.Format("2006-01-02") == today {
			if now.After(cutoff) {
				return d, nil
			}
			continue
		}
		if d.Format("2006-01-02") < today {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
