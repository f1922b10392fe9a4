package util

import (
	"fmt"
	"time"
)

// BusinessDays returns every Monday-Friday date in [start, end], truncated
// to midnight UTC. Exchange holidays are included; the simulator treats a
// date with no bar for a symbol as a no-op for that symbol.
func BusinessDays(start, end time.Time) []time.Time {
	start = truncateDate(start)
	end = truncateDate(end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if isWeekday(d) {
			days = append(days, d)
		}
	}
	return days
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parsing clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) on(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// TradingCalendar provides market-hours awareness in the exchange timezone.
type TradingCalendar struct {
	loc *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given exchange
// timezone (e.g. "America/New_York").
func NewTradingCalendar(timezone string) (*TradingCalendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &TradingCalendar{loc: loc}, nil
}

// Location returns the exchange timezone.
func (tc *TradingCalendar) Location() *time.Location {
	return tc.loc
}

// TradingDate is t's exchange-local date as midnight UTC, the convention
// bar timestamps use.
func (tc *TradingCalendar) TradingDate(t time.Time) time.Time {
	return truncateDate(t.In(tc.loc))
}

// InWindow reports whether t falls on a weekday inside [from, to) exchange
// local time.
func (tc *TradingCalendar) InWindow(t time.Time, from, to ClockTime) bool {
	local := t.In(tc.loc)
	if !isWeekday(local) {
		return false
	}
	lo := from.on(local, tc.loc)
	hi := to.on(local, tc.loc)
	return !local.Before(lo) && local.Before(hi)
}

// NextRun returns the first weekday occurrence of at that is strictly after
// now.
func (tc *TradingCalendar) NextRun(now time.Time, at ClockTime) time.Time {
	local := now.In(tc.loc)
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		candidate := at.on(day, tc.loc)
		if isWeekday(candidate) && candidate.After(local) {
			return candidate
		}
	}
	return at.on(local.AddDate(0, 0, 7), tc.loc)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
