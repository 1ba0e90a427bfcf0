// Package localtime resolves a user's stored IANA timezone into the local
// scheduling facts the engine needs: local hour, local date, weekday, and the
// Monday-based week identifier.
//
// Resolution never fails: an empty or invalid timezone falls back to UTC.
// Scheduling must not throw on bad user data; a user with a corrupt timezone
// string is simply evaluated on UTC time.
//
// All functions are pure in (timezone, instant) and allocate nothing beyond
// the returned value, which keeps them trivially testable with fixed clocks.
package localtime

import "time"

// DefaultTimezone is the fallback used when a user's timezone is empty or
// does not resolve against the IANA database.
const DefaultTimezone = "UTC"

// DateFormat is the canonical YYYY-MM-DD layout used for local-date and
// week-id keys throughout the engine.
const DateFormat = "2006-01-02"

// Moment is the resolved local-time view of a single UTC instant for one
// timezone. It carries everything the eligibility filter and dedup guard
// need, so each user's timezone is resolved once per tick.
type Moment struct {
	// Location is the resolved *time.Location (UTC on fallback).
	Location *time.Location

	// Local is the instant converted into Location.
	Local time.Time

	// Hour is the local hour of day, 0-23.
	Hour int

	// Date is the local calendar date, formatted YYYY-MM-DD.
	Date string

	// Weekday is the local day of week.
	Weekday time.Weekday
}

// Resolve converts a raw timezone string and a UTC instant into a Moment.
// Empty or unrecognized timezones resolve against DefaultTimezone.
func Resolve(timezone string, now time.Time) Moment {
	loc := Location(timezone)
	local := now.In(loc)
	return Moment{
		Location: loc,
		Local:    local,
		Hour:     local.Hour(),
		Date:     local.Format(DateFormat),
		Weekday:  local.Weekday(),
	}
}

// Location loads the IANA location for the given name, falling back to UTC
// for empty or invalid names.
func Location(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsWeekend reports whether the moment falls on a local Saturday or Sunday.
func (m Moment) IsWeekend() bool {
	return m.Weekday == time.Saturday || m.Weekday == time.Sunday
}

// DayWindow returns the half-open UTC interval [start, end) covering the
// moment's local calendar day. Daylight-saving transitions make some local
// days 23 or 25 hours long; building both bounds with time.Date in the
// resolved location keeps the window exact.
func (m Moment) DayWindow() (start, end time.Time) {
	y, mo, d := m.Local.Date()
	start = time.Date(y, mo, d, 0, 0, 0, 0, m.Location)
	end = start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// WeekID returns the local date of the Monday beginning the moment's week,
// formatted YYYY-MM-DD. Weeks run Monday through Sunday.
func (m Moment) WeekID() string {
	return m.weekStartLocal().Format(DateFormat)
}

// WeekWindow returns the half-open UTC interval [weekStart, weekStart+7d)
// covering the moment's Monday-based local week.
func (m Moment) WeekWindow() (start, end time.Time) {
	ws := m.weekStartLocal()
	return ws.UTC(), ws.AddDate(0, 0, 7).UTC()
}

// weekStartLocal returns local midnight of the Monday beginning this week.
func (m Moment) weekStartLocal() time.Time {
	y, mo, d := m.Local.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, m.Location)

	// time.Weekday numbers Sunday as 0; shift so Monday is the week start.
	offset := (int(m.Weekday) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}
