// Package periods centralises ISO week and calendar bucket computation for
// the claims engine. Week windows are computed once and passed around as
// (start, end) pairs; nothing else in the engine derives week boundaries.
package periods

import "time"

// Window is an inclusive [Monday, Sunday] date range in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the date falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekOf returns the ISO week window containing the date.
func WeekOf(t time.Time) Window {
	d := DateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDate(0, 0, -offset)
	return Window{Start: monday, End: monday.AddDate(0, 0, 6)}
}

// MonthWeeks returns the natural Monday-to-Sunday week rows covering the
// month, in order. Edge rows may include days of the adjacent months, same
// as a printed calendar page.
func MonthWeeks(year int, month time.Month) []Window {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1)
	var weeks []Window
	for w := WeekOf(first); !w.Start.After(lastDay); w = WeekOf(w.Start.AddDate(0, 0, 7)) {
		weeks = append(weeks, w)
	}
	return weeks
}

// WeekOfMonth resolves the 1-indexed week row of a month. Out-of-range
// indices clamp to the first or last valid week.
func WeekOfMonth(year int, month time.Month, index int) Window {
	weeks := MonthWeeks(year, month)
	if index < 1 {
		index = 1
	}
	if index > len(weeks) {
		index = len(weeks)
	}
	return weeks[index-1]
}

// Granularity selects the bucket size for period breakdowns.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Valid reports whether the granularity is one of the known values.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// BucketStart maps a date onto the start of its bucket for the granularity.
func BucketStart(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		return WeekOf(t).Start
	case GranularityMonth:
		d := DateOf(t)
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return DateOf(t)
	}
}
