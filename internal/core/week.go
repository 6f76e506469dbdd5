package core

import (
	"fmt"
	"time"
)

// weekStartDays maps a weekly-period name to the weekday the reporting week
// starts on.
var weekStartDays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// WeekStartDay resolves a weekly-period name to its start weekday.
// Unknown or empty names default to Sunday.
func WeekStartDay(period string) time.Weekday {
	if d, ok := weekStartDays[period]; ok {
		return d
	}
	return time.Sunday
}

// PeriodForDate determines which weekly period applies to date.
//
// When history rows exist they are authoritative: the most recent change
// effective on or before the date wins, and dates before the first recorded
// change use the first row. Without history the profile's current period
// applies, except for dates before the day the period was last changed,
// where the previous period is not stored and a sunday/monday flip is the
// best available guess.
func PeriodForDate(date time.Time, p Profile, history []PeriodChange) string {
	day := DateOf(date)

	if len(history) > 0 {
		// History is sorted ascending by effective date; the last row at or
		// before the target day wins.
		period := ""
		for _, ch := range history {
			if !ch.EffectiveFrom.After(day.Time) {
				period = ch.Period
			}
		}
		if period != "" {
			return period
		}
		return history[0].Period
	}

	current := p.WeeklyPeriod
	if current == "" {
		current = "sunday"
	}
	if p.WeeklyPeriodUpdatedAt.IsZero() {
		return current
	}
	changed := DateOf(p.WeeklyPeriodUpdatedAt)
	if day.Before(changed.Time) {
		if current == "sunday" {
			return "monday"
		}
		return "sunday"
	}
	return current
}

// WeekStartOn returns the start of the week containing date for a week that
// begins on start.
func WeekStartOn(date time.Time, start time.Weekday) Date {
	day := DateOf(date)
	back := (int(day.Weekday()) - int(start) + 7) % 7
	return day.AddDays(-back)
}

// WeekEndOn returns the last day of the inclusive 7-day window.
func WeekEndOn(date time.Time, start time.Weekday) Date {
	return WeekStartOn(date, start).AddDays(6)
}

// UserWeekStart resolves the week start for date under the user's period
// settings and recorded period changes.
func UserWeekStart(date time.Time, p Profile, history []PeriodChange) Date {
	return WeekStartOn(date, WeekStartDay(PeriodForDate(date, p, history)))
}

// UserWeekEnd resolves the week end for date under the user's settings.
func UserWeekEnd(date time.Time, p Profile, history []PeriodChange) Date {
	return UserWeekStart(date, p, history).AddDays(6)
}

// WeekLabel renders the display label for a week, e.g. "Aug 31 - Sep 06, 2026".
func WeekLabel(start, end Date) string {
	return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
}

// PeriodDisplayName renders a period as "Sunday to Saturday".
func PeriodDisplayName(period string) string {
	start := WeekStartDay(period)
	end := (int(start) + 6) % 7
	return fmt.Sprintf("%s to %s", dayNames[int(start)], dayNames[end])
}

// WeeksInRange counts the weeks spanned by an inclusive date range: the day
// span divided by 7, rounded up. Degenerate or invalid ranges count as one
// week so fixed-deduction scaling never drops to zero.
func WeeksInRange(start, end Date) int {
	if start.IsZero() || end.IsZero() || end.Before(start.Time) {
		return 1
	}
	days := int(end.Sub(start.Time).Hours()/24) + 1
	weeks := (days + 6) / 7
	if weeks < 1 {
		return 1
	}
	return weeks
}
