package queue

import (
	"fmt"
	"time"
)

// Schedule computes the next run of a periodic job.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }
func (s intervalSchedule) String() string                { return fmt.Sprintf("every %v", s.every) }

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := from.Truncate(time.Hour).Add(time.Duration(s.minute) * time.Minute)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string { return fmt.Sprintf("hourly at :%02d", s.minute) }

type dailySchedule struct {
	hour, minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute) }

type weeklySchedule struct {
	weekday      time.Weekday
	hour, minute int
}

func (s weeklySchedule) Next(from time.Time) time.Time {
	days := (int(s.weekday) - int(from.Weekday()) + 7) % 7
	d := from.AddDate(0, 0, days)
	next := time.Date(d.Year(), d.Month(), d.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (s weeklySchedule) String() string {
	return fmt.Sprintf("weekly on %s at %02d:%02d", s.weekday, s.hour, s.minute)
}

// locatedSchedule evaluates its inner schedule in a fixed location.
type locatedSchedule struct {
	inner Schedule
	loc   *time.Location
}

func (s locatedSchedule) Next(from time.Time) time.Time {
	return s.inner.Next(from.In(s.loc)).In(from.Location())
}

func (s locatedSchedule) String() string { return s.inner.String() + " " + s.loc.String() }

// Every runs at a fixed interval from the previous run.
func Every(d time.Duration) Schedule { return intervalSchedule{every: d} }

// HourlyAt runs every hour at the given minute.
func HourlyAt(minute int) Schedule { return hourlySchedule{minute: minute} }

// DailyAt runs once a day at hour:minute.
func DailyAt(hour, minute int) Schedule { return dailySchedule{hour: hour, minute: minute} }

// WeeklyOn runs once a week on weekday at hour:minute.
func WeeklyOn(weekday time.Weekday, hour, minute int) Schedule {
	return weeklySchedule{weekday: weekday, hour: hour, minute: minute}
}

// In evaluates s in loc, so DailyAt(9, 0) fires at 09:00 local time of loc.
// A nil loc means UTC.
func In(loc *time.Location, s Schedule) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return locatedSchedule{inner: s, loc: loc}
}
