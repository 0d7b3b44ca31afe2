// Package birthday holds the calendar arithmetic behind the notification sweep.
//
// All functions work on civil dates: the time-of-day and zone of the supplied
// "today" only matter for deciding which calendar day it is. Differences are
// computed between UTC midnights so daylight-saving transitions can't turn a
// 3-day gap into 2 days and 23 hours.
package birthday

import (
	"fmt"
	"time"

	"github.com/sakif/birthday-reminder/internal/apperror"
	"github.com/sakif/birthday-reminder/internal/model"
)

// daysInMonth is indexed by time.Month and uses leap-year February so that
// Feb 29 is a valid birthday.
var daysInMonth = [...]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Validate checks that b names a real calendar day.
func Validate(b model.Birthday) error {
	if b.Month < 1 || b.Month > 12 {
		return apperror.ValidationFailed("birthday.month", "birthday month must be between 1 and 12")
	}
	if limit := daysInMonth[b.Month]; b.Day < 1 || b.Day > limit {
		return apperror.ValidationFailed("birthday.day",
			fmt.Sprintf("birthday day must be between 1 and %d for month %d", limit, b.Month))
	}
	return nil
}

// IsLeap reports whether year is a Gregorian leap year.
func IsLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// InYear returns the date b is observed on in the given year, as a UTC midnight.
// A Feb 29 birthday is observed on Feb 28 in non-leap years.
func InYear(b model.Birthday, year int) time.Time {
	day := b.Day
	if b.Month == int(time.February) && day == 29 && !IsLeap(year) {
		day = 28
	}
	return time.Date(year, time.Month(b.Month), day, 0, 0, 0, 0, time.UTC)
}

// Date truncates t to its calendar day, as a UTC midnight.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// OccursOn reports whether b is observed on today's calendar day.
func OccursOn(b model.Birthday, today time.Time) bool {
	return InYear(b, today.Year()).Equal(Date(today))
}

// Next returns the next observed occurrence of b on or after today.
// A birthday that already passed this year rolls over to next year.
func Next(b model.Birthday, today time.Time) time.Time {
	d := Date(today)
	next := InYear(b, d.Year())
	if next.Before(d) {
		next = InYear(b, d.Year()+1)
	}
	return next
}

// DaysUntil returns the number of days from today to the next occurrence of b.
// It is 0 on the birthday itself.
func DaysUntil(b model.Birthday, today time.Time) int {
	return int(Next(b, today).Sub(Date(today)).Hours() / 24)
}
