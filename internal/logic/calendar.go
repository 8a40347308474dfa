package logic

import "fmt"

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

const (
	secondsPerDay = 24 * 60 * 60

	// The Gregorian leap pattern repeats every 400 years from any start year
	daysPer400Years = 146097
)

// IsLeapYear reports whether y is a Gregorian leap year.
func IsLeapYear(y int) bool {
	return y > 0 && y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func yearDays(y int) uint64 {
	if IsLeapYear(y) {
		return 366
	}
	return 365
}

func daysInMonth(y, m int) int {
	if m == 2 && IsLeapYear(y) {
		return 29
	}
	return monthDays[m-1]
}

// Breaktime converts seconds since 1970-01-01T00:00:00Z into calendar fields.
// Whole 400-year cycles are skipped, so the year walk takes at most 400 steps
// for any input.
func Breaktime(t uint64) Calendar {
	var c Calendar

	c.Second = int(t % 60)
	t /= 60
	c.Minute = int(t % 60)
	t /= 60
	c.Hour = int(t % 24)
	days := t / 24

	// 1970-01-01 was a Thursday
	c.Weekday = int((days+4)%7) + 1

	c.Year = 1970 + 400*int(days/daysPer400Years)
	days %= daysPer400Years
	for {
		n := yearDays(c.Year)
		if days < n {
			break
		}
		days -= n
		c.Year++
	}

	c.Month = 1
	for c.Month < 12 {
		n := uint64(daysInMonth(c.Year, c.Month))
		if days < n {
			break
		}
		days -= n
		c.Month++
	}
	c.Day = int(days) + 1

	return c
}

// EpochSeconds is the inverse of Breaktime. Weekday is ignored.
// Dates before 1970 are not representable and yield 0.
func EpochSeconds(c Calendar) uint64 {
	if c.Year < 1970 {
		return 0
	}
	cycles := (c.Year - 1970) / 400
	days := uint64(cycles) * daysPer400Years
	for y := 1970 + 400*cycles; y < c.Year; y++ {
		days += yearDays(y)
	}
	for m := 1; m < c.Month; m++ {
		days += uint64(daysInMonth(c.Year, m))
	}
	days += uint64(c.Day - 1)
	return days*secondsPerDay + uint64(c.Hour)*3600 + uint64(c.Minute)*60 + uint64(c.Second)
}

// LocalCalendar applies a UTC offset in seconds and breaks the result down.
// A local time before the Unix epoch is clamped to the epoch.
func LocalCalendar(epoch uint64, offset int64) Calendar {
	if offset < 0 && uint64(-offset) > epoch {
		return Breaktime(0)
	}
	return Breaktime(uint64(int64(epoch) + offset))
}

// NTPToUnix converts an NTP seconds field to Unix epoch seconds.
// Values below NTPEpochOffset belong to NTP era 1 (from 2036-02-07).
func NTPToUnix(seconds uint32) uint64 {
	s := uint64(seconds)
	if s < NTPEpochOffset {
		s += 1 << 32
	}
	return s - NTPEpochOffset
}

// String formats the calendar as "YYYY-MM-DD hh:mm:ss".
func (c Calendar) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}
