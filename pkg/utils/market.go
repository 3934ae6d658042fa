package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// NowIST returns the current time in the Indian market timezone.
func NowIST() time.Time {
	return time.Now().In(IndiaLocation)
}

// Clock is a wall-clock time of day in IST, minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" into a Clock.
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock parses "HH:MM", panicking on malformed input. Use only for
// compile-time constants.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf extracts the Clock from a time, in IST.
func ClockOf(t time.Time) Clock {
	ist := t.In(IndiaLocation)
	return Clock(ist.Hour()*60 + ist.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On anchors the clock onto a calendar day in IST.
func (c Clock) On(day time.Time) time.Time {
	d := day.In(IndiaLocation)
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, IndiaLocation)
}

var (
	marketOpen  = MustClock("09:15")
	marketClose = MustClock("15:30")
)

// IsMarketHours reports whether t falls inside the NSE trading session.
func IsMarketHours(t time.Time) bool {
	ist := t.In(IndiaLocation)
	if ist.Weekday() == time.Saturday || ist.Weekday() == time.Sunday {
		return false
	}
	c := ClockOf(ist)
	return c >= marketOpen && c < marketClose
}

// InWindow reports whether t falls in [start, end) on the same day.
func InWindow(t time.Time, start, end Clock) bool {
	c := ClockOf(t)
	return c >= start && c < end
}

// NextMarketOpen returns the next session open after t.
func NextMarketOpen(t time.Time) time.Time {
	ist := t.In(IndiaLocation)
	next := marketOpen.On(ist)
	if !ist.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// WeeklyExpiry returns the nearest NIFTY weekly expiry on or after t.
// NIFTY weekly contracts expire on Tuesday; a Tuesday after market
// close rolls to the following week.
func WeeklyExpiry(t time.Time) time.Time {
	ist := t.In(IndiaLocation)
	daysAhead := (int(time.Tuesday) - int(ist.Weekday()) + 7) % 7
	if daysAhead == 0 && ClockOf(ist) >= marketClose {
		daysAhead = 7
	}
	exp := ist.AddDate(0, 0, daysAhead)
	return time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, IndiaLocation)
}

// DaysToExpiry returns whole calendar days from t to expiry, never
// negative.
func DaysToExpiry(t, expiry time.Time) int {
	ist := t.In(IndiaLocation)
	day := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IndiaLocation)
	d := int(expiry.Sub(day).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ATMStrike rounds the spot price to the nearest NIFTY strike step.
func ATMStrike(spot float64, step int) int {
	if step <= 0 {
		step = 50
	}
	return int((spot+float64(step)/2)/float64(step)) * step
}
