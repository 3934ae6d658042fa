package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ist(day string, hour, min int) time.Time {
	d, err := time.ParseInLocation("2006-01-02", day, IndiaLocation)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:45")
	require.NoError(t, err)
	assert.Equal(t, Clock(9*60+45), c)
	assert.Equal(t, "09:45", c.String())

	for _, bad := range []string{"", "915", "24:00", "09:60", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestClockOnAndOf(t *testing.T) {
	day := ist("2026-08-28", 11, 20)
	at := MustClock("15:15").On(day)
	assert.Equal(t, 15, at.Hour())
	assert.Equal(t, 15, at.Minute())
	assert.Equal(t, Clock(15*60+15), ClockOf(at))
}

func TestInWindow(t *testing.T) {
	start, end := MustClock("09:45"), MustClock("15:15")

	assert.False(t, InWindow(ist("2026-08-28", 9, 44), start, end))
	assert.True(t, InWindow(ist("2026-08-28", 9, 45), start, end))
	assert.True(t, InWindow(ist("2026-08-28", 12, 0), start, end))
	// Half-open: the end minute is outside.
	assert.False(t, InWindow(ist("2026-08-28", 15, 15), start, end))

	// An empty window matches nothing.
	noon := MustClock("12:00")
	assert.False(t, InWindow(ist("2026-08-28", 12, 0), noon, noon))
}

func TestIsMarketHours(t *testing.T) {
	// 2026-08-28 is a Friday.
	assert.True(t, IsMarketHours(ist("2026-08-28", 10, 0)))
	assert.False(t, IsMarketHours(ist("2026-08-28", 9, 0)))
	assert.False(t, IsMarketHours(ist("2026-08-28", 15, 30)))
	// Saturday and Sunday.
	assert.False(t, IsMarketHours(ist("2026-08-29", 10, 0)))
	assert.False(t, IsMarketHours(ist("2026-08-30", 10, 0)))
}

func TestNextMarketOpen(t *testing.T) {
	// Before Friday's open: same day.
	next := NextMarketOpen(ist("2026-08-28", 8, 0))
	assert.Equal(t, ist("2026-08-28", 9, 15), next)

	// After Friday's open: skips the weekend to Monday.
	next = NextMarketOpen(ist("2026-08-28", 10, 0))
	assert.Equal(t, ist("2026-08-31", 9, 15), next)
}

func TestWeeklyExpiry(t *testing.T) {
	// NIFTY weeklies expire on Tuesday. 2026-09-01 is a Tuesday.
	assert.Equal(t, "2026-09-01", WeeklyExpiry(ist("2026-08-28", 10, 0)).Format("2006-01-02"))
	assert.Equal(t, "2026-09-01", WeeklyExpiry(ist("2026-08-31", 10, 0)).Format("2006-01-02"))

	// Expiry day itself, during the session.
	assert.Equal(t, "2026-09-01", WeeklyExpiry(ist("2026-09-01", 10, 0)).Format("2006-01-02"))
	// After the close it rolls a week.
	assert.Equal(t, "2026-09-08", WeeklyExpiry(ist("2026-09-01", 15, 30)).Format("2006-01-02"))
}

func TestDaysToExpiry(t *testing.T) {
	expiry := ist("2026-09-01", 0, 0)

	assert.Equal(t, 4, DaysToExpiry(ist("2026-08-28", 10, 0), expiry))
	assert.Equal(t, 1, DaysToExpiry(ist("2026-08-31", 23, 0), expiry))
	assert.Equal(t, 0, DaysToExpiry(ist("2026-09-01", 10, 0), expiry))
	// Past expiry clamps to zero.
	assert.Equal(t, 0, DaysToExpiry(ist("2026-09-02", 10, 0), expiry))
}

func TestATMStrike(t *testing.T) {
	assert.Equal(t, 24500, ATMStrike(24510, 50))
	assert.Equal(t, 24550, ATMStrike(24530, 50))
	assert.Equal(t, 24500, ATMStrike(24500, 50))
	// A non-positive step falls back to the NIFTY 50-point grid.
	assert.Equal(t, 24500, ATMStrike(24510, 0))
	assert.Equal(t, 24500, ATMStrike(24490, 100))
}
