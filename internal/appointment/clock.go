package appointment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout    = "2006-01-02"
	minutesPerDay = 24 * 60
)

// Clock is a time of day in whole minutes since midnight.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS". Seconds must be zero.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		nums[i] = n
	}

	if nums[0] > 23 || nums[1] > 59 || (len(nums) == 3 && nums[2] != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	return NewClock(nums[0], nums[1]), nil
}

// ClockOf returns the wall clock time of t in its own location.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Add moves the clock forward by d, truncated to whole minutes. The result
// may pass 24:00; callers decide whether that is legal.
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

// Sub returns the duration c-o.
func (c Clock) Sub(o Clock) time.Duration {
	return time.Duration(c-o) * time.Minute
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ISOWeekday maps t to the schedule table's weekday numbering:
// Monday=1 ... Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// CivilDate strips the time of day and location from t, keeping its
// calendar date. Dates are always carried as UTC midnight.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of instant t as observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	return CivilDate(t.In(loc))
}

// At combines a calendar date and a time of day into an instant in loc.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
