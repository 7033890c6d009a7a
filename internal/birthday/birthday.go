// Package birthday parses and formats the partial dates users type into the data peek.
//
// Accepted shapes, with "-" or "/" as separator:
//
//	YYYY-MM-DD   year, month, day
//	DD-MM-YYYY   day, month, year (any 3-part input not starting with 4 digits)
//	YYYY-MM      year and month, no day
//	MM-DD        month, day when the first value is <= 12
//	DD-MM        day, month otherwise
//
// The 2-part rule is ambiguous by construction: "06-03" is always June 3.
package birthday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalid is returned for any input that does not match an accepted shape
	// or names an impossible calendar date.
	ErrInvalid = errors.New("invalid birthday format")
	// ErrEmpty is returned by Parse for empty or whitespace-only input.
	ErrEmpty = fmt.Errorf("%w: empty input", ErrInvalid)
)

const (
	minYear = 1000
	maxYear = 9999
)

// Date is a parsed, possibly partial, birthday. Month and Day are either both set or
// both nil; YYYY-MM input carries only Year and Raw.
type Date struct {
	Year  *int
	Month *int
	Day   *int
	// Raw is the normalized input kept as display fallback.
	Raw string
}

// Normalize trims the input and turns "/" separators into "-".
func Normalize(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "/", "-")
}

// Parse converts a free-form birthday string into a Date.
func Parse(raw string) (Date, error) {
	norm := Normalize(raw)
	if norm == "" {
		return Date{}, ErrEmpty
	}

	parts := strings.Split(norm, "-")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := segment(p)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalid, raw)
		}
		nums[i] = n
	}

	var year, month, day int
	hasYear, hasDay := false, true

	switch len(parts) {
	case 3:
		hasYear = true
		if len(parts[0]) == 4 {
			year, month, day = nums[0], nums[1], nums[2]
		} else {
			day, month, year = nums[0], nums[1], nums[2]
		}
	case 2:
		switch {
		case len(parts[0]) == 4:
			year, month = nums[0], nums[1]
			hasYear, hasDay = true, false
		case nums[0] <= 12:
			month, day = nums[0], nums[1]
		default:
			day, month = nums[0], nums[1]
		}
	default:
		return Date{}, fmt.Errorf("%w: %q", ErrInvalid, raw)
	}

	if hasYear && (year < minYear || year > maxYear) {
		return Date{}, fmt.Errorf("%w: year %d out of range", ErrInvalid, year)
	}
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("%w: month %d out of range", ErrInvalid, month)
	}

	d := Date{Raw: norm}
	if hasYear {
		d.Year = intPtr(year)
	}
	// Year-month input keeps only the year; month and day are set together or not at all.
	if hasDay {
		leapYear := 2000
		if hasYear {
			leapYear = year
		}
		if day < 1 || day > daysIn(time.Month(month), leapYear) {
			return Date{}, fmt.Errorf("%w: day %d out of range", ErrInvalid, day)
		}
		d.Month, d.Day = intPtr(month), intPtr(day)
	}
	return d, nil
}

// Display renders the date the way Format does.
func (d Date) Display() string {
	return Format(d.Year, d.Month, d.Day, d.Raw)
}

// Format renders "Mar 6" or "Mar 6 2008" when month and day are known and falls
// back to raw otherwise.
func Format(year, month, day *int, raw string) string {
	if month == nil || day == nil || *month < 1 || *month > 12 {
		return raw
	}
	s := fmt.Sprintf("%s %d", time.Month(*month).String()[:3], *day)
	if year != nil {
		s += fmt.Sprintf(" %d", *year)
	}
	return s
}

// DaysAlive returns the number of calendar days between the birthday and now (UTC).
// ok is false when any part is missing or the date lies in the future.
func DaysAlive(year, month, day *int, now time.Time) (days int, ok bool) {
	if year == nil || month == nil || day == nil {
		return 0, false
	}
	born := time.Date(*year, time.Month(*month), *day, 0, 0, 0, 0, time.UTC)
	n := now.UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	if born.After(today) {
		return 0, false
	}
	return int((today.Unix() - born.Unix()) / 86400), true
}

func segment(s string) (int, error) {
	if s == "" {
		return 0, ErrInvalid
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalid
		}
	}
	return strconv.Atoi(s)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func intPtr(v int) *int { return &v }
