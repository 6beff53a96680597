package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Excel serials outside this range are treated as plain numbers, not dates.
const (
	minDateSerial = 20000 // 1954-10-03
	maxDateSerial = 80000 // 2119-01-10
)

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"1-2-2006",
	"01-02-2006",
	"1-2-06",
	"01-02-06",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/06 15:04",
	"1/2/06 3:04 PM",
	"01-02-06 15:04",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04:05PM",
	"3:04PM",
}

// ParseDate reads a calendar date from a cell. Date-times are truncated to
// their date and Excel serial numbers are converted. The result is midnight
// UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < minDateSerial || serial > maxDateSerial {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(math.Floor(serial), false)
		if err != nil {
			return time.Time{}, false
		}
		return dateOf(t), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t), true
		}
	}
	upper := strings.ToUpper(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return dateOf(t), true
		}
	}
	return time.Time{}, false
}

// ParseClock reads a time of day from a cell and returns it as an offset
// from midnight. Excel day fractions and date-times (date part dropped) are
// accepted.
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 || (f >= 1 && (f < minDateSerial || f > maxDateSerial)) {
			return 0, false
		}
		_, frac := math.Modf(f)
		secs := math.Round(frac * 86400)
		if secs >= 86400 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	upper := strings.ToUpper(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return sinceMidnight(t), true
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return sinceMidnight(t), true
		}
	}
	return 0, false
}

// ParseMinutes reads a whole number of minutes. Blank, non-numeric and
// negative cells read as 0; fractions truncate toward zero.
func ParseMinutes(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return int(math.Trunc(f))
}

// ParseInteger reads an integral number such as an MRN. "12345" and the
// float rendering "12345.0" both parse; "12345.5" does not.
func ParseInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
