package utils

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// ParseDate converts YYYY-MM-DD to a UTC midnight time.Time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseDate: %w", err)
	}
	return t, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t time.Time) string {
	return t.Format(dayLayout)
}

// SortDates sorts a slice of time.Time in ascending order.
func SortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
}

// Days returns the (fractional) number of calendar days between two dates.
func Days(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24
}

// AddDays offsets start by a fractional number of days. The result keeps
// sub-day precision; use TruncateDay to land on a calendar date.
func AddDays(start time.Time, days float64) time.Time {
	if math.IsNaN(days) {
		return start
	}
	days = math.Max(-maxDays, math.Min(days, maxDays))
	whole := math.Floor(days)
	return start.AddDate(0, 0, int(whole)).Add(time.Duration((days - whole) * float64(24*time.Hour)))
}

// TruncateDay returns start advanced by the whole number of days in days,
// discarding the fractional part. Negative inputs clamp to start.
func TruncateDay(start time.Time, days float64) time.Time {
	if days <= 0 || math.IsNaN(days) {
		return start
	}
	if days > maxDays {
		days = maxDays
	}
	return start.AddDate(0, 0, int(math.Floor(days)))
}

// maxDays keeps AddDate well inside time.Time range for runaway solves.
const maxDays = 1e6

// RoundTo rounds a float to the specified decimal places.
func RoundTo(val float64, decimals uint32) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
