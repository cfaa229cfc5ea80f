package calendar

import "time"

// CalendarID identifies a holiday calendar.
type CalendarID string

const (
	// Weekends treats every Saturday and Sunday as a holiday and nothing else.
	Weekends CalendarID = "WEEKENDS"
	TARGET   CalendarID = "TARGET"
	USD      CalendarID = "USD"
	JPN      CalendarID = "JPN"
)

var holidays = map[CalendarID]map[string]struct{}{
	TARGET: setOf(
		"2025-01-01", "2025-04-18", "2025-04-21", "2025-05-01", "2025-12-25", "2025-12-26",
		"2026-01-01", "2026-04-03", "2026-04-06", "2026-05-01", "2026-12-25", "2026-12-26",
	),
	USD: setOf(
		"2025-01-01", "2025-01-20", "2025-02-17", "2025-05-26", "2025-06-19", "2025-07-04",
		"2025-09-01", "2025-10-13", "2025-11-11", "2025-11-27", "2025-12-25",
		"2026-01-01", "2026-01-19", "2026-02-16", "2026-05-25", "2026-06-19", "2026-07-03",
		"2026-09-07", "2026-10-12", "2026-11-11", "2026-11-26", "2026-12-25",
	),
	JPN: setOf(
		"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-13", "2025-02-11", "2025-02-24",
		"2025-03-20", "2025-04-29", "2025-05-05", "2025-05-06", "2025-07-21", "2025-08-11",
		"2025-09-15", "2025-09-23", "2025-10-13", "2025-11-03", "2025-11-24", "2025-12-31",
	),
}

func setOf(days ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(days))
	for _, d := range days {
		m[d] = struct{}{}
	}
	return m
}

func isHoliday(cal CalendarID, t time.Time) bool {
	set, ok := holidays[cal]
	if !ok {
		return false
	}
	_, ok = set[t.Format("2006-01-02")]
	return ok
}

// IsBusinessDay checks weekends and holiday sets.
func IsBusinessDay(cal CalendarID, t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(cal, t)
}

// Adjust applies Modified Following.
func Adjust(cal CalendarID, t time.Time) time.Time {
	origMonth := t.Month()
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	if t.Month() != origMonth {
		t = t.AddDate(0, 0, -1)
		for !IsBusinessDay(cal, t) {
			t = t.AddDate(0, 0, -1)
		}
	}
	return t
}

// AdjustFollowing applies a simple Following convention (no month preservation).
// CDS premium dates roll this way.
func AdjustFollowing(cal CalendarID, t time.Time) time.Time {
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func AddBusinessDays(cal CalendarID, t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if IsBusinessDay(cal, t) {
			n -= step
		}
	}
	return t
}

// NextIMMDate returns the first CDS roll date (20 Mar/Jun/Sep/Dec) strictly after t.
func NextIMMDate(t time.Time) time.Time {
	y := t.Year()
	for _, m := range []time.Month{time.March, time.June, time.September, time.December} {
		d := time.Date(y, m, 20, 0, 0, 0, 0, time.UTC)
		if d.After(t) {
			return d
		}
	}
	return time.Date(y+1, time.March, 20, 0, 0, 0, 0, time.UTC)
}

// CDSMaturity returns the unadjusted standard maturity of a CDS traded on tradeDate
// with the given tenor in months. Standard maturities sit on the IMM date following
// tradeDate + tenor, ignoring the semi-annual roll.
func CDSMaturity(tradeDate time.Time, tenorMonths int) time.Time {
	return NextIMMDate(tradeDate.AddDate(0, tenorMonths, 0).AddDate(0, 0, -1))
}
