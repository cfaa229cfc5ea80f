package survival

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meenmo/ttdlib/calendar"
)

// parseTenor splits tenor strings like "1W", "6M", "10Y" into months and days.
func parseTenor(tenor string) (months, days int, err error) {
	tenor = strings.TrimSpace(strings.ToUpper(tenor))
	if len(tenor) < 2 {
		return 0, 0, fmt.Errorf("%w: bad tenor %q", ErrInvalidCurve, tenor)
	}
	v, convErr := strconv.Atoi(tenor[:len(tenor)-1])
	if convErr != nil || v <= 0 {
		return 0, 0, fmt.Errorf("%w: bad tenor %q", ErrInvalidCurve, tenor)
	}
	switch tenor[len(tenor)-1] {
	case 'D':
		return 0, v, nil
	case 'W':
		return 0, 7 * v, nil
	case 'M':
		return v, 0, nil
	case 'Y':
		return 12 * v, 0, nil
	}
	return 0, 0, fmt.Errorf("%w: bad tenor %q", ErrInvalidCurve, tenor)
}

func tenorDate(anchor time.Time, tenor string, cal calendar.CalendarID) (time.Time, error) {
	months, days, err := parseTenor(tenor)
	if err != nil {
		return time.Time{}, err
	}
	if months > 0 {
		return calendar.CDSMaturity(anchor, months), nil
	}
	return calendar.AdjustFollowing(cal, anchor.AddDate(0, 0, days)), nil
}
