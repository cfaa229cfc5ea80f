package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-03-20")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-20", FormatDate(d))

	_, err = ParseDate("20250320")
	require.Error(t, err)
}

func TestTruncateDay(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, TruncateDay(start, -3))
	assert.Equal(t, start, TruncateDay(start, 0.99))
	assert.Equal(t, start.AddDate(0, 0, 31), TruncateDay(start, 31.7))
}

func TestYearFraction(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.0, YearFraction(start, end, "ACT/365F"), 1e-12)
	assert.InDelta(t, 365.0/360.0, YearFraction(start, end, "ACT/360"), 1e-12)
	assert.InDelta(t, 1.0, YearFraction(start, end, "30/360"), 1e-12)
}
