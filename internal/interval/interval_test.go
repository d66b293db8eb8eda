package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test_Duration tests timeframe label parsing with valid and malformed labels.
func Test_Duration(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		expected int64
	}{
		{name: "Three minutes", label: "3m", expected: 180},
		{name: "One hour", label: "1h", expected: 3600},
		{name: "Four hours", label: "4h", expected: 14400},
		{name: "One day", label: "1d", expected: 86400},
		{name: "Fifteen minutes", label: "15m", expected: 900},
		{name: "Empty label falls back", label: "", expected: DefaultDuration},
		{name: "Missing unit falls back", label: "15", expected: DefaultDuration},
		{name: "Unknown unit falls back", label: "5w", expected: DefaultDuration},
		{name: "No magnitude falls back", label: "m", expected: DefaultDuration},
		{name: "Garbage falls back", label: "abc", expected: DefaultDuration},
		{name: "Zero magnitude falls back", label: "0m", expected: DefaultDuration},
		{name: "Negative magnitude falls back", label: "-3m", expected: DefaultDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Duration(tt.label))
		})
	}
}

// Test_BoundaryOf tests candle boundary computation and its idempotence.
func Test_BoundaryOf(t *testing.T) {
	tests := []struct {
		name     string
		time     int64
		duration int64
		expected int64
	}{
		{name: "Mid-bucket", time: 1030, duration: 60, expected: 1020},
		{name: "Exactly on boundary", time: 1020, duration: 60, expected: 1020},
		{name: "One before boundary", time: 1019, duration: 60, expected: 960},
		{name: "Hour bucket", time: 7300, duration: 3600, expected: 7200},
		{name: "Zero time", time: 0, duration: 60, expected: 0},
		{name: "Non-positive duration falls back to default", time: 130, duration: 0, expected: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BoundaryOf(tt.time, tt.duration)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, BoundaryOf(got, tt.duration), "boundary must be idempotent")
		})
	}
}

// Test_NextBoundaryAfter tests the countdown anchor, in particular that a
// timestamp already on a boundary maps to itself.
func Test_NextBoundaryAfter(t *testing.T) {
	tests := []struct {
		name     string
		now      int64
		duration int64
		expected int64
	}{
		{name: "Mid-bucket rounds up", now: 1030, duration: 60, expected: 1080},
		{name: "On boundary stays put", now: 1020, duration: 60, expected: 1020},
		{name: "One past boundary", now: 1021, duration: 60, expected: 1080},
		{name: "Hour bucket", now: 3601, duration: 3600, expected: 7200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextBoundaryAfter(tt.now, tt.duration))
		})
	}
}

// Test_Remaining tests countdown seconds, including the zero-at-boundary case.
func Test_Remaining(t *testing.T) {
	assert.Equal(t, int64(50), Remaining(1030, 60))
	assert.Equal(t, int64(0), Remaining(1020, 60), "remaining at an exact boundary is zero, not the full duration")
	assert.Equal(t, int64(59), Remaining(1021, 60))
}

// Test_FormatRemaining tests the two display layouts.
func Test_FormatRemaining(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{name: "Zero", seconds: 0, expected: "00:00"},
		{name: "Under a minute", seconds: 42, expected: "00:42"},
		{name: "Minutes and seconds", seconds: 185, expected: "03:05"},
		{name: "Just under an hour", seconds: 3599, expected: "59:59"},
		{name: "Exactly one hour", seconds: 3600, expected: "1:00:00"},
		{name: "Hours", seconds: 13507, expected: "3:45:07"},
		{name: "Negative clamps to zero", seconds: -5, expected: "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRemaining(tt.seconds))
		})
	}
}
