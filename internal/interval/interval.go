// Package interval implements the candle boundary arithmetic shared by the
// aggregator and the countdown ticker.
//
// All functions are pure. Timestamps and durations are Unix seconds, which
// keeps boundary alignment exact without any floating-point involvement.
package interval

import (
	"fmt"
	"strconv"
)

// DefaultDuration is the fallback candle duration in seconds applied when a
// timeframe label cannot be parsed. Malformed labels degrade rather than fail.
const DefaultDuration int64 = 60

// Duration converts a timeframe label such as "3m", "1h" or "4h" to its
// duration in seconds. The trailing unit is one of m (minutes), h (hours) or
// d (days); a missing or unrecognized unit, or a non-positive magnitude,
// falls back to DefaultDuration. Duration never fails.
func Duration(label string) int64 {
	if len(label) < 2 {
		return DefaultDuration
	}

	value, err := strconv.ParseInt(label[:len(label)-1], 10, 64)
	if err != nil || value <= 0 {
		return DefaultDuration
	}

	switch label[len(label)-1] {
	case 'm':
		return value * 60
	case 'h':
		return value * 3600
	case 'd':
		return value * 86400
	default:
		return DefaultDuration
	}
}

// BoundaryOf returns the open timestamp of the candle containing t, i.e.
// floor(t/duration)*duration. The result is idempotent: applying BoundaryOf
// to its own output yields the same value.
func BoundaryOf(t, duration int64) int64 {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return t / duration * duration
}

// NextBoundaryAfter returns the first candle boundary at or after now, i.e.
// ceil(now/duration)*duration. When now lies exactly on a boundary the result
// is now itself, so a zero countdown means "the new candle just opened", not
// "a full period remains".
func NextBoundaryAfter(now, duration int64) int64 {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return (now + duration - 1) / duration * duration
}

// Remaining returns the number of seconds from now until the next candle
// boundary. At an exact boundary the remaining time is zero.
func Remaining(now, duration int64) int64 {
	return NextBoundaryAfter(now, duration) - now
}

// FormatRemaining renders a remaining-seconds value for the countdown
// display: "H:MM:SS" when at least one hour remains, "MM:SS" otherwise.
// Negative inputs are clamped to zero.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := seconds / 3600
	minutes := seconds % 3600 / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
