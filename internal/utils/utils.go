// Package utils provides common validation helpers for symbols and
// timeframe labels.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Error definitions for validation functions
var (
	ErrNoTimeframes      = errors.New("zero timeframes requested")
	ErrTooManyTimeframes = errors.New("too many timeframes requested")
)

// timeframeUnits lists the duration suffixes a timeframe label may carry.
var timeframeUnits = map[byte]bool{'m': true, 'h': true, 'd': true}

// ValidateSymbol validates an exchange trading symbol such as "BTCUSDT":
// non-empty, ASCII letters and digits only.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol cannot be empty")
	}

	for _, r := range symbol {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !isDigit {
			return fmt.Errorf("invalid symbol %q: letters and digits only", symbol)
		}
	}

	return nil
}

// ValidateTimeframe validates a timeframe label: a positive integer magnitude
// followed by one of the units m, h or d (e.g. "3m", "1h", "4h").
//
// Note the aggregation layer itself tolerates malformed labels by falling
// back to a default duration; this validation exists so labels from clients
// and configuration are rejected at the edge instead of silently degrading.
func ValidateTimeframe(label model.Timeframe) error {
	s := string(label)
	if len(s) < 2 {
		return fmt.Errorf("invalid timeframe %q: expected <number><m|h|d>", s)
	}

	if !timeframeUnits[s[len(s)-1]] {
		return fmt.Errorf("invalid timeframe %q: unit must be m, h or d", s)
	}

	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return fmt.Errorf("invalid timeframe %q: magnitude must be a positive integer", s)
	}

	return nil
}

// ValidateTimeframes validates a requested timeframe list and enforces a
// count limit.
func ValidateTimeframes(timeframes []model.Timeframe, maxAllowed int) error {
	if len(timeframes) == 0 {
		return ErrNoTimeframes
	}

	if maxAllowed <= 0 {
		return fmt.Errorf("%w: max allowed must be positive, got %d",
			ErrTooManyTimeframes, maxAllowed)
	}

	if len(timeframes) > maxAllowed {
		return fmt.Errorf("%w: requested %d timeframes, maximum allowed %d",
			ErrTooManyTimeframes, len(timeframes), maxAllowed)
	}

	for i, tf := range timeframes {
		if err := ValidateTimeframe(tf); err != nil {
			return fmt.Errorf("invalid timeframe at index %d: %w", i, err)
		}
	}

	return nil
}

// ParseTimeframes splits a comma-separated timeframe list from configuration.
func ParseTimeframes(s string) []model.Timeframe {
	parts := strings.Split(s, ",")
	out := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, model.Timeframe(p))
		}
	}
	return out
}
