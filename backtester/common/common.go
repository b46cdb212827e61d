package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Direction returns +1 for buys, -1 for sells and 0 otherwise
func (s Side) Direction() int {
	switch s {
	case Buy:
		return 1
	case Sell:
		return -1
	}
	return 0
}

// Opposite returns the side that reduces a position opened on s
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return Flat
}

// IsValid reports whether s is one of the known sides
func (s Side) IsValid() bool {
	return s == Buy || s == Sell || s == Flat
}

// ParseSide converts a case-insensitive side name into a Side
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToLower(strings.TrimSpace(s)))
	if !side.IsValid() {
		return "", fmt.Errorf("%w: unrecognised side %q", ErrData, s)
	}
	return side, nil
}

// SideFromQuantity returns the side that holds a signed quantity
func SideFromQuantity(qty float64) Side {
	switch {
	case qty > 0:
		return Buy
	case qty < 0:
		return Sell
	}
	return Flat
}

// ExitCode maps a run error onto the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitNormal
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	}
	return ExitRuntime
}

// AppendError joins a new error onto an existing one, ignoring nils
func AppendError(original, incoming error) error {
	if incoming == nil {
		return original
	}
	if original == nil {
		return incoming
	}
	return errors.Join(original, incoming)
}
