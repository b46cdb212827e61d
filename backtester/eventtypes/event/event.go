package event

import (
	"fmt"
	"strings"
	"time"
)

// GetSymbol returns the symbol the event is for
func (b *Base) GetSymbol() string {
	return b.Symbol
}

// GetTime returns the time of the event
func (b *Base) GetTime() time.Time {
	return b.Time
}

// AppendReason adds reasoning for a decision being made
func (b *Base) AppendReason(y string) {
	if y == "" {
		return
	}
	b.Reasons = append(b.Reasons, y)
}

// AppendReasonf adds formatted reasoning for a decision being made
func (b *Base) AppendReasonf(y string, addons ...any) {
	b.AppendReason(fmt.Sprintf(y, addons...))
}

// GetReason returns the accumulated reasons joined into one line
func (b *Base) GetReason() string {
	return strings.Join(b.Reasons, ". ")
}

// GetReasons returns a copy of every reason appended to the event
func (b *Base) GetReasons() []string {
	if len(b.Reasons) == 0 {
		return nil
	}
	return append([]string(nil), b.Reasons...)
}
