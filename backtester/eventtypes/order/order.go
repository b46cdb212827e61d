package order

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/solquant/harness/backtester/common"
	gctmath "github.com/solquant/harness/common/math"
)

// Next returns a UUIDv5 derived from the symbol, bar time and the run's
// order sequence, so identical replays yield identical IDs
func (g *IDGenerator) Next(symbol string, t time.Time) string {
	g.seq++
	name := symbol + "|" + strconv.FormatInt(t.UnixNano(), 10) + "|" + strconv.FormatUint(g.seq, 10)
	return uuid.NewV5(uuid.NamespaceOID, name).String()
}

// Reset restarts the sequence
func (g *IDGenerator) Reset() {
	g.seq = 0
}

// Validate checks the order can be executed
func (o *Order) Validate() error {
	if o == nil {
		return common.ErrNilArguments
	}
	if o.ID == "" {
		return fmt.Errorf("%w %w", common.ErrExecution, errMissingID)
	}
	if o.Side != common.Buy && o.Side != common.Sell {
		return fmt.Errorf("%w %w %q", common.ErrExecution, errInvalidSide, o.Side)
	}
	if o.Quantity <= 0 || !gctmath.IsFinite(o.Quantity) {
		return fmt.Errorf("%w %w %v", common.ErrExecution, errInvalidQuantity, o.Quantity)
	}
	switch o.Type {
	case Market:
	case Limit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("%w %w", common.ErrExecution, errMissingLimit)
		}
	default:
		return fmt.Errorf("%w %w %q", common.ErrExecution, errInvalidType, o.Type)
	}
	return nil
}
