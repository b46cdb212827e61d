package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReasons(t *testing.T) {
	t.Parallel()
	b := Base{Symbol: "SOL/USDC", Time: time.Unix(1, 0)}
	assert.Empty(t, b.GetReason())
	assert.Nil(t, b.GetReasons())

	b.AppendReason("ema cross")
	b.AppendReason("")
	b.AppendReasonf("rsi %.1f", 42.0)
	assert.Equal(t, "ema cross. rsi 42.0", b.GetReason())

	r := b.GetReasons()
	r[0] = "mutated"
	assert.Equal(t, "ema cross", b.Reasons[0])
	assert.Equal(t, "SOL/USDC", b.GetSymbol())
	assert.Equal(t, time.Unix(1, 0), b.GetTime())
}
