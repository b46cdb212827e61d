package exchange

import (
	"context"
	"fmt"

	"github.com/solquant/harness/backtester/chain"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/order"
	"github.com/solquant/harness/common/request"
	"github.com/solquant/harness/log"
	"golang.org/x/time/rate"
)

// NewChainExecutor wraps client. A nil retrier uses DefaultRetrier and a nil
// limiter does not limit
func NewChainExecutor(client chain.Client, retrier *Retrier, limiter *rate.Limiter) (*ChainExecutor, error) {
	if client == nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errNilClient)
	}
	if retrier == nil {
		retrier = DefaultRetrier()
	}
	if limiter == nil {
		limiter = request.NewRateLimit(0, 0)
	}
	return &ChainExecutor{client: client, retrier: retrier, limiter: limiter}, nil
}

// ExecuteOrder submits o with the bar close as the reference price
func (c *ChainExecutor) ExecuteOrder(ctx context.Context, o *order.Order, b *kline.Bar) (*fill.Fill, error) {
	if b == nil {
		return nil, common.ErrNilArguments
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	var f *fill.Fill
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w %w", common.ErrInterrupted, err)
		}
		var err error
		f, err = c.client.Submit(ctx, o, b.Close)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Infof(log.Execution, "%s %s %.6f filled @ %.6f fee %.6f (%s)", f.Symbol, f.Side, f.Quantity, f.Price, f.FeeQuote, f.RationaleTag)
	return f, nil
}

// Balance returns the client's quote balance
func (c *ChainExecutor) Balance(ctx context.Context) (float64, error) {
	var bal float64
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		bal, err = c.client.Balance(ctx)
		return err
	})
	return bal, err
}
