package indicators

import (
	"fmt"
	"math"

	"github.com/solquant/harness/backtester/common"
	gctmath "github.com/solquant/harness/common/math"
)

func checkFinite(values ...float64) error {
	if !gctmath.IsFinite(values...) {
		return fmt.Errorf("%w %w %v", common.ErrStrategy, errNonFiniteInput, values)
	}
	return nil
}

// NewSMA returns a simple moving average over period inputs
func NewSMA(period int) (SMA, error) {
	if period <= 0 {
		return SMA{}, fmt.Errorf("%w %w sma %d", common.ErrConfiguration, errInvalidPeriod, period)
	}
	return SMA{period: period, window: make([]float64, period)}, nil
}

// Update adds x to the window and returns the current average
func (s *SMA) Update(x float64) (float64, error) {
	if err := checkFinite(x); err != nil {
		return s.value, err
	}
	s.window[s.next] = x
	s.next = (s.next + 1) % s.period
	if s.count < s.period {
		s.count++
	}
	if s.count == s.period {
		s.value = gctmath.ArithmeticAverage(s.window)
	}
	return s.value, nil
}

// Ready reports whether period inputs have been seen
func (s *SMA) Ready() bool { return s.count >= s.period }

// Value returns the last computed average
func (s *SMA) Value() float64 { return s.value }

// Window returns the inputs currently in the window, oldest first
func (s *SMA) Window() []float64 {
	out := make([]float64, 0, s.count)
	start := 0
	if s.count == s.period {
		start = s.next
	}
	for i := 0; i < s.count; i++ {
		out = append(out, s.window[(start+i)%s.period])
	}
	return out
}

// Reset clears all state
func (s *SMA) Reset() {
	clear(s.window)
	s.next, s.count, s.value = 0, 0, 0
}

// NewEMA returns an exponential moving average with alpha 2/(period+1)
func NewEMA(period int) (EMA, error) {
	if period <= 0 {
		return EMA{}, fmt.Errorf("%w %w ema %d", common.ErrConfiguration, errInvalidPeriod, period)
	}
	return EMA{period: period, alpha: 2 / float64(period+1)}, nil
}

// Update feeds x and returns the current average
func (e *EMA) Update(x float64) (float64, error) {
	if err := checkFinite(x); err != nil {
		return e.value, err
	}
	e.count++
	switch {
	case e.count < e.period:
		e.sum += x
	case e.count == e.period:
		e.sum += x
		e.value = e.sum / float64(e.period)
	default:
		e.value = e.alpha*x + (1-e.alpha)*e.value
	}
	return e.value, nil
}

// Ready reports whether the seed average has been formed
func (e *EMA) Ready() bool { return e.count >= e.period }

// Value returns the last computed average
func (e *EMA) Value() float64 { return e.value }

// Reset clears all state
func (e *EMA) Reset() {
	e.count, e.sum, e.value = 0, 0, 0
}

// NewRSI returns a relative strength index over period price changes
func NewRSI(period int) (RSI, error) {
	if period <= 0 {
		return RSI{}, fmt.Errorf("%w %w rsi %d", common.ErrConfiguration, errInvalidPeriod, period)
	}
	return RSI{period: period, value: 50}, nil
}

// Update feeds a closing price. Until period changes have been seen, and
// whenever the average loss is zero, the previous value is kept. The first
// value is 50
func (r *RSI) Update(x float64) (float64, error) {
	if err := checkFinite(x); err != nil {
		return r.value, err
	}
	r.count++
	if !r.hasValue {
		r.prev, r.hasValue = x, true
		return r.value, nil
	}
	delta := x - r.prev
	r.prev = x
	gain, loss := math.Max(delta, 0), math.Max(-delta, 0)
	changes := r.count - 1
	p := float64(r.period)
	switch {
	case changes < r.period:
		r.avgGain += gain
		r.avgLoss += loss
		return r.value, nil
	case changes == r.period:
		r.avgGain = (r.avgGain + gain) / p
		r.avgLoss = (r.avgLoss + loss) / p
	default:
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
	if r.avgLoss == 0 {
		return r.value, nil
	}
	r.value = 100 - 100/(1+r.avgGain/r.avgLoss)
	return r.value, nil
}

// Ready reports whether period price changes have been seen
func (r *RSI) Ready() bool { return r.count >= r.period+1 }

// Value returns the last computed index
func (r *RSI) Value() float64 { return r.value }

// Reset clears all state
func (r *RSI) Reset() {
	*r = RSI{period: r.period, value: 50}
}

// NewATR returns an average true range over period bars
func NewATR(period int) (ATR, error) {
	if period <= 0 {
		return ATR{}, fmt.Errorf("%w %w atr %d", common.ErrConfiguration, errInvalidPeriod, period)
	}
	return ATR{period: period}, nil
}

// Update feeds one bar. True range needs a previous close, so the first bar
// only seeds it
func (a *ATR) Update(high, low, closePrice float64) (float64, error) {
	if err := checkFinite(high, low, closePrice); err != nil {
		return a.value, err
	}
	a.count++
	if a.count == 1 {
		a.prevClose = closePrice
		return a.value, nil
	}
	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	a.prevClose = closePrice
	ranges := a.count - 1
	p := float64(a.period)
	switch {
	case ranges < a.period:
		a.sum += tr
	case ranges == a.period:
		a.value = (a.sum + tr) / p
	default:
		a.value = (a.value*(p-1) + tr) / p
	}
	return a.value, nil
}

// Ready reports whether period true ranges have been averaged
func (a *ATR) Ready() bool { return a.count >= a.period+1 }

// Value returns the last computed average true range
func (a *ATR) Value() float64 { return a.value }

// Reset clears all state
func (a *ATR) Reset() {
	*a = ATR{period: a.period}
}

// NewMACD returns a MACD with the given fast, slow and signal periods
func NewMACD(fast, slow, signalPeriod int) (MACD, error) {
	if fast >= slow {
		return MACD{}, fmt.Errorf("%w %w %d/%d", common.ErrConfiguration, errInvalidPeriods, fast, slow)
	}
	f, err := NewEMA(fast)
	if err != nil {
		return MACD{}, err
	}
	s, err := NewEMA(slow)
	if err != nil {
		return MACD{}, err
	}
	sig, err := NewEMA(signalPeriod)
	if err != nil {
		return MACD{}, err
	}
	return MACD{fast: f, slow: s, signal: sig}, nil
}

// Update feeds a closing price and returns the histogram
func (m *MACD) Update(x float64) (float64, error) {
	if _, err := m.fast.Update(x); err != nil {
		return m.histogram, err
	}
	if _, err := m.slow.Update(x); err != nil {
		return m.histogram, err
	}
	if !m.slow.Ready() {
		return m.histogram, nil
	}
	m.line = m.fast.Value() - m.slow.Value()
	if _, err := m.signal.Update(m.line); err != nil {
		return m.histogram, err
	}
	if m.signal.Ready() {
		m.prevHist = m.histogram
		m.histogram = m.line - m.signal.Value()
		m.histCount++
	}
	return m.histogram, nil
}

// Ready reports whether the signal line has been formed
func (m *MACD) Ready() bool { return m.signal.Ready() }

// Line returns fast EMA minus slow EMA
func (m *MACD) Line() float64 { return m.line }

// Signal returns the EMA of the MACD line
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns the MACD line minus the signal line
func (m *MACD) Histogram() float64 { return m.histogram }

// Rising reports whether the histogram grew on the last update. It needs two
// histogram values
func (m *MACD) Rising() bool { return m.histCount >= 2 && m.histogram > m.prevHist }

// Falling reports whether the histogram shrank on the last update. It needs
// two histogram values
func (m *MACD) Falling() bool { return m.histCount >= 2 && m.histogram < m.prevHist }

// Reset clears all state
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.line, m.histogram, m.prevHist, m.histCount = 0, 0, 0, 0
}

// NewBollinger returns bands k population standard deviations either side of
// an SMA over period inputs
func NewBollinger(period int, k float64) (Bollinger, error) {
	if k <= 0 || !gctmath.IsFinite(k) {
		return Bollinger{}, fmt.Errorf("%w %w %v", common.ErrConfiguration, errInvalidK, k)
	}
	sma, err := NewSMA(period)
	if err != nil {
		return Bollinger{}, err
	}
	return Bollinger{sma: sma, k: k}, nil
}

// Update feeds x and returns the middle band
func (b *Bollinger) Update(x float64) (float64, error) {
	mid, err := b.sma.Update(x)
	if err != nil {
		return mid, err
	}
	if b.sma.Ready() {
		b.stdDev = gctmath.PopulationStandardDeviation(b.sma.window)
	}
	return mid, nil
}

// Ready reports whether the window is full
func (b *Bollinger) Ready() bool { return b.sma.Ready() }

// Middle returns the moving average
func (b *Bollinger) Middle() float64 { return b.sma.Value() }

// Upper returns the upper band
func (b *Bollinger) Upper() float64 { return b.sma.Value() + b.k*b.stdDev }

// Lower returns the lower band
func (b *Bollinger) Lower() float64 { return b.sma.Value() - b.k*b.stdDev }

// StdDev returns the population standard deviation of the window
func (b *Bollinger) StdDev() float64 { return b.stdDev }

// ZScore returns how many standard deviations x sits from the middle band.
// A zero deviation returns 0
func (b *Bollinger) ZScore(x float64) float64 {
	if b.stdDev == 0 {
		return 0
	}
	return (x - b.sma.Value()) / b.stdDev
}

// Reset clears all state
func (b *Bollinger) Reset() {
	b.sma.Reset()
	b.stdDev = 0
}
