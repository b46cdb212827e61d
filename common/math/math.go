package math

import (
	"math"
)

// BasisPoints is the number of basis points in one whole
const BasisPoints = 10000

// CalculatePercentageGainOrLoss returns the fractional rise of priceNow over
// priceThen. A zero priceThen returns 0
func CalculatePercentageGainOrLoss(priceNow, priceThen float64) float64 {
	if priceThen == 0 {
		return 0
	}
	return (priceNow - priceThen) / priceThen
}

// RoundFloat rounds your floating point number to the desired decimal place
func RoundFloat(x float64, prec int) float64 {
	pow := math.Pow(10, float64(prec))
	return math.Round(x*pow) / pow
}

// Clamp bounds v to [lower, upper]
func Clamp(v, lower, upper float64) float64 {
	return math.Max(lower, math.Min(upper, v))
}

// IsFinite reports whether every value is neither NaN nor infinite
func IsFinite(values ...float64) bool {
	for i := range values {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return false
		}
	}
	return true
}

// PopulationStandardDeviation calculates standard deviation using population based calculation
func PopulationStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	avg := ArithmeticAverage(values)
	var combined float64
	for x := range values {
		combined += (values[x] - avg) * (values[x] - avg)
	}
	return math.Sqrt(combined / float64(len(values)))
}

// SampleStandardDeviation standard deviation is a statistic that
// measures the dispersion of a dataset relative to its mean and
// is calculated as the square root of the variance
func SampleStandardDeviation(vals []float64) float64 {
	if len(vals) <= 1 {
		return 0
	}
	mean := ArithmeticAverage(vals)
	var combined float64
	for i := range vals {
		combined += (vals[i] - mean) * (vals[i] - mean)
	}
	return math.Sqrt(combined / float64(len(vals)-1))
}

// ArithmeticAverage is the basic form of calculating an average.
// Divide the sum of all values by the length of values
func ArithmeticAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumOfValues float64
	for x := range values {
		sumOfValues += values[x]
	}
	return sumOfValues / float64(len(values))
}

// CalculateSharpeRatio returns the annualised sharpe ratio of per period
// returns. Fewer than two returns or zero deviation yield 0
func CalculateSharpeRatio(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) <= 1 {
		return 0
	}
	excessReturns := make([]float64, len(returns))
	for i := range returns {
		excessReturns[i] = returns[i] - riskFreeRate
	}
	standardDeviation := SampleStandardDeviation(excessReturns)
	if standardDeviation == 0 || math.IsNaN(standardDeviation) {
		return 0
	}
	return ArithmeticAverage(excessReturns) / standardDeviation * math.Sqrt(periodsPerYear)
}

// CalculateSortinoRatio returns the annualised sortino ratio of per period
// returns. Without downside movement it returns 0
func CalculateSortinoRatio(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) <= 1 {
		return 0
	}
	var totalNegativeResultsSquared float64
	for x := range returns {
		if d := returns[x] - riskFreeRate; d < 0 {
			totalNegativeResultsSquared += d * d
		}
	}
	if totalNegativeResultsSquared == 0 {
		return 0
	}
	averageDownsideDeviation := math.Sqrt(totalNegativeResultsSquared / float64(len(returns)))
	return (ArithmeticAverage(returns) - riskFreeRate) / averageDownsideDeviation * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the largest peak to trough decline of an equity curve
// as a fraction of the peak, in [0, 1]
func MaxDrawdown(equity []float64) float64 {
	var peak, worst float64
	for i := range equity {
		if equity[i] > peak {
			peak = equity[i]
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - equity[i]) / peak; dd > worst {
			worst = dd
		}
	}
	return Clamp(worst, 0, 1)
}
