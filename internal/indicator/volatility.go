package indicator

import "math"

// DefaultVolumeLookback is the window RelativeVolume ranks against
const DefaultVolumeLookback = 60

// RelativeVolume ranks the latest volume within the trailing lookback
// window: the fraction of window values less than or equal to it. The
// latest value is part of its own window, so any non-empty input yields a
// result in (0,1]. A non-positive lookback uses DefaultVolumeLookback.
func RelativeVolume(volumes []float64, lookback int) float64 {
	if len(volumes) == 0 {
		return 0
	}
	if lookback <= 0 {
		lookback = DefaultVolumeLookback
	}
	window := volumes[max(0, len(volumes)-lookback):]
	return rank(window, window[len(window)-1])
}

// RealizedVolatility is the population standard deviation of returns
func RealizedVolatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(returns)))
}

// ATRPercentile returns the fraction of history less than or equal to atr
func ATRPercentile(history []float64, atr float64) float64 {
	if len(history) == 0 {
		return 0
	}
	return rank(history, atr)
}

// Returns converts a price series to simple period returns. Zero prices
// are skipped as divisors.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

func rank(values []float64, v float64) float64 {
	n := 0
	for _, x := range values {
		if x <= v {
			n++
		}
	}
	return float64(n) / float64(len(values))
}
