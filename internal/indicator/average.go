package indicator

// SMA calculates Simple Moving Average
// Returns slice of length: len(values) - period + 1
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(values)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	result = append(result, sum/float64(period))

	// Rolling window
	for i := period; i < len(values); i++ {
		sum = sum - values[i-period] + values[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average, seeded with the SMA of the
// first period values.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}
	seed := SMA(values[:period], period)

	result := make([]float64, 0, len(values)-period+1)
	multiplier := 2.0 / float64(period+1)

	ema := seed[0]
	result = append(result, ema)
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// Last returns the final element, or def for an empty series
func Last(series []float64, def float64) float64 {
	if len(series) == 0 {
		return def
	}
	return series[len(series)-1]
}
