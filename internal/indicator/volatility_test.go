package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelativeVolume(t *testing.T) {
	tests := []struct {
		name     string
		volumes  []float64
		lookback int
		want     float64
	}{
		{"empty", nil, 60, 0},
		{"single value ranks itself", []float64{500}, 60, 1},
		{"latest is the maximum", []float64{1, 2, 3, 4}, 60, 1},
		{"latest is the minimum", []float64{4, 3, 2, 1}, 60, 0.25},
		{"lookback trims history", []float64{100, 100, 1, 2, 3}, 3, 1},
		{"ties count", []float64{2, 2, 1, 2}, 0, 1},
		{"middle", []float64{1, 3, 4, 2}, 4, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RelativeVolume(tt.volumes, tt.lookback), 1e-12)
		})
	}
}

func TestRealizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility(nil))
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.01, 0.01, 0.01}))
	// population std of {2,4,4,4,5,5,7,9} is 2
	assert.InDelta(t, 2.0, RealizedVolatility([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}

func TestATRPercentile(t *testing.T) {
	history := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 0.0, ATRPercentile(nil, 3))
	assert.InDelta(t, 0.6, ATRPercentile(history, 3), 1e-12)
	assert.Equal(t, 1.0, ATRPercentile(history, 10))
	assert.Equal(t, 0.0, ATRPercentile(history, 0.5))
}

func TestReturns(t *testing.T) {
	r := Returns([]float64{100, 110, 99})
	assert.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.InDelta(t, -0.1, r[1], 1e-12)

	assert.Empty(t, Returns([]float64{100}))
	assert.Len(t, Returns([]float64{0, 1, 2}), 1)
}
