package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA returns the rolling mean of x over window w.
// Positions before the first full window are NaN, as is any window that contains a NaN.
func SMA(x []float64, w int) []float64 {
	n := len(x)
	out := nanColumn(n)
	if w <= 0 {
		return out
	}

	// Skip a leading NaN prefix (an upstream warm-up) and hand the rest to talib.
	start := 0
	for start < n && math.IsNaN(x[start]) {
		start++
	}
	tail := x[start:]
	if len(tail) < w {
		return out
	}
	if hasNaN(tail) {
		return rollingMeanNaN(x, w)
	}

	// talib.Sma leaves zeros in its lookback prefix; only positions with a full window are copied.
	sma := talib.Sma(tail, w)
	for j := w - 1; j < len(tail); j++ {
		out[start+j] = sma[j]
	}
	return out
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// rollingMeanNaN is the slow path for columns with interior gaps: a window containing NaN is NaN.
func rollingMeanNaN(x []float64, w int) []float64 {
	out := nanColumn(len(x))
	for i := w - 1; i < len(x); i++ {
		sum := 0.0
		ok := true
		for j := i - w + 1; j <= i; j++ {
			if math.IsNaN(x[j]) {
				ok = false
				break
			}
			sum += x[j]
		}
		if ok {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// StdDev returns the rolling population standard deviation of x over window w.
func StdDev(x []float64, w int) []float64 {
	n := len(x)
	out := nanColumn(n)
	if w <= 0 || n < w || hasNaN(x) {
		return out
	}
	sd := talib.StdDev(x, w, 1.0)
	for i := w - 1; i < n; i++ {
		out[i] = sd[i]
	}
	return out
}
