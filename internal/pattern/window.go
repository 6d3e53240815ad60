package pattern

import "math"

// Thresholds holds the size tolerances used by the predicates.
type Thresholds struct {
	Body             float64 `yaml:"body" json:"body"`
	ThreeCandlesBody float64 `yaml:"three_candles_body" json:"three_candles_body"`
	HammerWick       float64 `yaml:"hammer_wick" json:"hammer_wick"`
	SpinningTopWick  float64 `yaml:"spinning_top_wick" json:"spinning_top_wick"`
	ATRPeriod        int     `yaml:"atr_period" json:"atr_period"`
	RoundDecimals    int     `yaml:"round_decimals" json:"round_decimals"`
}

// DefaultThresholds returns the stock tolerances.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Body:             0.0003,
		ThreeCandlesBody: 0.0005,
		HammerWick:       0.0005,
		SpinningTopWick:  0.0003,
		ATRPeriod:        14,
		RoundDecimals:    4,
	}
}

// Window is a read-only view of the series anchored at bar Index.
// O(k), H(k), L(k) and C(k) read bar Index-k.
type Window struct {
	open, high, low, close []float64
	atr                    []float64
	i                      int
	th                     Thresholds
}

// Index returns the anchor bar.
func (w Window) Index() int { return w.i }

// Thresholds returns the tolerances in force.
func (w Window) Thresholds() Thresholds { return w.th }

func (w Window) O(k int) float64 { return w.open[w.i-k] }
func (w Window) H(k int) float64 { return w.high[w.i-k] }
func (w Window) L(k int) float64 { return w.low[w.i-k] }
func (w Window) C(k int) float64 { return w.close[w.i-k] }

// ATR returns the average true range at bar Index-k, or NaN when unavailable.
func (w Window) ATR(k int) float64 {
	j := w.i - k
	if j < 0 || j >= len(w.atr) {
		return math.NaN()
	}
	return w.atr[j]
}

func (w Window) bullish(k int) bool { return w.C(k) > w.O(k) }
func (w Window) bearish(k int) bool { return w.C(k) < w.O(k) }

// roundColumn rounds half to even at the given number of decimals.
func roundColumn(x []float64, decimals int) []float64 {
	scale := math.Pow(10, float64(decimals))
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.RoundToEven(v*scale) / scale
	}
	return out
}
