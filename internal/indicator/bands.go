package indicator

import "math"

// Bollinger holds the middle band and the bands k population deviations away.
type Bollinger struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// ComputeBollinger returns SMA(close, period) ± k·σ.
func ComputeBollinger(close []float64, period int, k float64) Bollinger {
	mid := SMA(close, period)
	sd := StdDev(close, period)
	n := len(close)
	b := Bollinger{Middle: mid, Upper: nanColumn(n), Lower: nanColumn(n)}
	for i := 0; i < n; i++ {
		if math.IsNaN(mid[i]) || math.IsNaN(sd[i]) {
			continue
		}
		b.Upper[i] = mid[i] + k*sd[i]
		b.Lower[i] = mid[i] - k*sd[i]
	}
	return b
}

// Envelopes holds the K envelopes: long moving averages of highs and lows.
type Envelopes struct {
	Upper []float64
	Lower []float64
}

// ComputeEnvelopes returns SMA(high, lookback) and SMA(low, lookback).
func ComputeEnvelopes(high, low []float64, lookback int) Envelopes {
	return Envelopes{
		Upper: SMA(high, lookback),
		Lower: SMA(low, lookback),
	}
}

// Inside reports whether price sits strictly between the envelopes at i.
// Undefined envelopes read as outside.
func (e Envelopes) Inside(i int, price float64) bool {
	if i < 0 || i >= len(e.Upper) {
		return false
	}
	up, lo := e.Upper[i], e.Lower[i]
	if math.IsNaN(up) || math.IsNaN(lo) {
		return false
	}
	return lo < price && price < up
}

// ATR returns the rolling mean of the true range over period.
func ATR(high, low, close []float64, period int) []float64 {
	return SMA(TrueRange(high, low, close), period)
}
