package indicator

import "math"

// ADX holds the average directional index and the two directional indicators.
type ADX struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// TrueRange returns max(h-l, |h-c[t-1]|, |l-c[t-1]|), with TR[0] = h-l.
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	tr := make([]float64, n)
	for t := 0; t < n; t++ {
		tr[t] = high[t] - low[t]
		if t == 0 {
			continue
		}
		tr[t] = math.Max(tr[t], math.Max(math.Abs(high[t]-close[t-1]), math.Abs(low[t]-close[t-1])))
	}
	return tr
}

// directionalMovement returns +DM and -DM with the exclusive rule: only the larger
// positive move counts, ties count for neither.
func directionalMovement(high, low []float64) (plus, minus []float64) {
	n := len(high)
	plus = make([]float64, n)
	minus = make([]float64, n)
	for t := 1; t < n; t++ {
		up := high[t] - high[t-1]
		down := low[t-1] - low[t]
		switch {
		case up > down && up > 0:
			plus[t] = up
		case down > up && down > 0:
			minus[t] = down
		}
	}
	return plus, minus
}

// ComputeADX applies Wilder's method.
//
// Smoothed TR and DM are seeded with the sum of raw values 1..period at index period.
// DI is defined from index period and ADX from 2*period-1. ADX continues with
// adx - adx/period + dx, which adds DX unscaled.
func ComputeADX(high, low, close []float64, period int) ADX {
	n := len(close)
	res := ADX{
		ADX:     nanColumn(n),
		PlusDI:  nanColumn(n),
		MinusDI: nanColumn(n),
	}
	if period <= 0 || n <= period {
		return res
	}

	tr := TrueRange(high, low, close)
	plusDM, minusDM := directionalMovement(high, low)

	sTR := NewWilderState(period, SeedSum)
	sPlus := NewWilderState(period, SeedSum)
	sMinus := NewWilderState(period, SeedSum)
	sADX := NewWilderState(period, SeedMean)

	for t := 1; t < n; t++ {
		sTR = sTR.Next(tr[t])
		sPlus = sPlus.Next(plusDM[t])
		sMinus = sMinus.Next(minusDM[t])
		if !sTR.Ready {
			continue
		}

		pdi, mdi := 0.0, 0.0
		if sTR.Value != 0 {
			pdi = 100 * sPlus.Value / sTR.Value
			mdi = 100 * sMinus.Value / sTR.Value
		}
		res.PlusDI[t] = pdi
		res.MinusDI[t] = mdi

		dx := 0.0
		if pdi+mdi != 0 {
			dx = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
		sADX = sADX.Next(dx)
		if sADX.Ready {
			res.ADX[t] = sADX.Value
		}
	}
	return res
}
