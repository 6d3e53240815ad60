package pivot

import "math"

// Levels is the forward-filled resistance and support step function.
type Levels struct {
	Resistance []float64
	Support    []float64
}

// ComputeLevels forward-fills pivot highs into resistance and pivot lows into support.
// Positions before the first pivot are NaN.
func ComputeLevels(highs, lows []float64) Levels {
	return Levels{
		Resistance: forwardFill(highs),
		Support:    forwardFill(lows),
	}
}

func forwardFill(x []float64) []float64 {
	out := make([]float64, len(x))
	cur := math.NaN()
	for i, v := range x {
		if !math.IsNaN(v) {
			cur = v
		}
		out[i] = cur
	}
	return out
}

// LevelsFromPoints rebuilds the step function of length n from a point list.
func LevelsFromPoints(points []Point, n int) Levels {
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = math.NaN()
		lows[i] = math.NaN()
	}
	for _, p := range points {
		if p.Index < 0 || p.Index >= n {
			continue
		}
		switch p.Kind {
		case KindHigh:
			highs[p.Index] = p.Price
		case KindLow:
			lows[p.Index] = p.Price
		}
	}
	return ComputeLevels(highs, lows)
}
