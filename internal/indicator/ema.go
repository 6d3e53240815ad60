package indicator

import "math"

// EMAState is one step of an exponential moving average fold.
// The first value seeds the average; later values blend with Alpha = 2/(span+1).
type EMAState struct {
	Alpha  float64
	Value  float64
	Seeded bool
}

// NewEMAState returns an unseeded fold for the given span.
func NewEMAState(span int) EMAState {
	return EMAState{Alpha: 2.0 / (float64(span) + 1.0)}
}

// Next folds x into the average. NaN inputs leave the state unchanged.
func (s EMAState) Next(x float64) EMAState {
	if math.IsNaN(x) {
		return s
	}
	if !s.Seeded {
		s.Value = x
		s.Seeded = true
		return s
	}
	s.Value = s.Alpha*x + (1-s.Alpha)*s.Value
	return s
}

// EMA returns the exponential moving average of x with ema[0] = x[0].
// Positions before the first non-NaN input are NaN.
func EMA(x []float64, span int) []float64 {
	out := nanColumn(len(x))
	if span <= 0 {
		return out
	}
	st := NewEMAState(span)
	for i, v := range x {
		st = st.Next(v)
		if st.Seeded {
			out[i] = st.Value
		}
	}
	return out
}
