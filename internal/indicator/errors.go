// Package indicator computes technical indicator columns over a fully materialised candle series.
//
// Every column is aligned 1:1 with its input. NaN marks warm-up and other undefined positions.
package indicator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is returned when a period, window or multiplier is out of range.
var ErrInvalidParameter = errors.New("invalid indicator parameter")

func checkPeriod(name string, p int) error {
	if p <= 0 {
		return fmt.Errorf("%w: %s=%d must be positive", ErrInvalidParameter, name, p)
	}
	return nil
}

// nanColumn returns a column of n NaNs.
func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
