// Package pivot finds swing pivots, the support/resistance step function derived from them,
// and volume-confirmed breaks of those levels.
package pivot

import (
	"fmt"
	"math"

	"example.com/candle-confluence/internal/indicator"
)

// Kind distinguishes pivot highs from pivot lows.
type Kind string

const (
	KindHigh Kind = "high"
	KindLow  Kind = "low"
)

// Point is a confirmed pivot.
type Point struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
	Kind  Kind    `json:"kind"`
}

// Params configures pivot detection and break confirmation.
type Params struct {
	Left            int     `yaml:"left_bars" json:"left_bars"`
	Right           int     `yaml:"right_bars" json:"right_bars"`
	VolumeThreshold float64 `yaml:"volume_threshold" json:"volume_threshold"`
}

// DefaultParams returns 15/15 bars with a volume oscillator threshold of 20.
func DefaultParams() Params {
	return Params{Left: 15, Right: 15, VolumeThreshold: 20}
}

// Validate rejects negative bar counts.
func (p Params) Validate() error {
	if p.Left < 0 || p.Right < 0 {
		return fmt.Errorf("%w: left=%d right=%d must not be negative", indicator.ErrInvalidParameter, p.Left, p.Right)
	}
	return nil
}

// ValidateWindow reports whether a series of length n can hold any pivot window.
func (p Params) ValidateWindow(n int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if need := p.Left + p.Right + 1; n < need {
		return fmt.Errorf("%w: series of %d bars is shorter than pivot window %d", indicator.ErrInvalidParameter, n, need)
	}
	return nil
}

// DetectHighs returns the pivot high price at each pivot position and NaN elsewhere.
// A pivot high is the window maximum and strictly above both neighbours, so flat tops never qualify.
func DetectHighs(high []float64, left, right int) ([]float64, error) {
	return detect(high, left, right, func(a, b float64) bool { return a > b })
}

// DetectLows is the mirror of DetectHighs.
func DetectLows(low []float64, left, right int) ([]float64, error) {
	return detect(low, left, right, func(a, b float64) bool { return a < b })
}

// detect finds positions whose value beats every other value in [i-left, i+right] or ties them,
// while strictly beating the immediate neighbours.
func detect(x []float64, left, right int, better func(a, b float64) bool) ([]float64, error) {
	if left < 0 || right < 0 {
		return nil, fmt.Errorf("%w: left=%d right=%d must not be negative", indicator.ErrInvalidParameter, left, right)
	}
	n := len(x)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < left+right+1 {
		return out, nil
	}

	for i := left; i < n-right; i++ {
		v := x[i]
		if math.IsNaN(v) {
			continue
		}
		extreme := true
		for j := i - left; j <= i+right; j++ {
			if better(x[j], v) {
				extreme = false
				break
			}
		}
		if !extreme {
			continue
		}
		if i > 0 && i < n-1 {
			if !better(v, x[i-1]) || !better(v, x[i+1]) {
				continue
			}
		}
		out[i] = v
	}
	return out, nil
}

// Points lists every pivot in index order. Highs come before lows on the same bar.
func Points(highs, lows []float64) []Point {
	var pts []Point
	for i := range highs {
		if !math.IsNaN(highs[i]) {
			pts = append(pts, Point{Index: i, Price: highs[i], Kind: KindHigh})
		}
		if i < len(lows) && !math.IsNaN(lows[i]) {
			pts = append(pts, Point{Index: i, Price: lows[i], Kind: KindLow})
		}
	}
	return pts
}
