// Package divergence flags price/oscillator divergences at swing points.
package divergence

import (
	"fmt"
	"math"
	"sort"

	"example.com/candle-confluence/internal/indicator"
)

// SwingRadius is the half-width of the centred window that defines a swing.
const SwingRadius = 2

// Kind is the divergence direction.
type Kind string

const (
	KindBearish Kind = "bearish" // higher price high, lower oscillator high
	KindBullish Kind = "bullish" // lower price low, higher oscillator low
)

// Params holds divergence scan settings.
type Params struct {
	Lookback int `yaml:"lookback" json:"lookback"`
}

// DefaultParams returns the stock lookback of 20 bars.
func DefaultParams() Params {
	return Params{Lookback: 20}
}

// Validate rejects windows too small to hold two swings.
func (p Params) Validate() error {
	if p.Lookback <= SwingRadius {
		return fmt.Errorf("%w: divergence lookback=%d must exceed %d", indicator.ErrInvalidParameter, p.Lookback, SwingRadius)
	}
	return nil
}

// Divergence is one flagged swing pair.
type Divergence struct {
	Kind      Kind    `json:"kind"`
	PrevIndex int     `json:"prev_index"`
	Index     int     `json:"index"`
	Known     int     `json:"known"` // first bar at which the flag is fully determined
	PrevPrice float64 `json:"prev_price"`
	Price     float64 `json:"price"`
	PrevOsc   float64 `json:"prev_osc"`
	Osc       float64 `json:"osc"`
}

// Flags holds divergence columns. Bearish and Bullish are set at the later
// swing and read bars after it; the Known columns carry the same flags at
// the bar where they first become knowable.
type Flags struct {
	Bearish      []bool
	Bullish      []bool
	BearishKnown []bool
	BullishKnown []bool
	Events       []Divergence
}

// SwingHighs returns the positions j where high[j] is the maximum of
// high[j-2..j+2]. Ties all qualify.
func SwingHighs(high []float64) []int {
	return swings(high, func(a, b float64) bool { return a >= b })
}

// SwingLows returns the positions j where low[j] is the minimum of low[j-2..j+2].
func SwingLows(low []float64) []int {
	return swings(low, func(a, b float64) bool { return a <= b })
}

func swings(x []float64, holds func(a, b float64) bool) []int {
	var out []int
	for j := SwingRadius; j+SwingRadius < len(x); j++ {
		if math.IsNaN(x[j]) {
			continue
		}
		ok := true
		for k := j - SwingRadius; k <= j+SwingRadius && ok; k++ {
			ok = !math.IsNaN(x[k]) && holds(x[j], x[k])
		}
		if ok {
			out = append(out, j)
		}
	}
	return out
}

// Detect scans every bar i in [lookback, n-lookback) for the two latest
// swings inside the window [i-lookback, i+lookback] and flags the later one
// when price and osc disagree. Swings are derived once for the whole series;
// a swing belongs to a window when its centred neighbourhood fits inside it.
func Detect(high, low, osc []float64, p Params) (*Flags, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(high)
	if len(low) != n || len(osc) != n {
		return nil, fmt.Errorf("%w: column lengths differ (%d, %d, %d)", indicator.ErrInvalidParameter, n, len(low), len(osc))
	}
	f := &Flags{
		Bearish:      make([]bool, n),
		Bullish:      make([]bool, n),
		BearishKnown: make([]bool, n),
		BullishKnown: make([]bool, n),
	}

	highs := SwingHighs(high)
	lows := SwingLows(low)
	seen := make(map[pairKey]bool)
	lb := p.Lookback

	for i := lb; i < n-lb; i++ {
		lo, hi := i-lb+SwingRadius, i+lb-SwingRadius
		if a, b, ok := lastTwo(highs, lo, hi); ok && high[b] > high[a] && less(osc, b, a) {
			f.flag(pairKey{KindBearish, a, b}, high, osc, lb, seen)
		}
		if a, b, ok := lastTwo(lows, lo, hi); ok && low[b] < low[a] && less(osc, a, b) {
			f.flag(pairKey{KindBullish, a, b}, low, osc, lb, seen)
		}
	}
	sort.SliceStable(f.Events, func(x, y int) bool { return f.Events[x].Index < f.Events[y].Index })
	return f, nil
}

// less reports osc[a] < osc[b], false when either side is NaN.
func less(osc []float64, a, b int) bool {
	if math.IsNaN(osc[a]) || math.IsNaN(osc[b]) {
		return false
	}
	return osc[a] < osc[b]
}

// lastTwo returns the two latest positions of sorted within [lo, hi].
func lastTwo(sorted []int, lo, hi int) (int, int, bool) {
	end := sort.SearchInts(sorted, hi+1)
	if end < 2 || sorted[end-2] < lo {
		return 0, 0, false
	}
	return sorted[end-2], sorted[end-1], true
}

type pairKey struct {
	kind Kind
	a, b int
}

func (f *Flags) flag(key pairKey, price, osc []float64, lookback int, seen map[pairKey]bool) {
	if seen[key] {
		return
	}
	seen[key] = true
	n := len(price)
	kind, a, b := key.kind, key.a, key.b

	// The earliest window holding b as its latest swing ends at b+radius,
	// and no window starts before bar lookback.
	known := b + SwingRadius
	if known < 2*lookback {
		known = 2 * lookback
	}
	f.Events = append(f.Events, Divergence{
		Kind: kind, PrevIndex: a, Index: b, Known: known,
		PrevPrice: price[a], Price: price[b], PrevOsc: osc[a], Osc: osc[b],
	})
	if kind == KindBearish {
		f.Bearish[b] = true
		if known < n {
			f.BearishKnown[known] = true
		}
		return
	}
	f.Bullish[b] = true
	if known < n {
		f.BullishKnown[known] = true
	}
}

// Overbought marks rsi > level. NaN reads as false.
func Overbought(rsi []float64, level float64) []bool {
	out := make([]bool, len(rsi))
	for i, v := range rsi {
		out[i] = !math.IsNaN(v) && v > level
	}
	return out
}

// Oversold marks rsi < level. NaN reads as false.
func Oversold(rsi []float64, level float64) []bool {
	out := make([]bool, len(rsi))
	for i, v := range rsi {
		out[i] = !math.IsNaN(v) && v < level
	}
	return out
}
