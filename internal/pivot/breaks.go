package pivot

import (
	"math"

	"example.com/candle-confluence/internal/kline"
)

// BreakKind names a level break.
type BreakKind string

const (
	ResistanceBreak BreakKind = "resistance_break"
	BullWickBreak   BreakKind = "bull_wick_break"
	SupportBreak    BreakKind = "support_break"
	BearWickBreak   BreakKind = "bear_wick_break"
)

// Direction returns "up" for resistance-side breaks and "down" for support-side breaks.
func (k BreakKind) Direction() string {
	switch k {
	case ResistanceBreak, BullWickBreak:
		return "up"
	default:
		return "down"
	}
}

// Break is a single break event.
type Break struct {
	Index int       `json:"index"`
	Kind  BreakKind `json:"kind"`
	Level float64   `json:"level"`
	Close float64   `json:"close"`
}

// Breaks holds the four break columns and the event list.
type Breaks struct {
	Resistance []bool
	BullWick   []bool
	Support    []bool
	BearWick   []bool
	Events     []Break
}

// Column returns the boolean column for kind.
func (b *Breaks) Column(kind BreakKind) []bool {
	switch kind {
	case ResistanceBreak:
		return b.Resistance
	case BullWickBreak:
		return b.BullWick
	case SupportBreak:
		return b.Support
	case BearWickBreak:
		return b.BearWick
	}
	return nil
}

// DetectBreaks marks closes crossing the level in force at the same bar.
//
// Above threshold a crossing is a regular break unless the candle carries a wick in the
// break direction, which makes it a wick break. At or below threshold only wick breaks count.
// A NaN oscillator skips the bar.
func DetectBreaks(cols kline.Columns, lv Levels, volOsc []float64, threshold float64) *Breaks {
	n := cols.Len()
	b := &Breaks{
		Resistance: make([]bool, n),
		BullWick:   make([]bool, n),
		Support:    make([]bool, n),
		BearWick:   make([]bool, n),
	}

	for i := 1; i < n; i++ {
		r, s := lv.Resistance[i], lv.Support[i]
		if math.IsNaN(r) && math.IsNaN(s) {
			continue
		}
		osc := volOsc[i]
		if math.IsNaN(osc) {
			continue
		}
		o, h, l, c := cols.Open[i], cols.High[i], cols.Low[i], cols.Close[i]
		prev := cols.Close[i-1]
		loud := osc > threshold

		if !math.IsNaN(r) && prev <= r && c > r {
			bullWick := o-l > c-o
			switch {
			case loud && !bullWick:
				b.mark(i, ResistanceBreak, r, c)
			case bullWick:
				b.mark(i, BullWickBreak, r, c)
			}
		}

		if !math.IsNaN(s) && prev >= s && c < s {
			bearWick := o-c < h-o
			switch {
			case loud && !bearWick:
				b.mark(i, SupportBreak, s, c)
			case bearWick:
				b.mark(i, BearWickBreak, s, c)
			}
		}
	}
	return b
}

func (b *Breaks) mark(i int, kind BreakKind, level, close float64) {
	b.Column(kind)[i] = true
	b.Events = append(b.Events, Break{Index: i, Kind: kind, Level: level, Close: close})
}

// Result bundles the pivot analysis of a series.
type Result struct {
	Highs  []float64
	Lows   []float64
	Points []Point
	Levels Levels
	Breaks *Breaks
}

// Analyze runs pivot detection, level construction and break detection.
func Analyze(cols kline.Columns, volOsc []float64, p Params) (*Result, error) {
	highs, err := DetectHighs(cols.High, p.Left, p.Right)
	if err != nil {
		return nil, err
	}
	lows, err := DetectLows(cols.Low, p.Left, p.Right)
	if err != nil {
		return nil, err
	}
	lv := ComputeLevels(highs, lows)
	return &Result{
		Highs:  highs,
		Lows:   lows,
		Points: Points(highs, lows),
		Levels: lv,
		Breaks: DetectBreaks(cols, lv, volOsc, p.VolumeThreshold),
	}, nil
}
