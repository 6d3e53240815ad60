package pattern

import (
	"sort"

	talibcdl "github.com/iwat/talib-cdl-go"

	"example.com/candle-confluence/internal/kline"
)

// cdlScanner wraps one talib-cdl function. fixed forces the direction for
// single-sided patterns; DirectionNone means "use the sign". gapped patterns
// depend on price gaps that rarely occur on 24/7 markets.
type cdlScanner struct {
	name   PatternType
	fixed  Direction
	fn     func(talibcdl.SimpleSeries) []int
	gapped bool
}

var cdlScanners = []cdlScanner{
	{PatternCDLDoji, DirectionNeutral, func(s talibcdl.SimpleSeries) []int { return talibcdl.Doji(s) }, false},
	{PatternCDLDojiStar, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.DojiStar(s) }, false},
	{PatternCDLEveningStar, DirectionBearish, func(s talibcdl.SimpleSeries) []int { return talibcdl.EveningStar(s, 0.3) }, false},
	{PatternCDLPiercing, DirectionBullish, func(s talibcdl.SimpleSeries) []int { return talibcdl.Piercing(s) }, false},
	{PatternCDLAbandonedBaby, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.AbandonedBaby(s, 0.3) }, true},
	{PatternCDLMatchingLow, DirectionBullish, func(s talibcdl.SimpleSeries) []int { return talibcdl.MatchingLow(s) }, false},
	{PatternCDLThreeWhite, DirectionBullish, func(s talibcdl.SimpleSeries) []int { return talibcdl.ThreeWhiteSoldiers(s) }, false},
	{PatternCDLThreeBlack, DirectionBearish, func(s talibcdl.SimpleSeries) []int { return talibcdl.ThreeBlackCrows(s) }, false},
	{PatternCDLThreeInside, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.ThreeInside(s) }, false},
	{PatternCDLThreeOutside, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.ThreeOutside(s) }, false},
	{PatternCDLThreeLineStrike, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.ThreeLineStrike(s) }, false},
	{PatternCDLThreeStarsInSouth, DirectionBullish, func(s talibcdl.SimpleSeries) []int { return talibcdl.ThreeStarsInSouth(s) }, false},
	{PatternCDLAdvanceBlock, DirectionBearish, func(s talibcdl.SimpleSeries) []int { return talibcdl.AdvanceBlock(s) }, false},
	{PatternCDLBeltHold, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.BeltHold(s) }, false},
	{PatternCDLBreakAway, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.BreakAway(s) }, false},
	{PatternCDLClosingMarubozu, DirectionNone, func(s talibcdl.SimpleSeries) []int { return talibcdl.ClosingMarubozu(s) }, false},
	{PatternCDLTwoCrows, DirectionBearish, func(s talibcdl.SimpleSeries) []int { return talibcdl.TwoCrows(s) }, false},
	{PatternCDLStickSandwich, DirectionBullish, func(s talibcdl.SimpleSeries) []int { return talibcdl.StickSandwich(s) }, false},
	{PatternCDLConcealBabySwall, DirectionBearish, func(s talibcdl.SimpleSeries) []int { return talibcdl.ConcealBabySwall(s) }, false},
}

// toSeries converts columns to the talib-cdl input format.
func toSeries(cols kline.Columns) talibcdl.SimpleSeries {
	return talibcdl.SimpleSeries{
		Opens:  cols.Open,
		Highs:  cols.High,
		Lows:   cols.Low,
		Closes: cols.Close,
	}
}

func (s cdlScanner) direction(v int) Direction {
	if s.fixed != DirectionNone {
		return s.fixed
	}
	if v < 0 {
		return DirectionBearish
	}
	return DirectionBullish
}

// CDLOptions selects which talib-cdl scanners run.
type CDLOptions struct {
	// SkipGapped drops patterns that need price gaps.
	SkipGapped bool
}

// CDLEvent is a talib-cdl detection with the library's strength value.
type CDLEvent struct {
	Event
	Strength int `json:"strength"`
}

// ScanCDL runs the talib-cdl family over cols and merges the output into
// res. Like the registry predicates a detection at bar i sets the column at
// i+1. Series shorter than three bars are left untouched.
func ScanCDL(res *Result, cols kline.Columns, opts CDLOptions) []CDLEvent {
	n := cols.Len()
	var events []CDLEvent
	for _, sc := range cdlScanners {
		if opts.SkipGapped && sc.gapped {
			continue
		}
		bull := make([]bool, n)
		bear := make([]bool, n)
		if n >= 3 {
			out := sc.fn(toSeries(cols))
			for i := 0; i < n && i < len(out); i++ {
				if out[i] == 0 {
					continue
				}
				d := sc.direction(out[i])
				events = append(events, CDLEvent{Event{Index: i, Pattern: sc.name, Direction: d}, absInt(out[i])})
				if i+1 >= n {
					continue
				}
				switch d {
				case DirectionBullish:
					bull[i+1] = true
				case DirectionBearish:
					bear[i+1] = true
				}
			}
		}
		if res != nil {
			res.Bullish[sc.name] = bull
			res.Bearish[sc.name] = bear
		}
	}
	sort.SliceStable(events, func(a, b int) bool { return events[a].Index < events[b].Index })
	if res != nil {
		for _, ev := range events {
			res.Events = append(res.Events, ev.Event)
		}
		sort.SliceStable(res.Events, func(a, b int) bool { return res.Events[a].Index < res.Events[b].Index })
	}
	return events
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
