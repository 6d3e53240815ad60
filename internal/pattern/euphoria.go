package pattern

import "example.com/candle-confluence/internal/kline"

// euphoriaLookback is the number of prior bars the pattern reads.
const euphoriaLookback = 2

// matchEuphoria fires on three same-coloured candles whose closes move
// strictly in one direction while the bodies keep growing. Three red candles
// read as selling exhaustion and resolve bullish; three green as bearish.
func matchEuphoria(w Window) Direction {
	bull := w.bearish(0) && w.bearish(1) && w.bearish(2) &&
		w.C(0) < w.C(1) && w.C(1) < w.C(2) &&
		w.O(0)-w.C(0) > w.O(1)-w.C(1) && w.O(1)-w.C(1) > w.O(2)-w.C(2)
	bear := w.bullish(0) && w.bullish(1) && w.bullish(2) &&
		w.C(0) > w.C(1) && w.C(1) > w.C(2) &&
		w.C(0)-w.O(0) > w.C(1)-w.O(1) && w.C(1)-w.O(1) > w.C(2)-w.O(2)
	return pick(bull, bear)
}

// Euphoria marks the exhaustion pattern at the bar that completes it.
// Unlike the registry predicates the columns are not deferred; consumers
// act on the following bar.
func Euphoria(cols kline.Columns) (bull, bear []bool, events []Event) {
	n := cols.Len()
	bull = make([]bool, n)
	bear = make([]bool, n)
	w := Window{open: cols.Open, high: cols.High, low: cols.Low, close: cols.Close}
	for i := euphoriaLookback; i < n; i++ {
		w.i = i
		switch matchEuphoria(w) {
		case DirectionBullish:
			bull[i] = true
			events = append(events, Event{Index: i, Pattern: PatternEuphoria, Direction: DirectionBullish})
		case DirectionBearish:
			bear[i] = true
			events = append(events, Event{Index: i, Pattern: PatternEuphoria, Direction: DirectionBearish})
		}
	}
	return bull, bear, events
}
