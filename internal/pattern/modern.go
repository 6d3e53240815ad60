package pattern

import "math"

// matchDoubleTrouble needs a defined, non-zero ATR on the previous bar.
func matchDoubleTrouble(w Window) Direction {
	atr := w.ATR(1)
	if math.IsNaN(atr) || atr == 0 {
		return DirectionNone
	}
	wide := w.H(0)-w.L(0) > 2*atr
	return pick(
		w.bullish(0) && w.C(0) > w.C(1) && w.bullish(1) && wide && w.C(0)-w.O(0) > w.C(1)-w.O(1),
		w.bearish(0) && w.C(0) < w.C(1) && w.bearish(1) && wide && w.O(0)-w.C(0) > w.O(1)-w.C(1),
	)
}

func matchBottle(w Window) Direction {
	return pick(
		w.bullish(0) && w.O(0) == w.L(0) && w.bullish(1) && w.O(0) < w.C(1),
		w.bearish(0) && w.O(0) == w.H(0) && w.bearish(1) && w.O(0) > w.C(1),
	)
}

func matchSlingshot(w Window) Direction {
	bull := w.C(0) > w.H(1) && w.C(0) > w.H(2) && w.L(0) <= w.H(3) && w.bullish(0) &&
		w.C(1) >= w.H(3) && w.L(2) >= w.L(3) && w.bullish(2) && w.C(2) > w.H(3) &&
		w.H(1) <= w.H(2)
	bear := w.C(0) < w.L(1) && w.C(0) < w.L(2) && w.H(0) >= w.L(3) && w.bearish(0) &&
		w.H(1) <= w.H(3) && w.C(2) <= w.L(3) && w.bearish(2) && w.C(2) < w.L(3) &&
		w.L(1) >= w.L(2)
	return pick(bull, bear)
}

func matchHPattern(w Window) Direction {
	return pick(
		w.bullish(0) && w.C(0) > w.C(1) && w.L(0) > w.L(1) && w.C(1) == w.O(1) && w.bullish(2) && w.H(2) < w.H(1),
		w.bearish(0) && w.C(0) < w.C(1) && w.L(0) < w.L(1) && w.C(1) == w.O(1) && w.bearish(2) && w.L(2) > w.L(1),
	)
}

func matchDoppelganger(w Window) Direction {
	twins := w.H(0) == w.H(1) && w.L(0) == w.L(1)
	return pick(
		w.bearish(2) && w.C(1) < w.O(2) && twins,
		w.bullish(2) && w.C(1) > w.O(2) && twins,
	)
}

func matchBlockade(w Window) Direction {
	lowsHold := true
	highsHold := true
	for k := 0; k < 3; k++ {
		lowsHold = lowsHold && w.L(k) >= w.L(3) && w.L(k) <= w.C(3)
		highsHold = highsHold && w.H(k) <= w.H(3) && w.H(k) >= w.C(3)
	}
	return pick(
		w.bearish(3) && w.C(2) < w.O(3) && lowsHold && w.bullish(0) && w.C(0) > w.H(3),
		w.bullish(3) && w.C(2) > w.O(3) && highsHold && w.bearish(0) && w.C(0) < w.L(3),
	)
}

func matchBarrier(w Window) Direction {
	return pick(
		w.bullish(0) && w.bearish(1) && w.bearish(2) && w.L(0) == w.L(1) && w.L(0) == w.L(2),
		w.bearish(0) && w.bullish(1) && w.bullish(2) && w.H(0) == w.H(1) && w.H(0) == w.H(2),
	)
}

func matchMirror(w Window) Direction {
	return pick(
		w.bullish(0) && w.H(0) == w.H(3) && w.C(0) > w.C(1) && w.C(0) > w.C(2) && w.C(0) > w.C(3) &&
			w.bearish(3) && w.C(1) == w.C(2),
		w.bearish(0) && w.L(0) == w.L(3) && w.C(0) < w.C(1) && w.C(0) < w.C(2) && w.C(0) < w.C(3) &&
			w.bullish(3) && w.C(1) == w.C(2),
	)
}

func matchShrinking(w Window) Direction {
	b := func(k int) float64 { return math.Abs(w.C(k) - w.O(k)) }
	shrink := b(3) < b(4) && b(2) < b(3) && b(1) < b(2)
	return pick(
		w.bearish(4) && w.bullish(0) && w.C(0) > w.H(3) && shrink && w.H(1) < w.H(2) && w.H(2) < w.H(3),
		w.bullish(4) && w.bearish(0) && w.C(0) < w.L(3) && shrink && w.L(1) > w.L(2) && w.L(2) > w.L(3),
	)
}
