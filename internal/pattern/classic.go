package pattern

import "math"

func matchDoji(w Window) Direction {
	return pick(
		w.bullish(0) && w.C(0) > w.C(1) && w.C(1) == w.O(1) && w.bearish(2),
		w.bearish(0) && w.C(0) < w.C(1) && w.C(1) == w.O(1) && w.bullish(2),
	)
}

func matchHarami(w Window) Direction {
	inside := w.H(0) < w.H(1) && w.L(0) > w.L(1)
	return pick(
		w.C(0) < w.O(1) && w.O(0) > w.C(1) && inside && w.bullish(0) && w.bearish(1) && w.bearish(2),
		w.C(0) > w.O(1) && w.O(0) < w.C(1) && inside && w.bearish(0) && w.bullish(1) && w.bullish(2),
	)
}

func matchTweezers(w Window) Direction {
	return pick(
		w.bullish(0) && w.L(0) == w.L(1) && w.C(0)-w.O(0) < w.th.Body && w.bearish(1) && w.bearish(2),
		w.bearish(0) && w.H(0) == w.H(1) && w.bullish(1) && w.bullish(2),
	)
}

func matchStickSandwich(w Window) Direction {
	engulfs := w.H(0) > w.H(1) && w.L(0) < w.L(1)
	return pick(
		w.bearish(0) && engulfs && w.bullish(1) && w.bearish(2) &&
			w.H(2) > w.H(1) && w.L(2) < w.L(1) && w.C(2) < w.C(3) && w.bearish(3),
		w.bullish(0) && engulfs && w.bearish(1) && w.bullish(2) &&
			w.H(2) > w.H(1) && w.L(2) < w.L(1),
	)
}

func matchHammer(w Window) Direction {
	body, wick := w.th.Body, w.th.HammerWick
	small := math.Abs(w.C(1)-w.O(1)) < body
	return pick(
		w.bullish(0) && small && math.Min(w.C(1), w.O(1))-w.L(1) > 2*wick && w.C(1) == w.H(1) && w.bearish(2),
		w.bearish(0) && small && w.H(1)-math.Max(w.C(1), w.O(1)) > 2*wick && w.C(1) == w.L(1) && w.bullish(2),
	)
}

func matchStar(w Window) Direction {
	top := math.Max(w.C(1), w.O(1))
	bottom := math.Min(w.C(1), w.O(1))
	return pick(
		w.bullish(0) && top < w.O(0) && top < w.C(2) && w.bearish(2),
		w.bearish(0) && bottom > w.O(0) && bottom > w.C(2) && w.bullish(2),
	)
}

func matchPiercing(w Window) Direction {
	return pick(
		w.bullish(0) && w.C(0) < w.O(1) && w.C(0) > w.C(1) && w.O(0) < w.C(1) && w.bearish(1) && w.bearish(2),
		w.bearish(0) && w.C(0) > w.O(1) && w.C(0) < w.C(1) && w.O(0) > w.C(1) && w.bullish(1) && w.bullish(2),
	)
}

func matchEngulfing(w Window) Direction {
	return pick(
		w.bullish(0) && w.O(0) < w.C(1) && w.C(0) > w.O(1) && w.bearish(1) && w.bearish(2),
		w.bearish(0) && w.O(0) > w.C(1) && w.C(0) < w.O(1) && w.bullish(1) && w.bullish(2),
	)
}

func matchAbandonedBaby(w Window) Direction {
	return pick(
		w.bullish(0) && w.C(1) == w.O(1) && w.H(1) < w.L(0) && w.H(1) < w.L(2) && w.bearish(2),
		w.bearish(0) && w.C(1) == w.O(1) && w.L(1) > w.H(0) && w.L(1) > w.H(2) && w.bullish(2),
	)
}

func matchSpinningTop(w Window) Direction {
	body, wick := w.th.Body, w.th.SpinningTopWick
	bull := w.C(0)-w.O(0) > body &&
		w.H(1)-w.C(1) >= wick && w.O(1)-w.L(1) >= wick &&
		w.C(1)-w.O(1) < body && w.bullish(1) &&
		w.bearish(2) && w.O(2)-w.C(2) > body
	bear := w.O(0)-w.C(0) > body &&
		w.H(1)-w.O(1) >= wick && w.C(1)-w.L(1) >= wick &&
		w.O(1)-w.C(1) < body && w.bearish(1) &&
		w.bullish(2)
	return pick(bull, bear)
}

func matchInsideUpDown(w Window) Direction {
	body := w.th.Body
	bull := w.bearish(2) && math.Abs(w.O(2)-w.C(2)) > body &&
		w.C(1) < w.O(2) && w.O(1) > w.C(2) && w.bullish(1) &&
		w.C(0) > w.O(2) && w.bullish(0) && math.Abs(w.O(0)-w.C(0)) > body
	bear := w.bullish(2) && math.Abs(w.C(2)-w.O(2)) > body &&
		w.C(1) > w.O(2) && w.O(1) < w.C(2) && w.bearish(1) &&
		w.C(0) < w.O(2) && w.bearish(0) && math.Abs(w.O(0)-w.C(0)) > body
	return pick(bull, bear)
}

func matchTower(w Window) Direction {
	body := w.th.Body
	return pick(
		w.bullish(0) && w.C(0)-w.O(0) > body && w.L(2) < w.L(1) && w.L(2) < w.L(3) &&
			w.bearish(4) && w.O(4)-w.C(0) > body,
		w.bearish(0) && w.O(0)-w.C(0) > body && w.H(2) > w.H(1) && w.H(2) > w.H(3) &&
			w.bullish(4) && w.C(4)-w.O(0) > body,
	)
}

func matchOnNeck(w Window) Direction {
	return pick(
		w.bullish(0) && w.C(0) == w.C(1) && w.O(0) < w.C(1) && w.bearish(1),
		w.bearish(0) && w.C(0) == w.C(1) && w.O(0) > w.C(1) && w.bullish(1),
	)
}
