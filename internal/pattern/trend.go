package pattern

func matchMarubozu(w Window) Direction {
	return pick(
		w.bullish(0) && w.H(0) == w.C(0) && w.L(0) == w.O(0),
		w.bearish(0) && w.H(0) == w.O(0) && w.L(0) == w.C(0),
	)
}

func matchThreeCandles(w Window) Direction {
	body := w.th.ThreeCandlesBody
	bull := true
	bear := true
	for k := 0; k < 3; k++ {
		bull = bull && w.C(k)-w.O(k) > body && w.C(k) > w.C(k+1)
		bear = bear && w.O(k)-w.C(k) > body && w.C(k) < w.C(k+1)
	}
	return pick(bull, bear)
}

func matchThreeMethods(w Window) Direction {
	bull := w.bullish(0) && w.C(0) > w.H(4) && w.L(0) < w.L(1) &&
		w.C(1) < w.C(4) && w.L(1) > w.L(4) &&
		w.C(2) < w.C(4) && w.L(2) > w.L(4) &&
		w.C(3) < w.C(4) && w.L(3) > w.L(4) &&
		w.bullish(4)
	bear := w.bearish(0) && w.C(0) < w.L(4) && w.H(0) > w.H(1) &&
		w.C(1) > w.C(4) && w.H(1) < w.H(4) &&
		w.C(2) > w.C(4) && w.H(2) < w.H(4) &&
		w.C(3) > w.C(4) && w.H(3) < w.H(4) &&
		w.bearish(4)
	return pick(bull, bear)
}

func matchTasuki(w Window) Direction {
	return pick(
		w.bearish(0) && w.C(0) < w.O(1) && w.C(0) > w.C(2) &&
			w.bullish(1) && w.O(1) > w.C(2) && w.bullish(2),
		w.bullish(0) && w.C(0) > w.O(1) && w.C(0) < w.C(2) &&
			w.bearish(1) && w.O(1) < w.C(2) && w.bearish(2),
	)
}

func matchHikkake(w Window) Direction {
	bull := w.C(0) > w.H(3) && w.C(0) > w.C(4) &&
		w.L(1) < w.O(0) && w.C(1) < w.C(0) && w.H(1) <= w.H(3) &&
		w.L(2) < w.O(0) && w.C(2) < w.C(0) && w.H(2) <= w.H(3) &&
		w.H(3) < w.H(4) && w.L(3) > w.L(4) && w.bullish(4)
	bear := w.C(0) < w.L(3) && w.C(0) < w.C(4) &&
		w.H(1) > w.O(0) && w.C(1) > w.C(0) && w.L(1) >= w.L(3) &&
		w.H(2) > w.O(0) && w.C(2) > w.C(0) && w.L(2) >= w.L(3) &&
		w.L(3) > w.L(4) && w.H(3) < w.H(4) && w.bearish(4)
	return pick(bull, bear)
}

// matchQuintuplets looks for five small same-coloured candles with monotonic closes.
func matchQuintuplets(w Window) Direction {
	body := w.th.Body
	bull := true
	bear := true
	for k := 0; k < 5; k++ {
		bull = bull && w.bullish(k) && w.C(k)-w.O(k) < body
		bear = bear && w.bearish(k) && w.O(k)-w.C(k) < body
		if k < 4 {
			bull = bull && w.C(k) > w.C(k+1)
			bear = bear && w.C(k) < w.C(k+1)
		}
	}
	return pick(bull, bear)
}
