package indicator

import "math"

// RSI returns the relative strength index of close using rolling means of gains and losses
// over period deltas. Positions < period are NaN.
//
// A window with no losses reads 100, or 50 when it also has no gains.
func RSI(close []float64, period int) []float64 {
	n := len(close)
	out := nanColumn(n)
	if period <= 0 || n <= period {
		return out
	}

	// gains[j] and losses[j] hold the delta close[j+1]-close[j].
	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for j := 1; j < n; j++ {
		d := close[j] - close[j-1]
		switch {
		case d > 0:
			gains[j-1] = d
		case d < 0:
			losses[j-1] = -d
		}
	}

	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)

	// The running sums behind SMA can leave residue once a move leaves the window,
	// so empty windows are tracked by count.
	up, down := 0, 0
	for j := 0; j < n-1; j++ {
		if gains[j] > 0 {
			up++
		}
		if losses[j] > 0 {
			down++
		}
		if j >= period {
			if gains[j-period] > 0 {
				up--
			}
			if losses[j-period] > 0 {
				down--
			}
		}
		if j < period-1 {
			continue
		}
		g, l := avgGain[j], avgLoss[j]
		if up == 0 {
			g = 0
		}
		if down == 0 {
			l = 0
		}
		out[j+1] = rsiValue(g, l)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if math.IsNaN(gain) || math.IsNaN(loss) {
		return math.NaN()
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}
