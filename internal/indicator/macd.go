package indicator

// MACD holds the MACD line, its signal line and the histogram.
type MACD struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// ComputeMACD returns EMA(fast) - EMA(slow), its EMA(signal), and their difference.
func ComputeMACD(close []float64, fast, slow, signal int) MACD {
	emaFast := EMA(close, fast)
	emaSlow := EMA(close, slow)

	line := make([]float64, len(close))
	for i := range close {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMA(line, signal)

	hist := make([]float64, len(close))
	for i := range close {
		hist[i] = line[i] - sig[i]
	}
	return MACD{Line: line, Signal: sig, Histogram: hist}
}
