package backtest

import "math"

// Participation grades how much volume stands behind a signal bar. Unlike
// the Euphoria exhaustion check, rising volume is what confirms here.
type Participation struct {
	Confirmed  bool    `json:"confirmed"`
	Conviction string  `json:"conviction"`
	Reason     string  `json:"reason"`
	Spike      bool    `json:"spike"`
	AboveAvg   bool    `json:"above_avg"`
	Increasing bool    `json:"increasing"`
	Volume     float64 `json:"volume"`
	MAFast     float64 `json:"ma_fast"`
}

// CheckParticipation evaluates bar i against the fast volume average and the
// mean of the lookback bars before it.
func CheckParticipation(vol, maFast []float64, i int, spike float64, lookback int) Participation {
	if i < 0 || i >= len(vol) || i >= len(maFast) {
		return Participation{Conviction: "low", Reason: "Invalid index"}
	}
	v, ma := vol[i], maFast[i]
	if math.IsNaN(ma) || ma == 0 || math.IsNaN(v) {
		return Participation{Conviction: "low", Reason: "Insufficient volume data"}
	}

	p := Participation{
		Spike:    v > ma*spike,
		AboveAvg: v > ma,
		Volume:   v,
		MAFast:   ma,
	}
	if lookback > 0 && i >= lookback {
		var sum float64
		for _, x := range vol[i-lookback : i] {
			sum += x
		}
		p.Increasing = v > sum/float64(lookback)
	}

	switch {
	case p.Spike:
		p.Confirmed, p.Conviction, p.Reason = true, "high", "Volume Spike"
	case p.AboveAvg && p.Increasing:
		p.Confirmed, p.Conviction, p.Reason = true, "medium", "Volume Above Avg + Increasing"
	case p.AboveAvg:
		p.Confirmed, p.Conviction, p.Reason = true, "low", "Volume Above Avg"
	default:
		p.Conviction, p.Reason = "low", "Volume Below Avg"
	}
	return p
}
