package backtest

import "math"

// Metrics summarises a backtest run.
type Metrics struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	NumTrades      int     `json:"num_trades"`
	NumBuys        int     `json:"num_buys"`
	NumSells       int     `json:"num_sells"`
	WinRate        float64 `json:"win_rate"` // percent of closing trades with positive P/L
	AvgProfitLoss  float64 `json:"avg_profit_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Sharpe         float64 `json:"sharpe"`
	TotalFees      float64 `json:"total_fees"`
	TPHits         int     `json:"tp_hits"`
	SLHits         int     `json:"sl_hits"`
	MaxHoldingHits int     `json:"max_holding_hits"`
	TPSLRatio      float64 `json:"tp_sl_ratio"` // +Inf with take-profits and no stop-losses

	Volume VolumeStats `json:"volume"`
}

// VolumeStats splits signal exits by whether volume participated.
type VolumeStats struct {
	WithVolume         int     `json:"with_volume"`
	WithoutVolume      int     `json:"without_volume"`
	ConfirmedWinRate   float64 `json:"confirmed_win_rate"`
	ConfirmedAvgPnL    float64 `json:"confirmed_avg_pnl"`
	UnconfirmedWinRate float64 `json:"unconfirmed_win_rate"`
	UnconfirmedAvgPnL  float64 `json:"unconfirmed_avg_pnl"`
}

// ComputeMetrics derives the summary statistics of r.
func ComputeMetrics(r *Result) Metrics {
	m := Metrics{
		InitialCapital: r.InitialCapital,
		FinalEquity:    r.FinalEquity,
		TotalReturn:    r.TotalReturn,
		TotalReturnPct: r.TotalReturnPct,
		NumTrades:      len(r.Trades),
		NumBuys:        r.NumBuys(),
		NumSells:       r.NumSells(),
		TotalFees:      r.TotalFees(),
	}

	var closing []Trade
	for _, t := range r.Trades {
		if !t.Closing() {
			continue
		}
		closing = append(closing, t)
		switch t.Exit {
		case ReasonTakeProfit:
			m.TPHits++
		case ReasonStopLoss:
			m.SLHits++
		case ReasonMaxHolding:
			m.MaxHoldingHits++
		}
	}
	m.WinRate, m.AvgProfitLoss = winStats(closing)
	m.ProfitFactor = profitFactor(closing)
	m.TPSLRatio = ratio(m.TPHits, m.SLHits)
	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(r.Equity)
	m.Sharpe = sharpe(r.Equity, r.PeriodsPerYear)
	m.Volume = volumeStats(r.Trades)
	return m
}

func winStats(trades []Trade) (winRate, avg float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	wins := 0
	var sum float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
		sum += t.PnL
	}
	return float64(wins) / float64(len(trades)) * 100, sum / float64(len(trades))
}

func profitFactor(trades []Trade) float64 {
	var gains, losses float64
	for _, t := range trades {
		if t.PnL > 0 {
			gains += t.PnL
		} else {
			losses -= t.PnL
		}
	}
	if losses == 0 {
		if gains > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return gains / losses
}

func ratio(tp, sl int) float64 {
	if sl == 0 {
		if tp > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(tp) / float64(sl)
}

// maxDrawdown returns the deepest fall from a running peak, absolute and as a
// percent of that peak.
func maxDrawdown(equity []EquityPoint) (float64, float64) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0].Equity
	worst, worstPeak := 0.0, peak
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := p.Equity - peak; dd < worst {
			worst, worstPeak = dd, peak
		}
	}
	pct := 0.0
	if worstPeak > 0 {
		pct = worst / worstPeak * 100
	}
	return math.Abs(worst), math.Abs(pct)
}

// sharpe annualises the mean period return over its sample deviation with a
// zero risk-free rate.
func sharpe(equity []EquityPoint, periodsPerYear float64) float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	var returns []float64
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, x := range returns {
		mean += x
	}
	mean /= float64(len(returns))
	var ss float64
	for _, x := range returns {
		ss += (x - mean) * (x - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

func volumeStats(trades []Trade) VolumeStats {
	var s VolumeStats
	var confirmed, unconfirmed []Trade
	for _, t := range trades {
		if t.Participation == nil {
			continue
		}
		if t.Participation.Confirmed {
			s.WithVolume++
		} else {
			s.WithoutVolume++
		}
		if t.Side != SideSell || !t.Closing() {
			continue
		}
		if t.Participation.Confirmed {
			confirmed = append(confirmed, t)
		} else {
			unconfirmed = append(unconfirmed, t)
		}
	}
	s.ConfirmedWinRate, s.ConfirmedAvgPnL = winStats(confirmed)
	s.UnconfirmedWinRate, s.UnconfirmedAvgPnL = winStats(unconfirmed)
	return s
}
