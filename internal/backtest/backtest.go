// Package backtest replays candle series through the RSI and volume breakout bots.
package backtest

import (
	"errors"
	"time"
)

// ErrNoData is returned when a bot is run over an empty series.
var ErrNoData = errors.New("backtest: no candles")

// Side is the trade side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Reason labels why a trade was opened or closed.
type Reason string

const (
	ReasonRSIThreshold   Reason = "RSI_THRESHOLD"
	ReasonDivergence     Reason = "DIVERGENCE"
	ReasonTakeProfit     Reason = "TAKE_PROFIT"
	ReasonStopLoss       Reason = "STOP_LOSS"
	ReasonMaxHolding     Reason = "MAX_HOLDING"
	ReasonVolumeBreakout Reason = "VOLUME_BREAKOUT"
)

// Bot names a strategy.
type Bot string

const (
	BotRSI    Bot = "rsi"
	BotVolume Bot = "volume"
)

// Trade is one fill. Exit is empty for position openings; PnL is only
// meaningful when Exit is set.
type Trade struct {
	Index         int            `json:"index"`
	Time          time.Time      `json:"time"`
	Side          Side           `json:"side"`
	Price         float64        `json:"price"`
	AmountUSD     float64        `json:"amount_usd"`
	Amount        float64        `json:"amount"`
	Fee           float64        `json:"fee"`
	FeeUSD        float64        `json:"fee_usd"`
	RSI           float64        `json:"rsi"`
	Signal        Reason         `json:"signal"`
	Exit          Reason         `json:"exit,omitempty"`
	Divergence    bool           `json:"divergence"`
	CashAfter     float64        `json:"cash_after"`
	PositionAfter float64        `json:"position_after"`
	PnL           float64        `json:"pnl"`
	StopLoss      float64        `json:"stop_loss,omitempty"`
	TakeProfit    float64        `json:"take_profit,omitempty"`
	CandlesHeld   int            `json:"candles_held,omitempty"`
	Volume        float64        `json:"volume,omitempty"`
	Participation *Participation `json:"participation,omitempty"`
}

// Closing reports whether the trade closes (part of) a position.
func (t Trade) Closing() bool {
	return t.Exit != ""
}

// EquityPoint is the account state after bar Index.
type EquityPoint struct {
	Index    int       `json:"index"`
	Time     time.Time `json:"time"`
	Cash     float64   `json:"cash"`
	Position float64   `json:"position"`
	Price    float64   `json:"price"`
	Equity   float64   `json:"equity"`
	RSI      float64   `json:"rsi"`
}

// Result is the outcome of one backtest run.
type Result struct {
	ID                 string        `json:"id"`
	Bot                Bot           `json:"bot"`
	Symbol             string        `json:"symbol"`
	Interval           string        `json:"interval"`
	StartedAt          time.Time     `json:"started_at"`
	InitialCapital     float64       `json:"initial_capital"`
	FinalCash          float64       `json:"final_cash"`
	FinalPosition      float64       `json:"final_position"`
	FinalPositionValue float64       `json:"final_position_value"`
	FinalEquity        float64       `json:"final_equity"`
	TotalReturn        float64       `json:"total_return"`
	TotalReturnPct     float64       `json:"total_return_pct"`
	PeriodsPerYear     float64       `json:"periods_per_year"`
	Trades             []Trade       `json:"trades"`
	Equity             []EquityPoint `json:"equity"`
	Config             any           `json:"config"`
}

// NumBuys counts BUY fills.
func (r *Result) NumBuys() int {
	return r.count(SideBuy)
}

// NumSells counts SELL fills.
func (r *Result) NumSells() int {
	return r.count(SideSell)
}

func (r *Result) count(side Side) int {
	n := 0
	for _, t := range r.Trades {
		if t.Side == side {
			n++
		}
	}
	return n
}

// TotalFees sums the fees of every fill in quote currency.
func (r *Result) TotalFees() float64 {
	var sum float64
	for _, t := range r.Trades {
		sum += t.FeeUSD
	}
	return sum
}

func (r *Result) finish(finalPrice float64) {
	r.FinalPositionValue = r.FinalPosition * finalPrice
	if r.FinalPositionValue < 0 {
		r.FinalPositionValue = -r.FinalPositionValue
	}
	r.FinalEquity = r.FinalCash + r.FinalPosition*finalPrice
	r.TotalReturn = r.FinalEquity - r.InitialCapital
	if r.InitialCapital != 0 {
		r.TotalReturnPct = r.TotalReturn / r.InitialCapital * 100
	}
}
