package backtest

import (
	"math"
	"time"

	"github.com/google/uuid"

	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
)

type stopKind int

const (
	buyStop stopKind = iota
	sellStop
)

// stopOrder is a pending breakout entry.
type stopOrder struct {
	kind    stopKind
	trigger float64
	rsi     float64
	volume  float64
}

func (o stopOrder) triggered(high, low float64) bool {
	if o.kind == buyStop {
		return high >= o.trigger
	}
	return low <= o.trigger
}

// RunVolume replays cols through the volume breakout bot. A high-volume
// candle against the RSI midpoint places a stop order beyond its extreme;
// the position is sized so that hitting the stop loses RiskPct of cash and
// exits on take-profit, stop-loss, or after MaxHolding candles. Shorts are
// supported.
func RunVolume(cols kline.Columns, cfg VolumeConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cols.Len()
	if n == 0 {
		return nil, ErrNoData
	}
	rsi := indicator.RSI(cols.Close, cfg.RSIPeriod)

	res := &Result{
		ID:             uuid.NewString(),
		Bot:            BotVolume,
		StartedAt:      time.Now().UTC(),
		InitialCapital: cfg.InitialCapital,
		PeriodsPerYear: cfg.PeriodsPerYear,
		Config:         cfg,
	}
	b := &book{cols: cols, fee: cfg.FeePct, cash: cfg.InitialCapital, res: res}

	var (
		pending    []stopOrder
		stopLoss   float64
		takeProfit float64
		held       int
	)

	for i := 0; i < n; i++ {
		open, high, low, price, volume := cols.Open[i], cols.High[i], cols.Low[i], cols.Close[i], cols.Volume[i]
		r := rsi[i]
		if math.IsNaN(r) {
			b.mark(i, r)
			continue
		}

		if b.pos == 0 && volume > cfg.VolumeThreshold {
			switch {
			case price > open && r < 50:
				pending = append(pending, stopOrder{kind: buyStop, trigger: high * (1 + cfg.StopBufferPct), rsi: r, volume: volume})
			case price < open && r > 50:
				pending = append(pending, stopOrder{kind: sellStop, trigger: low * (1 - cfg.StopBufferPct), rsi: r, volume: volume})
			}
		}

		kept := pending[:0]
		for _, o := range pending {
			if !o.triggered(high, low) {
				kept = append(kept, o)
				continue
			}
			if b.pos != 0 {
				continue
			}
			entry := o.trigger
			risk := b.cash * cfg.RiskPct / 100
			if o.kind == buyStop {
				stopLoss = entry * (1 - cfg.RiskPct/100)
				takeProfit = entry * (1 + cfg.RewardPct/100)
				qty := risk / (entry - stopLoss)
				fee := qty * cfg.FeePct
				cost := qty * entry
				b.cash -= cost
				b.pos = qty - fee
				b.record(Trade{
					Index: i, Side: SideBuy, Price: entry,
					AmountUSD: cost, Amount: qty - fee, Fee: fee, FeeUSD: fee * entry,
					RSI: o.rsi, Signal: ReasonVolumeBreakout, Volume: o.volume,
					StopLoss: stopLoss, TakeProfit: takeProfit,
				})
			} else {
				stopLoss = entry * (1 + cfg.RiskPct/100)
				takeProfit = entry * (1 - cfg.RewardPct/100)
				qty := risk / (stopLoss - entry)
				fee := qty * cfg.FeePct
				proceeds := (qty - fee) * entry
				b.cash += proceeds
				b.pos = -(qty - fee)
				b.record(Trade{
					Index: i, Side: SideSell, Price: entry,
					AmountUSD: proceeds, Amount: qty - fee, Fee: fee, FeeUSD: fee * entry,
					RSI: o.rsi, Signal: ReasonVolumeBreakout, Volume: o.volume,
					StopLoss: stopLoss, TakeProfit: takeProfit,
				})
			}
			b.entry = entry
			held = 0
		}
		pending = kept

		if b.pos != 0 {
			held++
			exit, reason := price, Reason("")
			long := b.pos > 0
			switch {
			case long && high >= takeProfit, !long && low <= takeProfit:
				exit, reason = takeProfit, ReasonTakeProfit
			case long && low <= stopLoss, !long && high >= stopLoss:
				exit, reason = stopLoss, ReasonStopLoss
			case held >= cfg.MaxHolding:
				reason = ReasonMaxHolding
			}
			if reason != "" {
				if long {
					b.exitLong(i, exit, r, volume, reason, held)
				} else {
					b.exitShort(i, exit, r, volume, reason, held)
				}
				held = 0
			}
		}
		b.mark(i, r)
	}

	res.FinalCash = b.cash
	res.FinalPosition = b.pos
	res.finish(cols.Close[n-1])
	return res, nil
}

func (b *book) exitLong(i int, price, rsi, volume float64, reason Reason, held int) {
	fee := b.pos * b.fee
	sold := b.pos - fee
	usd := sold * price
	pnl := (price-b.entry)*sold - fee*price
	b.cash += usd
	b.pos, b.entry = 0, 0
	b.record(Trade{
		Index: i, Side: SideSell, Price: price,
		AmountUSD: usd, Amount: sold, Fee: fee, FeeUSD: fee * price,
		RSI: rsi, Signal: reason, Exit: reason, Volume: volume,
		PnL: pnl, CandlesHeld: held,
	})
}

// exitShort buys back the borrowed quantity plus the fee.
func (b *book) exitShort(i int, price, rsi, volume float64, reason Reason, held int) {
	qty := -b.pos
	fee := qty * b.fee
	bought := qty + fee
	cost := bought * price
	pnl := (b.entry-price)*qty - fee*price
	b.cash -= cost
	b.pos, b.entry = 0, 0
	b.record(Trade{
		Index: i, Side: SideBuy, Price: price,
		AmountUSD: cost, Amount: bought, Fee: fee, FeeUSD: fee * price,
		RSI: rsi, Signal: reason, Exit: reason, Volume: volume,
		PnL: pnl, CandlesHeld: held,
	})
}
