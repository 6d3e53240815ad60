package backtest

import (
	"math"
	"time"

	"github.com/google/uuid"

	"example.com/candle-confluence/internal/divergence"
	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
)

// dust is the position size below which a partial sell closes the position.
const dust = 0.0001

// RunRSI replays cols through the RSI bot: buy a fixed quote amount on
// oversold RSI or a bullish divergence, then exit on take-profit, stop-loss,
// or overbought RSI / bearish divergence. One position at a time; fees are
// charged in the base asset.
func RunRSI(cols kline.Columns, cfg RSIConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cols.Len()
	if n == 0 {
		return nil, ErrNoData
	}

	rsi := indicator.RSI(cols.Close, cfg.RSIPeriod)
	var bullDiv, bearDiv []bool
	if cfg.UseDivergence {
		flags, err := divergence.Detect(cols.High, cols.Low, rsi, divergence.Params{Lookback: cfg.DivergenceLookback})
		if err != nil {
			return nil, err
		}
		bullDiv, bearDiv = flags.BullishKnown, flags.BearishKnown
	} else {
		bullDiv, bearDiv = make([]bool, n), make([]bool, n)
	}
	var vol indicator.Volume
	if cfg.UseVolume {
		vol = indicator.ComputeVolume(cols.Volume, cfg.VolumeFast, cfg.VolumeSlow, cfg.VolumeSpike)
	}

	res := &Result{
		ID:             uuid.NewString(),
		Bot:            BotRSI,
		StartedAt:      time.Now().UTC(),
		InitialCapital: cfg.InitialCapital,
		PeriodsPerYear: cfg.PeriodsPerYear,
		Config:         cfg,
	}
	b := &book{cols: cols, fee: cfg.FeePct, cash: cfg.InitialCapital, res: res}

	participation := func(i int) (*Participation, bool) {
		if !cfg.UseVolume {
			return nil, true
		}
		p := CheckParticipation(cols.Volume, vol.MAFast, i, cfg.VolumeSpike, cfg.VolumeLookback)
		return &p, p.Confirmed || !cfg.RequireVolume
	}

	for i := 0; i < n; i++ {
		price := cols.Close[i]
		r := rsi[i]
		if math.IsNaN(r) {
			b.mark(i, r)
			continue
		}

		if b.pos <= 0 {
			buy := r < cfg.RSIBuy || bullDiv[i]
			var part *Participation
			if buy {
				var ok bool
				part, ok = participation(i)
				buy = ok
			}
			if buy && b.cash >= cfg.BuyAmount {
				reason := ReasonRSIThreshold
				if bullDiv[i] {
					reason = ReasonDivergence
				}
				qty := cfg.BuyAmount / price
				fee := qty * cfg.FeePct
				b.cash -= cfg.BuyAmount
				b.pos = qty - fee
				b.entry = price
				b.record(Trade{
					Index: i, Side: SideBuy, Price: price,
					AmountUSD: cfg.BuyAmount, Amount: qty - fee, Fee: fee, FeeUSD: fee * price,
					RSI: r, Signal: reason, Divergence: bullDiv[i], Participation: part,
				})
			}
			b.mark(i, r)
			continue
		}

		pnlPct := (price - b.entry) / b.entry * 100
		switch {
		case pnlPct >= cfg.TakeProfitPct:
			b.closeLong(i, price, r, ReasonTakeProfit, false, nil)
		case pnlPct <= -cfg.StopLossPct:
			b.closeLong(i, price, r, ReasonStopLoss, false, nil)
		default:
			sell := r > cfg.RSISell || bearDiv[i]
			var part *Participation
			if sell {
				var ok bool
				part, ok = participation(i)
				sell = ok
			}
			if !sell {
				break
			}
			reason := ReasonRSIThreshold
			if bearDiv[i] {
				reason = ReasonDivergence
			}
			if b.pos*price < cfg.SellAmount {
				b.closeLong(i, price, r, reason, bearDiv[i], part)
				break
			}
			qty := math.Min(cfg.SellAmount/price, b.pos)
			fee := qty * cfg.FeePct
			sold := qty - fee
			usd := sold * price
			pnl := (price-b.entry)*sold - fee*price
			b.pos -= qty
			b.cash += usd
			if b.pos < dust {
				b.pos, b.entry = 0, 0
			}
			b.record(Trade{
				Index: i, Side: SideSell, Price: price,
				AmountUSD: usd, Amount: sold, Fee: fee, FeeUSD: fee * price,
				RSI: r, Signal: reason, Exit: reason, Divergence: bearDiv[i],
				PnL: pnl, Participation: part,
			})
		}
		b.mark(i, r)
	}

	res.FinalCash = b.cash
	res.FinalPosition = b.pos
	res.finish(cols.Close[n-1])
	return res, nil
}

// book tracks the account while a bot walks the series.
type book struct {
	cols  kline.Columns
	fee   float64
	res   *Result
	cash  float64
	pos   float64 // negative when short
	entry float64
}

func (b *book) at(i int) time.Time {
	if i < len(b.cols.Time) {
		return b.cols.Time[i]
	}
	return time.Time{}
}

func (b *book) record(t Trade) {
	t.Time = b.at(t.Index)
	t.CashAfter = b.cash
	t.PositionAfter = b.pos
	b.res.Trades = append(b.res.Trades, t)
}

func (b *book) mark(i int, rsi float64) {
	price := b.cols.Close[i]
	b.res.Equity = append(b.res.Equity, EquityPoint{
		Index:    i,
		Time:     b.at(i),
		Cash:     b.cash,
		Position: b.pos,
		Price:    price,
		Equity:   b.cash + b.pos*price,
		RSI:      rsi,
	})
}

// closeLong sells the whole long position at price.
func (b *book) closeLong(i int, price, rsi float64, reason Reason, div bool, part *Participation) {
	fee := b.pos * b.fee
	sold := b.pos - fee
	usd := sold * price
	pnl := (price-b.entry)*sold - fee*price
	b.cash += usd
	b.pos, b.entry = 0, 0
	b.record(Trade{
		Index: i, Side: SideSell, Price: price,
		AmountUSD: usd, Amount: sold, Fee: fee, FeeUSD: fee * price,
		RSI: rsi, Signal: reason, Exit: reason, Divergence: div,
		PnL: pnl, Participation: part,
	})
}
