// Package signal turns Euphoria detections into graded confluence signals and
// correlates live pattern signals with support/resistance breaks.
package signal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"example.com/candle-confluence/internal/divergence"
	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/pattern"
)

// Side is the trade side of a confluence signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Config holds the confirmation thresholds.
type Config struct {
	VolumeLookback  int     `yaml:"volume_lookback" json:"volume_lookback"`
	SpikeMultiplier float64 `yaml:"spike_multiplier" json:"spike_multiplier"`
	RSIOversold     float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought   float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	RSIMidpoint     float64 `yaml:"rsi_midpoint" json:"rsi_midpoint"`
	MACDLookback    int     `yaml:"macd_lookback" json:"macd_lookback"`
	HistogramShrink float64 `yaml:"histogram_shrink" json:"histogram_shrink"`
	ADXStrong       float64 `yaml:"adx_strong" json:"adx_strong"`
	ADXVeryStrong   float64 `yaml:"adx_very_strong" json:"adx_very_strong"`

	// EvaluateAtSignalBar reads RSI, MACD, ADX and the volume spike at the
	// signal bar i+1 instead of the pattern bar i. Divergences then come from
	// the raw swing flags rather than the Known columns.
	EvaluateAtSignalBar bool `yaml:"evaluate_at_signal_bar" json:"evaluate_at_signal_bar"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		VolumeLookback:  5,
		SpikeMultiplier: 1.5,
		RSIOversold:     30,
		RSIOverbought:   70,
		RSIMidpoint:     50,
		MACDLookback:    5,
		HistogramShrink: 0.7,
		ADXStrong:       20,
		ADXVeryStrong:   25,
	}
}

// Validate rejects non-positive windows and multipliers.
func (c Config) Validate() error {
	switch {
	case c.VolumeLookback <= 0:
		return fmt.Errorf("%w: volume_lookback=%d", indicator.ErrInvalidParameter, c.VolumeLookback)
	case c.MACDLookback <= 0:
		return fmt.Errorf("%w: macd_lookback=%d", indicator.ErrInvalidParameter, c.MACDLookback)
	case c.SpikeMultiplier <= 0:
		return fmt.Errorf("%w: spike_multiplier=%v", indicator.ErrInvalidParameter, c.SpikeMultiplier)
	case c.HistogramShrink <= 0:
		return fmt.Errorf("%w: histogram_shrink=%v", indicator.ErrInvalidParameter, c.HistogramShrink)
	case c.RSIOversold >= c.RSIOverbought:
		return fmt.Errorf("%w: rsi_oversold=%v must be below rsi_overbought=%v", indicator.ErrInvalidParameter, c.RSIOversold, c.RSIOverbought)
	}
	return nil
}

// ConfluenceSignal is a buy or sell emitted on the bar after a Euphoria pattern.
type ConfluenceSignal struct {
	Index         int               `json:"index"`
	PatternIndex  int               `json:"pattern_index"`
	Time          time.Time         `json:"time"`
	Side          Side              `json:"side"`
	Direction     pattern.Direction `json:"direction"`
	Price         float64           `json:"price"`
	Tier          Tier              `json:"tier"`
	Count         int               `json:"count"`
	Confirmations []Confirmation    `json:"confirmations"`
	Rationale     string            `json:"rationale"`
}

// Inputs bundles what the aggregator reads. The divergence flags may be nil.
type Inputs struct {
	Columns        kline.Columns
	Indicators     *indicator.Set
	Euphoria       []pattern.Event
	RSIDivergence  *divergence.Flags
	MACDDivergence *divergence.Flags
}

// Result holds the signal columns, indexed by signal bar.
type Result struct {
	Len       int
	Signals   []ConfluenceSignal
	Buy       []bool
	Sell      []bool
	BuyTiers  map[Tier][]bool
	SellTiers map[Tier][]bool
	Details   []string
}

// Column returns buy_signal, sell_signal or a buy_signal_<tier> /
// sell_signal_<tier> column.
func (r *Result) Column(name string) ([]bool, bool) {
	switch name {
	case "buy_signal":
		return r.Buy, true
	case "sell_signal":
		return r.Sell, true
	}
	if t, ok := strings.CutPrefix(name, "buy_signal_"); ok {
		col, ok := r.BuyTiers[Tier(t)]
		return col, ok
	}
	if t, ok := strings.CutPrefix(name, "sell_signal_"); ok {
		col, ok := r.SellTiers[Tier(t)]
		return col, ok
	}
	return nil, false
}

// ColumnNames lists every name accepted by Column.
func ColumnNames() []string {
	names := []string{"buy_signal", "sell_signal"}
	for _, t := range Tiers {
		names = append(names, "buy_signal_"+string(t), "sell_signal_"+string(t))
	}
	return names
}

// SignalAt returns the signal emitted at bar i, if any.
func (r *Result) SignalAt(i int) (ConfluenceSignal, bool) {
	k := sort.Search(len(r.Signals), func(j int) bool { return r.Signals[j].Index >= i })
	if k < len(r.Signals) && r.Signals[k].Index == i {
		return r.Signals[k], true
	}
	return ConfluenceSignal{}, false
}

// Aggregator grades Euphoria detections.
type Aggregator struct {
	cfg Config
}

// NewAggregator validates cfg and returns an aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg}, nil
}

// Run emits a signal at i+1 for every Euphoria event at i whose close sits
// inside the K envelopes. Events on the last bar have no signal bar and are
// skipped.
func (a *Aggregator) Run(in Inputs) (*Result, error) {
	n := in.Columns.Len()
	if in.Indicators == nil || in.Indicators.Len != n {
		return nil, fmt.Errorf("%w: indicator set does not match %d bars", indicator.ErrInvalidParameter, n)
	}
	r := &Result{
		Len:       n,
		Buy:       make([]bool, n),
		Sell:      make([]bool, n),
		BuyTiers:  make(map[Tier][]bool, len(Tiers)),
		SellTiers: make(map[Tier][]bool, len(Tiers)),
		Details:   make([]string, n),
	}
	for _, t := range Tiers {
		r.BuyTiers[t] = make([]bool, n)
		r.SellTiers[t] = make([]bool, n)
	}

	ind := in.Indicators
	for _, ev := range in.Euphoria {
		i := ev.Index
		if i < 0 || i+1 >= n {
			continue
		}
		if ev.Direction != pattern.DirectionBullish && ev.Direction != pattern.DirectionBearish {
			continue
		}
		if !ind.Envelopes.Inside(i, in.Columns.Close[i]) {
			continue
		}

		e := i
		if a.cfg.EvaluateAtSignalBar {
			e = i + 1
		}
		confs := []Confirmation{
			CheckVolume(in.Columns.Volume, ind.Volume.MAFast, i, e, a.cfg),
			CheckRSI(ind.RSI[e], a.divergenceAt(in.RSIDivergence, e, ev.Direction), ev.Direction, a.cfg),
			CheckMACD(ind.MACD.Line, ind.MACD.Signal, ind.MACD.Histogram, e,
				a.divergenceAt(in.MACDDivergence, e, ev.Direction), ev.Direction, a.cfg),
			CheckADX(ind.ADX.ADX[e], ind.ADX.PlusDI[e], ind.ADX.MinusDI[e], ev.Direction, a.cfg),
		}
		sig := grade(confs)
		sig.Index = i + 1
		sig.PatternIndex = i
		sig.Direction = ev.Direction
		sig.Price = in.Columns.Close[i+1]
		if i+1 < len(in.Columns.Time) {
			sig.Time = in.Columns.Time[i+1]
		}

		if ev.Direction == pattern.DirectionBullish {
			sig.Side = SideBuy
			r.Buy[i+1] = true
			r.BuyTiers[sig.Tier][i+1] = true
		} else {
			sig.Side = SideSell
			r.Sell[i+1] = true
			r.SellTiers[sig.Tier][i+1] = true
		}
		r.Details[i+1] = sig.Rationale
		r.Signals = append(r.Signals, sig)
	}
	sort.SliceStable(r.Signals, func(x, y int) bool { return r.Signals[x].Index < r.Signals[y].Index })
	return r, nil
}

func (a *Aggregator) divergenceAt(f *divergence.Flags, e int, dir pattern.Direction) bool {
	if f == nil {
		return false
	}
	var col []bool
	switch {
	case dir == pattern.DirectionBullish && a.cfg.EvaluateAtSignalBar:
		col = f.Bullish
	case dir == pattern.DirectionBullish:
		col = f.BullishKnown
	case a.cfg.EvaluateAtSignalBar:
		col = f.Bearish
	default:
		col = f.BearishKnown
	}
	return e >= 0 && e < len(col) && col[e]
}

// grade counts confirmations and builds the tier and rationale.
func grade(confs []Confirmation) ConfluenceSignal {
	var parts []string
	count := 0
	for _, c := range confs {
		if !c.Confirmed {
			continue
		}
		count++
		if c.Kind == KindVolume {
			parts = append(parts, "Vol")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", strings.ToUpper(string(c.Kind)), c.Reason))
	}
	tier := TierFor(count)
	rationale := "Low: Envelopes only"
	if count >= 2 {
		rationale = tier.Label() + ": " + strings.Join(parts, " + ")
	}
	return ConfluenceSignal{Tier: tier, Count: count, Confirmations: confs, Rationale: rationale}
}
