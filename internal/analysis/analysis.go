// Package analysis runs the full indicator, pattern, divergence, pivot and
// confluence pipeline over one series and keeps per-symbol snapshots of the
// result for the live service.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"example.com/candle-confluence/internal/divergence"
	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/pivot"
	"example.com/candle-confluence/internal/signal"
)

// ErrEmptySeries is returned when Analyze receives no candles.
var ErrEmptySeries = errors.New("empty series")

// Config bundles the parameters of every pipeline stage.
type Config struct {
	Indicators indicator.Params   `yaml:"indicators" json:"indicators"`
	Patterns   pattern.Thresholds `yaml:"patterns" json:"patterns"`
	Divergence divergence.Params  `yaml:"divergence" json:"divergence"`
	Pivot      pivot.Params       `yaml:"pivot" json:"pivot"`
	Signal     signal.Config      `yaml:"signal" json:"signal"`

	// CDL adds the talib-cdl candlestick family to the pattern columns.
	CDL        bool `yaml:"cdl" json:"cdl"`
	SkipGapped bool `yaml:"skip_gapped" json:"skip_gapped"`
}

// DefaultConfig returns the stock parameters with the talib-cdl family enabled.
func DefaultConfig() Config {
	return Config{
		Indicators: indicator.DefaultParams(),
		Patterns:   pattern.DefaultThresholds(),
		Divergence: divergence.DefaultParams(),
		Pivot:      pivot.DefaultParams(),
		Signal:     signal.DefaultConfig(),
		CDL:        true,
	}
}

// Validate checks every stage.
func (c Config) Validate() error {
	if err := c.Indicators.Validate(); err != nil {
		return err
	}
	if err := c.Patterns.Validate(); err != nil {
		return err
	}
	if err := c.Divergence.Validate(); err != nil {
		return err
	}
	if err := c.Pivot.Validate(); err != nil {
		return err
	}
	return c.Signal.Validate()
}

// Report is the analysed series. Every column has the length of Columns.
type Report struct {
	Columns        kline.Columns
	Indicators     *indicator.Set
	Patterns       *pattern.Result
	CDL            []pattern.CDLEvent
	RSIDivergence  *divergence.Flags
	MACDDivergence *divergence.Flags
	Pivot          *pivot.Result
	Signals        *signal.Result
}

// Analyze runs the pipeline over cols. cols is not modified.
func Analyze(cols kline.Columns, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cols.Len() == 0 {
		return nil, ErrEmptySeries
	}

	set, err := indicator.Compute(cols, cfg.Indicators)
	if err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}

	atr := set.ATR
	if cfg.Patterns.ATRPeriod != cfg.Indicators.ATRPeriod {
		atr = indicator.ATR(cols.High, cols.Low, cols.Close, cfg.Patterns.ATRPeriod)
	}
	patterns, err := pattern.Scan(cols, atr, cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}
	var cdl []pattern.CDLEvent
	if cfg.CDL {
		cdl = pattern.ScanCDL(patterns, cols, pattern.CDLOptions{SkipGapped: cfg.SkipGapped})
	}

	rsiDiv, err := divergence.Detect(cols.High, cols.Low, set.RSI, cfg.Divergence)
	if err != nil {
		return nil, fmt.Errorf("rsi divergence: %w", err)
	}
	macdDiv, err := divergence.Detect(cols.High, cols.Low, set.MACD.Line, cfg.Divergence)
	if err != nil {
		return nil, fmt.Errorf("macd divergence: %w", err)
	}

	pv, err := pivot.Analyze(cols, set.VolumeOsc, cfg.Pivot)
	if err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}

	agg, err := signal.NewAggregator(cfg.Signal)
	if err != nil {
		return nil, err
	}
	var euphoria []pattern.Event
	for _, ev := range patterns.Events {
		if ev.Pattern == pattern.PatternEuphoria {
			euphoria = append(euphoria, ev)
		}
	}
	sigs, err := agg.Run(signal.Inputs{
		Columns:        cols,
		Indicators:     set,
		Euphoria:       euphoria,
		RSIDivergence:  rsiDiv,
		MACDDivergence: macdDiv,
	})
	if err != nil {
		return nil, fmt.Errorf("confluence: %w", err)
	}

	return &Report{
		Columns:        cols,
		Indicators:     set,
		Patterns:       patterns,
		CDL:            cdl,
		RSIDivergence:  rsiDiv,
		MACDDivergence: macdDiv,
		Pivot:          pv,
		Signals:        sigs,
	}, nil
}

// Len returns the number of bars.
func (r *Report) Len() int {
	return r.Columns.Len()
}

// Column is one named output column. Exactly one of Float, Bool and Text is set.
type Column struct {
	Name  string
	Float []float64
	Bool  []bool
	Text  []string
}

// Column looks up a float, bool or text column by name.
func (r *Report) Column(name string) (Column, bool) {
	if f, ok := r.Float(name); ok {
		return Column{Name: name, Float: f}, true
	}
	if b, ok := r.Bool(name); ok {
		return Column{Name: name, Bool: b}, true
	}
	if name == "confluence_details" {
		return Column{Name: name, Text: r.Signals.Details}, true
	}
	return Column{}, false
}

// Float returns a named float column: OHLCV, any indicator column, the
// support/resistance levels and the raw pivots.
func (r *Report) Float(name string) ([]float64, bool) {
	switch name {
	case "open":
		return r.Columns.Open, true
	case "high":
		return r.Columns.High, true
	case "low":
		return r.Columns.Low, true
	case "close":
		return r.Columns.Close, true
	case "volume":
		return r.Columns.Volume, true
	case "resistance_level":
		return r.Pivot.Levels.Resistance, true
	case "support_level":
		return r.Pivot.Levels.Support, true
	case "pivot_high":
		return r.Pivot.Highs, true
	case "pivot_low":
		return r.Pivot.Lows, true
	}
	return r.Indicators.Float(name)
}

// Bool returns a named boolean column.
func (r *Report) Bool(name string) ([]bool, bool) {
	switch name {
	case "bullish_divergence":
		return r.RSIDivergence.Bullish, true
	case "bearish_divergence":
		return r.RSIDivergence.Bearish, true
	case "bullish_divergence_known":
		return r.RSIDivergence.BullishKnown, true
	case "bearish_divergence_known":
		return r.RSIDivergence.BearishKnown, true
	case "macd_bullish_divergence":
		return r.MACDDivergence.Bullish, true
	case "macd_bearish_divergence":
		return r.MACDDivergence.Bearish, true
	case "macd_bullish_divergence_known":
		return r.MACDDivergence.BullishKnown, true
	case "macd_bearish_divergence_known":
		return r.MACDDivergence.BearishKnown, true
	case "volume_spike":
		return r.Indicators.Volume.Spike, true
	}
	switch kind := pivot.BreakKind(name); kind {
	case pivot.ResistanceBreak, pivot.BullWickBreak, pivot.SupportBreak, pivot.BearWickBreak:
		return r.Pivot.Breaks.Column(kind), true
	}
	if col, ok := r.Signals.Column(name); ok {
		return col, true
	}
	return r.Patterns.Column(name)
}

var fixedNames = []string{
	"open", "high", "low", "close", "volume",
	"resistance_level", "support_level", "pivot_high", "pivot_low",
	"bullish_divergence", "bearish_divergence", "bullish_divergence_known", "bearish_divergence_known",
	"macd_bullish_divergence", "macd_bearish_divergence",
	"macd_bullish_divergence_known", "macd_bearish_divergence_known",
	"volume_spike",
	string(pivot.ResistanceBreak), string(pivot.BullWickBreak), string(pivot.SupportBreak), string(pivot.BearWickBreak),
	"confluence_details",
}

// ColumnNames lists every name Column accepts, sorted.
func (r *Report) ColumnNames() []string {
	names := append([]string{}, fixedNames...)
	names = append(names, indicator.FloatNames()...)
	names = append(names, signal.ColumnNames()...)
	for p := range r.Patterns.Bullish {
		names = append(names, string(p)+"_bullish", string(p)+"_bearish")
	}
	sort.Strings(names)
	return names
}

// Summary is the JSON view of the newest bar of a report.
type Summary struct {
	Symbol        string                    `json:"symbol"`
	Interval      string                    `json:"interval"`
	Bars          int                       `json:"bars"`
	Time          time.Time                 `json:"time"`
	Close         float64                   `json:"close"`
	RSI           *float64                  `json:"rsi,omitempty"`
	MACDHistogram *float64                  `json:"macd_histogram,omitempty"`
	ADX           *float64                  `json:"adx,omitempty"`
	EnvelopeUpper *float64                  `json:"k_envelope_upper,omitempty"`
	EnvelopeLower *float64                  `json:"k_envelope_lower,omitempty"`
	Resistance    *float64                  `json:"resistance_level,omitempty"`
	Support       *float64                  `json:"support_level,omitempty"`
	Patterns      []pattern.Event           `json:"patterns"`
	Breaks        []pivot.Break             `json:"breaks"`
	Signals       []signal.ConfluenceSignal `json:"signals"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// recentSignals is how many confluence signals a Summary carries.
const recentSignals = 10

// Summarize condenses r for the API. Patterns and breaks are those on the
// newest bar; Signals are the most recent confluence signals, newest last.
func (r *Report) Summarize(symbol, interval string) Summary {
	n := r.Len()
	last := n - 1
	s := Summary{
		Symbol:        symbol,
		Interval:      interval,
		Bars:          n,
		Close:         r.Columns.Close[last],
		RSI:           at(r.Indicators.RSI, last),
		MACDHistogram: at(r.Indicators.MACD.Histogram, last),
		ADX:           at(r.Indicators.ADX.ADX, last),
		EnvelopeUpper: at(r.Indicators.Envelopes.Upper, last),
		EnvelopeLower: at(r.Indicators.Envelopes.Lower, last),
		Resistance:    at(r.Pivot.Levels.Resistance, last),
		Support:       at(r.Pivot.Levels.Support, last),
		Patterns:      append([]pattern.Event{}, r.Patterns.EventsAt(last)...),
		UpdatedAt:     time.Now().UTC(),
	}
	if last < len(r.Columns.Time) {
		s.Time = r.Columns.Time[last]
	}
	for _, b := range r.Pivot.Breaks.Events {
		if b.Index == last {
			s.Breaks = append(s.Breaks, b)
		}
	}
	sigs := r.Signals.Signals
	if len(sigs) > recentSignals {
		sigs = sigs[len(sigs)-recentSignals:]
	}
	s.Signals = append([]signal.ConfluenceSignal{}, sigs...)
	return s
}

// at returns a pointer to x[i], or nil when undefined.
func at(x []float64, i int) *float64 {
	if i < 0 || i >= len(x) || math.IsNaN(x[i]) {
		return nil
	}
	v := x[i]
	return &v
}
