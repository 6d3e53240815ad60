package indicator

import (
	"fmt"
	"sync"

	"example.com/candle-confluence/internal/kline"
)

// Params configures every indicator computed by Compute.
type Params struct {
	RSIPeriod        int     `yaml:"rsi_period" json:"rsi_period"`
	MACDFast         int     `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow         int     `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal       int     `yaml:"macd_signal" json:"macd_signal"`
	ADXPeriod        int     `yaml:"adx_period" json:"adx_period"`
	BBPeriod         int     `yaml:"bb_period" json:"bb_period"`
	BBStdDev         float64 `yaml:"bb_std" json:"bb_std"`
	ATRPeriod        int     `yaml:"atr_period" json:"atr_period"`
	EnvelopeLookback int     `yaml:"k_lookback" json:"k_lookback"`
	VolumeFast       int     `yaml:"volume_fast" json:"volume_fast"`
	VolumeSlow       int     `yaml:"volume_slow" json:"volume_slow"`
	VolumeSpike      float64 `yaml:"volume_spike" json:"volume_spike"`
	VolOscFast       int     `yaml:"vol_osc_fast" json:"vol_osc_fast"`
	VolOscSlow       int     `yaml:"vol_osc_slow" json:"vol_osc_slow"`
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		ADXPeriod:        14,
		BBPeriod:         20,
		BBStdDev:         2,
		ATRPeriod:        14,
		EnvelopeLookback: 800,
		VolumeFast:       20,
		VolumeSlow:       50,
		VolumeSpike:      1.5,
		VolOscFast:       5,
		VolOscSlow:       10,
	}
}

// Validate rejects non-positive periods and multipliers.
func (p Params) Validate() error {
	periods := []struct {
		name string
		v    int
	}{
		{"rsi_period", p.RSIPeriod},
		{"macd_fast", p.MACDFast},
		{"macd_slow", p.MACDSlow},
		{"macd_signal", p.MACDSignal},
		{"adx_period", p.ADXPeriod},
		{"bb_period", p.BBPeriod},
		{"atr_period", p.ATRPeriod},
		{"k_lookback", p.EnvelopeLookback},
		{"volume_fast", p.VolumeFast},
		{"volume_slow", p.VolumeSlow},
		{"vol_osc_fast", p.VolOscFast},
		{"vol_osc_slow", p.VolOscSlow},
	}
	for _, pp := range periods {
		if err := checkPeriod(pp.name, pp.v); err != nil {
			return err
		}
	}
	if p.BBStdDev <= 0 {
		return fmt.Errorf("%w: bb_std=%v must be positive", ErrInvalidParameter, p.BBStdDev)
	}
	if p.VolumeSpike <= 0 {
		return fmt.Errorf("%w: volume_spike=%v must be positive", ErrInvalidParameter, p.VolumeSpike)
	}
	return nil
}

// Set is the full indicator output for one series.
type Set struct {
	Len       int
	RSI       []float64
	MACD      MACD
	ADX       ADX
	Bollinger Bollinger
	ATR       []float64
	Envelopes Envelopes
	Volume    Volume
	VolumeOsc []float64
}

// Compute validates p and computes every indicator over cols. Independent columns are
// computed concurrently; cols is read-only.
func Compute(cols kline.Columns, p Params) (*Set, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s := &Set{Len: cols.Len()}
	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { s.RSI = RSI(cols.Close, p.RSIPeriod) })
	run(func() { s.MACD = ComputeMACD(cols.Close, p.MACDFast, p.MACDSlow, p.MACDSignal) })
	run(func() { s.ADX = ComputeADX(cols.High, cols.Low, cols.Close, p.ADXPeriod) })
	run(func() { s.Bollinger = ComputeBollinger(cols.Close, p.BBPeriod, p.BBStdDev) })
	run(func() { s.ATR = ATR(cols.High, cols.Low, cols.Close, p.ATRPeriod) })
	run(func() { s.Envelopes = ComputeEnvelopes(cols.High, cols.Low, p.EnvelopeLookback) })
	run(func() { s.Volume = ComputeVolume(cols.Volume, p.VolumeFast, p.VolumeSlow, p.VolumeSpike) })
	run(func() { s.VolumeOsc = VolumeOscillator(cols.Volume, p.VolOscFast, p.VolOscSlow) })

	wg.Wait()
	return s, nil
}

// Float returns the named float column, or false if the name is unknown.
func (s *Set) Float(name string) ([]float64, bool) {
	switch name {
	case "rsi":
		return s.RSI, true
	case "macd":
		return s.MACD.Line, true
	case "macd_signal":
		return s.MACD.Signal, true
	case "macd_histogram":
		return s.MACD.Histogram, true
	case "adx":
		return s.ADX.ADX, true
	case "adx_plus_di":
		return s.ADX.PlusDI, true
	case "adx_minus_di":
		return s.ADX.MinusDI, true
	case "bb_middle":
		return s.Bollinger.Middle, true
	case "bb_upper":
		return s.Bollinger.Upper, true
	case "bb_lower":
		return s.Bollinger.Lower, true
	case "atr":
		return s.ATR, true
	case "k_envelope_upper":
		return s.Envelopes.Upper, true
	case "k_envelope_lower":
		return s.Envelopes.Lower, true
	case "vol_ma_fast":
		return s.Volume.MAFast, true
	case "vol_ma_slow":
		return s.Volume.MASlow, true
	case "volume_trend":
		return s.Volume.Trend, true
	case "volume_osc":
		return s.VolumeOsc, true
	}
	return nil, false
}

// FloatNames lists the names accepted by Float.
func FloatNames() []string {
	return []string{
		"rsi", "macd", "macd_signal", "macd_histogram",
		"adx", "adx_plus_di", "adx_minus_di",
		"bb_middle", "bb_upper", "bb_lower", "atr",
		"k_envelope_upper", "k_envelope_lower",
		"vol_ma_fast", "vol_ma_slow", "volume_trend", "volume_osc",
	}
}
