package backtest

import (
	"fmt"

	"example.com/candle-confluence/internal/indicator"
)

// RSIConfig configures RunRSI.
type RSIConfig struct {
	InitialCapital     float64 `yaml:"initial_capital" json:"initial_capital"`
	BuyAmount          float64 `yaml:"buy_amount" json:"buy_amount"`
	SellAmount         float64 `yaml:"sell_amount" json:"sell_amount"`
	RSIPeriod          int     `yaml:"rsi_period" json:"rsi_period"`
	FeePct             float64 `yaml:"fee_pct" json:"fee_pct"` // fraction, 0.001 = 0.1%
	RSIBuy             float64 `yaml:"rsi_buy" json:"rsi_buy"`
	RSISell            float64 `yaml:"rsi_sell" json:"rsi_sell"`
	UseDivergence      bool    `yaml:"use_divergence" json:"use_divergence"`
	DivergenceLookback int     `yaml:"divergence_lookback" json:"divergence_lookback"`
	TakeProfitPct      float64 `yaml:"take_profit_pct" json:"take_profit_pct"` // percent
	StopLossPct        float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`     // percent

	UseVolume      bool    `yaml:"use_volume" json:"use_volume"`
	RequireVolume  bool    `yaml:"require_volume" json:"require_volume"`
	VolumeFast     int     `yaml:"volume_fast" json:"volume_fast"`
	VolumeSlow     int     `yaml:"volume_slow" json:"volume_slow"`
	VolumeSpike    float64 `yaml:"volume_spike" json:"volume_spike"`
	VolumeLookback int     `yaml:"volume_lookback" json:"volume_lookback"`
	PeriodsPerYear float64 `yaml:"periods_per_year" json:"periods_per_year"`
}

// DefaultRSIConfig returns the stock RSI bot settings.
func DefaultRSIConfig() RSIConfig {
	return RSIConfig{
		InitialCapital:     10000,
		BuyAmount:          1000,
		SellAmount:         1000,
		RSIPeriod:          14,
		FeePct:             0.001,
		RSIBuy:             30,
		RSISell:            70,
		UseDivergence:      true,
		DivergenceLookback: 20,
		TakeProfitPct:      1.25,
		StopLossPct:        0.75,
		VolumeFast:         20,
		VolumeSlow:         50,
		VolumeSpike:        1.5,
		VolumeLookback:     5,
		PeriodsPerYear:     252,
	}
}

// Validate rejects settings the bot cannot run with.
func (c RSIConfig) Validate() error {
	switch {
	case c.InitialCapital <= 0 || c.BuyAmount <= 0 || c.SellAmount <= 0:
		return fmt.Errorf("%w: capital and trade amounts must be positive", indicator.ErrInvalidParameter)
	case c.RSIPeriod <= 0:
		return fmt.Errorf("%w: rsi_period=%d", indicator.ErrInvalidParameter, c.RSIPeriod)
	case c.FeePct < 0 || c.FeePct >= 1:
		return fmt.Errorf("%w: fee_pct=%v", indicator.ErrInvalidParameter, c.FeePct)
	case c.TakeProfitPct <= 0 || c.StopLossPct <= 0:
		return fmt.Errorf("%w: take profit and stop loss must be positive", indicator.ErrInvalidParameter)
	case c.UseDivergence && c.DivergenceLookback <= 2:
		return fmt.Errorf("%w: divergence_lookback=%d", indicator.ErrInvalidParameter, c.DivergenceLookback)
	case c.UseVolume && (c.VolumeFast <= 0 || c.VolumeSlow <= 0 || c.VolumeSpike <= 0):
		return fmt.Errorf("%w: volume participation settings must be positive", indicator.ErrInvalidParameter)
	}
	return nil
}

// VolumeConfig configures RunVolume.
type VolumeConfig struct {
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital"`
	VolumeThreshold float64 `yaml:"volume_threshold" json:"volume_threshold"` // base asset units
	RiskPct         float64 `yaml:"risk_pct" json:"risk_pct"`                 // percent
	RewardPct       float64 `yaml:"reward_pct" json:"reward_pct"`             // percent
	MaxHolding      int     `yaml:"max_holding" json:"max_holding"`           // candles
	RSIPeriod       int     `yaml:"rsi_period" json:"rsi_period"`
	FeePct          float64 `yaml:"fee_pct" json:"fee_pct"`
	StopBufferPct   float64 `yaml:"stop_buffer_pct" json:"stop_buffer_pct"` // fraction
	PeriodsPerYear  float64 `yaml:"periods_per_year" json:"periods_per_year"`
}

// DefaultVolumeConfig returns the stock volume breakout settings for 15m candles.
func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{
		InitialCapital:  10000,
		VolumeThreshold: 1.0,
		RiskPct:         1.0,
		RewardPct:       2.0,
		MaxHolding:      5,
		RSIPeriod:       14,
		FeePct:          0.001,
		StopBufferPct:   0.001,
		PeriodsPerYear:  96 * 365,
	}
}

// Validate rejects settings the bot cannot run with.
func (c VolumeConfig) Validate() error {
	switch {
	case c.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital=%v", indicator.ErrInvalidParameter, c.InitialCapital)
	case c.RiskPct <= 0 || c.RiskPct >= 100 || c.RewardPct <= 0:
		return fmt.Errorf("%w: risk_pct=%v reward_pct=%v", indicator.ErrInvalidParameter, c.RiskPct, c.RewardPct)
	case c.MaxHolding <= 0:
		return fmt.Errorf("%w: max_holding=%d", indicator.ErrInvalidParameter, c.MaxHolding)
	case c.RSIPeriod <= 0:
		return fmt.Errorf("%w: rsi_period=%d", indicator.ErrInvalidParameter, c.RSIPeriod)
	case c.FeePct < 0 || c.FeePct >= 1 || c.StopBufferPct < 0:
		return fmt.Errorf("%w: fee_pct=%v stop_buffer_pct=%v", indicator.ErrInvalidParameter, c.FeePct, c.StopBufferPct)
	}
	return nil
}
