package signal

import (
	"fmt"
	"math"

	"example.com/candle-confluence/internal/pattern"
)

// Kind names a confirmation source.
type Kind string

const (
	KindVolume Kind = "volume"
	KindRSI    Kind = "rsi"
	KindMACD   Kind = "macd"
	KindADX    Kind = "adx"
)

// Conviction grades a single confirmation.
type Conviction string

const (
	ConvictionHigh   Conviction = "high"
	ConvictionMedium Conviction = "medium"
	ConvictionLow    Conviction = "low"
)

// Confirmation is the shared result of every confirmation check.
type Confirmation struct {
	Kind       Kind       `json:"kind"`
	Confirmed  bool       `json:"confirmed"`
	Conviction Conviction `json:"conviction"`
	Reason     string     `json:"reason"`
	Value      float64    `json:"value,omitempty"`
}

func unconfirmed(kind Kind, reason string) Confirmation {
	return Confirmation{Kind: kind, Conviction: ConvictionLow, Reason: reason}
}

func nan(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// CheckVolume looks for exhaustion: the three bars ending at the pattern bar
// p trade less on average than the lookback bars before them. A spike at the
// evaluation bar e raises the conviction.
func CheckVolume(vol, maFast []float64, p, e int, cfg Config) Confirmation {
	lb := cfg.VolumeLookback
	if p < lb || p >= len(vol) {
		return unconfirmed(KindVolume, "Insufficient data")
	}
	start := p - 2
	patternMean, ok := mean(vol[start : p+1])
	if !ok {
		return unconfirmed(KindVolume, "Insufficient data")
	}
	preMean := patternMean
	if start-lb >= 0 {
		if m, ok := mean(vol[start-lb : start]); ok {
			preMean = m
		}
	}
	decreasing := patternMean < preMean
	spike := false
	if e >= 0 && e < len(vol) && e < len(maFast) && !nan(vol[e], maFast[e]) {
		spike = vol[e] > cfg.SpikeMultiplier*maFast[e]
	}

	c := Confirmation{Kind: KindVolume, Confirmed: decreasing, Conviction: ConvictionLow, Value: patternMean}
	switch {
	case decreasing && spike:
		c.Conviction = ConvictionHigh
		c.Reason = "Volume Exhaustion + Spike"
	case decreasing:
		c.Conviction = ConvictionMedium
		c.Reason = "Volume Exhaustion"
	default:
		c.Reason = "Volume Not Decreasing"
	}
	return c
}

// CheckRSI confirms on oversold/overbought, a matching divergence, or the
// correct side of the midpoint, in that order.
func CheckRSI(rsi float64, divergence bool, dir pattern.Direction, cfg Config) Confirmation {
	if math.IsNaN(rsi) {
		return unconfirmed(KindRSI, "No RSI data")
	}
	c := Confirmation{Kind: KindRSI, Confirmed: true, Conviction: ConvictionHigh, Value: rsi}
	if dir == pattern.DirectionBullish {
		switch {
		case rsi < cfg.RSIOversold:
			c.Reason = "RSI Oversold"
		case divergence:
			c.Reason = "Bullish Divergence"
		case rsi < cfg.RSIMidpoint:
			c.Conviction, c.Reason = ConvictionMedium, "RSI Below Midpoint"
		default:
			c.Confirmed, c.Conviction = false, ConvictionLow
			c.Reason = fmt.Sprintf("RSI Too High (%.1f)", rsi)
		}
		return c
	}
	switch {
	case rsi > cfg.RSIOverbought:
		c.Reason = "RSI Overbought"
	case divergence:
		c.Reason = "Bearish Divergence"
	case rsi > cfg.RSIMidpoint:
		c.Conviction, c.Reason = ConvictionMedium, "RSI Above Midpoint"
	default:
		c.Confirmed, c.Conviction = false, ConvictionLow
		c.Reason = fmt.Sprintf("RSI Too Low (%.1f)", rsi)
	}
	return c
}

// CheckMACD reads the MACD columns at bar e. A bearish crossover confirms
// either direction: it marks momentum turning over, which Euphoria needs on
// both sides, not a directional match.
func CheckMACD(line, sig, hist []float64, e int, divergence bool, dir pattern.Direction, cfg Config) Confirmation {
	if e < 0 || e >= len(line) || nan(line[e], sig[e]) {
		return unconfirmed(KindMACD, "No MACD data")
	}
	c := Confirmation{Kind: KindMACD, Confirmed: true, Conviction: ConvictionHigh, Value: line[e]}

	if e > 0 && !nan(line[e-1], sig[e-1]) && line[e-1] > sig[e-1] && line[e] < sig[e] {
		c.Reason = "Bearish Crossover"
		return c
	}
	if divergence {
		if dir == pattern.DirectionBullish {
			c.Reason = "Bullish Divergence"
		} else {
			c.Reason = "Bearish Divergence"
		}
		return c
	}
	if shrinking(hist, e, cfg.MACDLookback, cfg.HistogramShrink) {
		c.Conviction, c.Reason = ConvictionMedium, "Histogram Shrinking"
		return c
	}
	return unconfirmed(KindMACD, "No MACD Confirmation")
}

func shrinking(hist []float64, e, lookback int, ratio float64) bool {
	if e < lookback || e >= len(hist) || math.IsNaN(hist[e]) {
		return false
	}
	var sum float64
	var count int
	for _, h := range hist[e-lookback : e] {
		if math.IsNaN(h) {
			continue
		}
		sum += math.Abs(h)
		count++
	}
	if count == 0 {
		return false
	}
	return math.Abs(hist[e]) < ratio*(sum/float64(count))
}

// CheckADX confirms when the trend is strong and the directional indicators
// agree with dir.
func CheckADX(adx, plusDI, minusDI float64, dir pattern.Direction, cfg Config) Confirmation {
	if nan(adx, plusDI, minusDI) {
		return unconfirmed(KindADX, "No ADX data")
	}
	strong := adx > cfg.ADXStrong
	veryStrong := adx > cfg.ADXVeryStrong

	bull := dir == pattern.DirectionBullish
	aligned := plusDI > minusDI
	side, other := "Bullish", "Bearish"
	if !bull {
		aligned = plusDI < minusDI
		side, other = "Bearish", "Bullish"
	}

	c := Confirmation{Kind: KindADX, Value: adx, Conviction: ConvictionLow}
	switch {
	case strong && aligned && veryStrong:
		c.Confirmed, c.Conviction = true, ConvictionHigh
		c.Reason = fmt.Sprintf("ADX Very Strong + %s DI", side)
	case strong && aligned:
		c.Confirmed, c.Conviction = true, ConvictionMedium
		c.Reason = fmt.Sprintf("ADX Strong + %s DI", side)
	case strong && bull:
		c.Reason = fmt.Sprintf("ADX Strong but Bearish DI (%.1f < %.1f)", plusDI, minusDI)
	case strong:
		c.Reason = fmt.Sprintf("ADX Strong but Bullish DI (%.1f > %.1f)", plusDI, minusDI)
	case aligned:
		c.Reason = fmt.Sprintf("%s DI but Weak ADX (%.1f <= %.0f)", side, adx, cfg.ADXStrong)
	default:
		c.Reason = fmt.Sprintf("Weak ADX (%.1f) and %s DI", adx, other)
	}
	return c
}

// mean averages the non-NaN values of x.
func mean(x []float64) (float64, bool) {
	var sum float64
	var count int
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return math.NaN(), false
	}
	return sum / float64(count), true
}
