package pattern

import (
	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
)

// DetectorConfig holds configuration for the live pattern detector.
type DetectorConfig struct {
	Thresholds  Thresholds
	IncludeCDL  bool // Also run the talib-cdl family
	CryptoMode  bool // Skip gap-dependent talib-cdl patterns
	MinStrength int  // Minimum talib-cdl strength (0-100)
}

// DefaultDetectorConfig returns the default detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Thresholds:  DefaultThresholds(),
		IncludeCDL:  true,
		CryptoMode:  true,
		MinStrength: 60,
	}
}

// Detector reports the patterns completed by the newest closed candle.
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a new pattern detector.
func NewDetector(config DetectorConfig) *Detector {
	return &Detector{config: config}
}

// DetectedPattern represents a pattern completed at the newest bar.
type DetectedPattern struct {
	Type       PatternType
	Direction  Direction
	Confidence int // 100 for registry predicates, talib-cdl strength otherwise
}

// Detect runs the registry (and optionally talib-cdl) over klines and
// returns what fired on the last bar. klines must be oldest first.
func (d *Detector) Detect(klines []kline.Kline) ([]DetectedPattern, error) {
	if len(klines) < 2 {
		return nil, nil
	}
	cols := kline.ColumnsOf(klines)
	var atr []float64
	if len(klines) >= d.config.Thresholds.ATRPeriod && d.config.Thresholds.ATRPeriod > 0 {
		atr = indicator.ATR(cols.High, cols.Low, cols.Close, d.config.Thresholds.ATRPeriod)
	}
	res, err := Scan(cols, atr, d.config.Thresholds)
	if err != nil {
		return nil, err
	}

	last := len(klines) - 1
	var patterns []DetectedPattern
	for _, ev := range res.EventsAt(last) {
		patterns = append(patterns, DetectedPattern{Type: ev.Pattern, Direction: ev.Direction, Confidence: 100})
	}
	if !d.config.IncludeCDL {
		return patterns, nil
	}
	for _, ev := range ScanCDL(nil, cols, CDLOptions{SkipGapped: d.config.CryptoMode}) {
		if ev.Index != last || ev.Strength < d.config.MinStrength {
			continue
		}
		patterns = append(patterns, DetectedPattern{Type: ev.Pattern, Direction: ev.Direction, Confidence: ev.Strength})
	}
	return patterns, nil
}
