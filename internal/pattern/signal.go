package pattern

import (
	"time"

	"github.com/google/uuid"
)

// Signal is a pattern detection published by the live monitor.
type Signal struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Interval   string      `json:"interval"`
	Pattern    PatternType `json:"pattern"`
	Category   Category    `json:"category"`
	Direction  Direction   `json:"direction"`
	Confidence int         `json:"confidence"` // 0-100
	Price      float64     `json:"price"`      // Close of the detection bar
	KlineTime  time.Time   `json:"kline_time"` // Open time of the detection bar
	DetectedAt time.Time   `json:"detected_at"`
}

// NewSignal creates a pattern signal with a fresh ID and catalogue category.
func NewSignal(symbol, interval string, p DetectedPattern, price float64, klineTime time.Time) Signal {
	return Signal{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Interval:   interval,
		Pattern:    p.Type,
		Category:   CategoryOf(p.Type),
		Direction:  p.Direction,
		Confidence: p.Confidence,
		Price:      price,
		KlineTime:  klineTime,
		DetectedAt: time.Now().UTC(),
	}
}

// IsValid returns true if the signal has all required fields.
func (s *Signal) IsValid() bool {
	if s.ID == "" || s.Symbol == "" || s.Pattern == "" {
		return false
	}
	if s.Direction != DirectionBullish && s.Direction != DirectionBearish && s.Direction != DirectionNeutral {
		return false
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return false
	}
	return !s.KlineTime.IsZero() && !s.DetectedAt.IsZero()
}
