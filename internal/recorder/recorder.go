// Package recorder keeps published signals and backtest runs.
package recorder

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/candle-confluence/internal/backtest"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/signal"
)

// Kind tells a pattern detection from a confluence signal.
type Kind string

const (
	KindPattern    Kind = "pattern"
	KindConfluence Kind = "confluence"
)

// SignalRecord is one published signal. Side, Tier and Count are set for
// confluence signals; Pattern and Confidence for pattern detections.
type SignalRecord struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Symbol     string            `json:"symbol"`
	Interval   string            `json:"interval"`
	Side       signal.Side       `json:"side,omitempty"`
	Direction  pattern.Direction `json:"direction"`
	Pattern    string            `json:"pattern,omitempty"`
	Tier       signal.Tier       `json:"tier,omitempty"`
	Count      int               `json:"count,omitempty"`
	Confidence int               `json:"confidence,omitempty"`
	Price      float64           `json:"price"`
	Rationale  string            `json:"rationale,omitempty"`
	KlineTime  time.Time         `json:"kline_time"`
	CreatedAt  time.Time         `json:"created_at"`
}

func NewConfluenceRecord(symbol, interval string, s signal.ConfluenceSignal) SignalRecord {
	return SignalRecord{
		ID:        uuid.NewString(),
		Kind:      KindConfluence,
		Symbol:    symbol,
		Interval:  interval,
		Side:      s.Side,
		Direction: s.Direction,
		Tier:      s.Tier,
		Count:     s.Count,
		Price:     s.Price,
		Rationale: s.Rationale,
		KlineTime: s.Time,
		CreatedAt: time.Now().UTC(),
	}
}

func NewPatternRecord(s pattern.Signal) SignalRecord {
	return SignalRecord{
		ID:         s.ID,
		Kind:       KindPattern,
		Symbol:     s.Symbol,
		Interval:   s.Interval,
		Direction:  s.Direction,
		Pattern:    string(s.Pattern),
		Confidence: s.Confidence,
		Price:      s.Price,
		KlineTime:  s.KlineTime,
		CreatedAt:  s.DetectedAt,
	}
}

// SignalQuery filters records. Zero fields match everything; MinTier only
// applies to confluence records. Results are newest first.
type SignalQuery struct {
	Symbol  string
	Kind    Kind
	Side    signal.Side
	MinTier signal.Tier
	Since   time.Time
	Limit   int
}

func (q SignalQuery) match(r SignalRecord) bool {
	if q.Symbol != "" && !strings.EqualFold(r.Symbol, q.Symbol) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Side != "" && r.Side != q.Side {
		return false
	}
	if q.MinTier != "" && r.Kind == KindConfluence && r.Tier.Rank() < q.MinTier.Rank() {
		return false
	}
	if !q.Since.IsZero() && r.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}

// SignalStore records and queries published signals.
type SignalStore interface {
	RecordSignal(r SignalRecord) error
	QuerySignals(q SignalQuery) ([]SignalRecord, error)
}

// Recorder is the full persistence surface used by the commands.
type Recorder interface {
	SignalStore
	RecordBacktest(res *backtest.Result, m backtest.Metrics) error
	Close() error
}
