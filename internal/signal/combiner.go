package signal

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/pivot"
)

// BreakSignal is a support/resistance break observed on a live symbol.
type BreakSignal struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Interval    string          `json:"interval"`
	Kind        pivot.BreakKind `json:"kind"`
	Direction   string          `json:"direction"` // "up" or "down"
	Level       float64         `json:"level"`
	Close       float64         `json:"close"`
	KlineTime   time.Time       `json:"kline_time"`
	TriggeredAt time.Time       `json:"triggered_at"`
}

// NewBreakSignal wraps a pivot break for the combiner.
func NewBreakSignal(symbol, interval string, b pivot.Break, klineTime time.Time) BreakSignal {
	return BreakSignal{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Interval:    interval,
		Kind:        b.Kind,
		Direction:   b.Kind.Direction(),
		Level:       b.Level,
		Close:       b.Close,
		KlineTime:   klineTime,
		TriggeredAt: time.Now().UTC(),
	}
}

// CorrelationStrength represents the strength of correlation between signals.
type CorrelationStrength string

const (
	CorrelationStrong   CorrelationStrength = "strong"   // Direction match
	CorrelationModerate CorrelationStrength = "moderate" // Neutral pattern
	CorrelationWeak     CorrelationStrength = "weak"     // Direction conflict
)

// CombinedSignal represents a correlated break and pattern signal.
type CombinedSignal struct {
	BreakSignal   *BreakSignal        `json:"break_signal"`
	PatternSignal *pattern.Signal     `json:"pattern_signal"`
	Correlation   CorrelationStrength `json:"correlation"`
	CombinedAt    time.Time           `json:"combined_at"`
}

// Combiner correlates level breaks with pattern signals on the same symbol.
type Combiner struct {
	mu             sync.RWMutex
	recentBreaks   map[string][]BreakSignal    // symbol -> recent breaks
	recentPatterns map[string][]pattern.Signal // symbol -> recent pattern signals
	window         time.Duration
	onCombined     func(CombinedSignal)
	now            func() time.Time
}

// NewCombiner creates a combiner that pairs signals at most window apart.
func NewCombiner(window time.Duration) *Combiner {
	return &Combiner{
		recentBreaks:   make(map[string][]BreakSignal),
		recentPatterns: make(map[string][]pattern.Signal),
		window:         window,
		now:            time.Now,
	}
}

// SetOnCombined sets the callback for combined signals.
func (c *Combiner) SetOnCombined(fn func(CombinedSignal)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCombined = fn
}

// AddBreakSignal records a break and returns its correlations with recent patterns.
func (c *Combiner) AddBreakSignal(sig BreakSignal) []CombinedSignal {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentBreaks[sig.Symbol] = append(c.recentBreaks[sig.Symbol], sig)
	c.cleanupOld()

	var combined []CombinedSignal
	patterns := c.recentPatterns[sig.Symbol]
	for i := range patterns {
		pat := patterns[i]
		if !c.isWithinWindow(sig.TriggeredAt, pat.DetectedAt) {
			continue
		}
		brk := sig
		combined = append(combined, c.emit(&brk, &pat))
	}
	return combined
}

// AddPatternSignal records a pattern signal and returns its correlations with recent breaks.
func (c *Combiner) AddPatternSignal(sig pattern.Signal) []CombinedSignal {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentPatterns[sig.Symbol] = append(c.recentPatterns[sig.Symbol], sig)
	c.cleanupOld()

	var combined []CombinedSignal
	breaks := c.recentBreaks[sig.Symbol]
	for i := range breaks {
		brk := breaks[i]
		if !c.isWithinWindow(brk.TriggeredAt, sig.DetectedAt) {
			continue
		}
		pat := sig
		combined = append(combined, c.emit(&brk, &pat))
	}
	return combined
}

func (c *Combiner) emit(brk *BreakSignal, pat *pattern.Signal) CombinedSignal {
	cs := CombinedSignal{
		BreakSignal:   brk,
		PatternSignal: pat,
		Correlation:   correlate(*brk, *pat),
		CombinedAt:    c.now().UTC(),
	}
	if c.onCombined != nil {
		c.onCombined(cs)
	}
	return cs
}

func (c *Combiner) isWithinWindow(t1, t2 time.Time) bool {
	diff := t1.Sub(t2)
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.window
}

// correlate is strong when the break and pattern agree, moderate for a
// neutral pattern and weak on conflict.
func correlate(brk BreakSignal, pat pattern.Signal) CorrelationStrength {
	if pat.Direction == pattern.DirectionNeutral || pat.Direction == pattern.DirectionNone {
		return CorrelationModerate
	}
	up := brk.Direction == "up"
	bullish := pat.Direction == pattern.DirectionBullish
	if up == bullish {
		return CorrelationStrong
	}
	return CorrelationWeak
}

// cleanupOld drops signals older than twice the window.
func (c *Combiner) cleanupOld() {
	cutoff := c.now().Add(-c.window * 2)

	for symbol, sigs := range c.recentBreaks {
		var kept []BreakSignal
		for _, sig := range sigs {
			if sig.TriggeredAt.After(cutoff) {
				kept = append(kept, sig)
			}
		}
		if len(kept) > 0 {
			c.recentBreaks[symbol] = kept
		} else {
			delete(c.recentBreaks, symbol)
		}
	}

	for symbol, sigs := range c.recentPatterns {
		var kept []pattern.Signal
		for _, sig := range sigs {
			if sig.DetectedAt.After(cutoff) {
				kept = append(kept, sig)
			}
		}
		if len(kept) > 0 {
			c.recentPatterns[symbol] = kept
		} else {
			delete(c.recentPatterns, symbol)
		}
	}
}

// RecentBreaks returns recent break signals for a symbol.
func (c *Combiner) RecentBreaks(symbol string) []BreakSignal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]BreakSignal, len(c.recentBreaks[symbol]))
	copy(out, c.recentBreaks[symbol])
	return out
}

// RecentPatterns returns recent pattern signals for a symbol.
func (c *Combiner) RecentPatterns(symbol string) []pattern.Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]pattern.Signal, len(c.recentPatterns[symbol]))
	copy(out, c.recentPatterns[symbol])
	return out
}
