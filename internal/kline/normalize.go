package kline

import (
	"fmt"
	"sort"
	"time"
)

// intervals maps exchange interval strings to their duration. 1M is approximated as 30 days.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// IntervalDuration converts an interval string such as "15m" or "1d" to a duration.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}

// Normalize deduplicates klines by open time and sorts them oldest first.
// The first occurrence of a duplicated open time wins. The input is not modified.
func Normalize(klines []Kline) []Kline {
	seen := make(map[int64]struct{}, len(klines))
	out := make([]Kline, 0, len(klines))
	for i := range klines {
		key := klines[i].OpenTimeMs()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, klines[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

// Gap describes missing candles between two consecutive rows.
type Gap struct {
	After   time.Time     `json:"after"`
	Before  time.Time     `json:"before"`
	Missing int           `json:"missing"`
	Span    time.Duration `json:"span"`
}

// DetectGaps reports places where consecutive open times are more than one interval apart.
// Gaps are advisory: the series stays usable.
func DetectGaps(klines []Kline, interval time.Duration) []Gap {
	if interval <= 0 || len(klines) < 2 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(klines); i++ {
		span := klines[i].OpenTime.Sub(klines[i-1].OpenTime)
		if span > interval {
			gaps = append(gaps, Gap{
				After:   klines[i-1].OpenTime,
				Before:  klines[i].OpenTime,
				Missing: int(span/interval) - 1,
				Span:    span,
			})
		}
	}
	return gaps
}

// ValidateSeries checks every kline and strict ordering of open times.
func ValidateSeries(klines []Kline) error {
	for i := range klines {
		if err := klines[i].Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if i > 0 && !klines[i].OpenTime.After(klines[i-1].OpenTime) {
			return fmt.Errorf("row %d: %w: open time not increasing", i, ErrInvalidKline)
		}
	}
	return nil
}
