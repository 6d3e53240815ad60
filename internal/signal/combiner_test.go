package signal

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/pivot"
)

func patternSignal(symbol string, typ pattern.PatternType, dir pattern.Direction, at time.Time) pattern.Signal {
	sig := pattern.NewSignal(symbol, "1h", pattern.DetectedPattern{Type: typ, Direction: dir, Confidence: 75}, 100, at)
	sig.DetectedAt = at
	return sig
}

func breakSignal(symbol, direction string, at time.Time) BreakSignal {
	kind := pivot.ResistanceBreak
	if direction == "down" {
		kind = pivot.SupportBreak
	}
	sig := NewBreakSignal(symbol, "1h", pivot.Break{Index: 10, Kind: kind, Level: 100, Close: 101}, at)
	sig.TriggeredAt = at
	return sig
}

func TestNewBreakSignal(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := NewBreakSignal("ETHUSDT", "4h", pivot.Break{Index: 3, Kind: pivot.BearWickBreak, Level: 50, Close: 49}, at)
	if sig.ID == "" || sig.Direction != "down" || sig.Level != 50 || !sig.KlineTime.Equal(at) || sig.TriggeredAt.IsZero() {
		t.Errorf("break signal = %+v", sig)
	}
}

func TestCombiner_AddBreakSignal(t *testing.T) {
	c := NewCombiner(15 * time.Minute)
	now := time.Now()

	c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternHammer, pattern.DirectionBullish, now))
	combined := c.AddBreakSignal(breakSignal("BTCUSDT", "up", now.Add(5*time.Minute)))

	if len(combined) != 1 {
		t.Fatalf("Expected 1 combined signal, got %d", len(combined))
	}
	if combined[0].Correlation != CorrelationStrong {
		t.Errorf("Expected strong correlation, got %s", combined[0].Correlation)
	}
}

func TestCombiner_AddPatternSignal(t *testing.T) {
	c := NewCombiner(15 * time.Minute)
	now := time.Now()

	c.AddBreakSignal(breakSignal("BTCUSDT", "down", now))
	combined := c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternStar, pattern.DirectionBearish, now.Add(5*time.Minute)))

	if len(combined) != 1 {
		t.Fatalf("Expected 1 combined signal, got %d", len(combined))
	}
	if combined[0].Correlation != CorrelationStrong {
		t.Errorf("Expected strong correlation, got %s", combined[0].Correlation)
	}
}

func TestCombiner_Correlation(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		symbol    string
		patDir    pattern.Direction
		brkDir    string
		offset    time.Duration
		wantCount int
		want      CorrelationStrength
	}{
		{"different symbol", "ETHUSDT", pattern.DirectionBullish, "up", 5 * time.Minute, 0, ""},
		{"outside window", "BTCUSDT", pattern.DirectionBullish, "up", 20 * time.Minute, 0, ""},
		{"direction conflict", "BTCUSDT", pattern.DirectionBullish, "down", 5 * time.Minute, 1, CorrelationWeak},
		{"neutral pattern", "BTCUSDT", pattern.DirectionNeutral, "up", 5 * time.Minute, 1, CorrelationModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCombiner(15 * time.Minute)
			c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternDoji, tt.patDir, now))
			combined := c.AddBreakSignal(breakSignal(tt.symbol, tt.brkDir, now.Add(tt.offset)))
			if len(combined) != tt.wantCount {
				t.Fatalf("Expected %d combined signals, got %d", tt.wantCount, len(combined))
			}
			if tt.wantCount > 0 && combined[0].Correlation != tt.want {
				t.Errorf("Expected %s correlation, got %s", tt.want, combined[0].Correlation)
			}
		})
	}
}

func TestCombiner_Callback(t *testing.T) {
	c := NewCombiner(15 * time.Minute)

	var received []CombinedSignal
	c.SetOnCombined(func(cs CombinedSignal) { received = append(received, cs) })

	now := time.Now()
	c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternHammer, pattern.DirectionBullish, now))
	c.AddBreakSignal(breakSignal("BTCUSDT", "up", now.Add(5*time.Minute)))

	if len(received) != 1 {
		t.Fatalf("callback called %d times, want 1", len(received))
	}
	if received[0].Correlation != CorrelationStrong || received[0].BreakSignal == nil || received[0].PatternSignal == nil {
		t.Errorf("callback received %+v", received[0])
	}
}

func TestCombiner_CleanupOld(t *testing.T) {
	c := NewCombiner(15 * time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternHammer, pattern.DirectionBullish, now.Add(-time.Hour)))
	c.AddBreakSignal(breakSignal("BTCUSDT", "up", now))

	if got := c.RecentPatterns("BTCUSDT"); len(got) != 0 {
		t.Errorf("stale pattern kept: %v", got)
	}
	if got := c.RecentBreaks("BTCUSDT"); len(got) != 1 {
		t.Errorf("RecentBreaks = %d, want 1", len(got))
	}
}

func TestProperty_TimeWindowCorrelation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("signals within window are correlated, outside are not", prop.ForAll(
		func(minutesDiff int) bool {
			c := NewCombiner(15 * time.Minute)
			now := time.Now()
			c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternHammer, pattern.DirectionBullish, now))
			combined := c.AddBreakSignal(breakSignal("BTCUSDT", "up", now.Add(time.Duration(minutesDiff)*time.Minute)))

			absDiff := minutesDiff
			if absDiff < 0 {
				absDiff = -absDiff
			}
			return (absDiff <= 15) == (len(combined) > 0)
		},
		gen.IntRange(-30, 30),
	))

	properties.TestingRun(t)
}

func TestProperty_DirectionAgreement(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("agreement is strong and conflict is weak", prop.ForAll(
		func(up, bullish bool) bool {
			c := NewCombiner(15 * time.Minute)
			now := time.Now()

			patDir := pattern.DirectionBearish
			if bullish {
				patDir = pattern.DirectionBullish
			}
			brkDir := "down"
			if up {
				brkDir = "up"
			}
			c.AddPatternSignal(patternSignal("BTCUSDT", pattern.PatternEngulfing, patDir, now))
			combined := c.AddBreakSignal(breakSignal("BTCUSDT", brkDir, now.Add(time.Minute)))
			if len(combined) != 1 {
				return false
			}
			want := CorrelationWeak
			if up == bullish {
				want = CorrelationStrong
			}
			return combined[0].Correlation == want && !combined[0].CombinedAt.IsZero()
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
