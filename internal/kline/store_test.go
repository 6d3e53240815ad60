package kline

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func closedKline(symbol string, ts time.Time, open, close float64) Kline {
	high, low := open, close
	if close > open {
		high, low = close, open
	}
	return Kline{
		Symbol:   symbol,
		Open:     open,
		High:     high + 1,
		Low:      low * 0.9,
		Close:    close,
		Volume:   100,
		OpenTime: ts,
		IsClosed: true,
	}
}

func TestClosedKlineFixtureIsValid(t *testing.T) {
	tests := []struct{ open, close float64 }{{1, 2}, {2, 1}, {0.5, 0.6}, {50000, 50100}}
	for _, tt := range tests {
		k := closedKline("BTCUSDT", time.Time{}, tt.open, tt.close)
		if err := k.Validate(); err != nil {
			t.Errorf("closedKline(%v, %v): %v", tt.open, tt.close, err)
		}
	}
}

func TestStore_Upsert_Forming(t *testing.T) {
	store := NewStore(5*time.Minute, 12)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	k := closedKline("BTCUSDT", ts, 50000, 50100)
	k.IsClosed = false
	if store.Upsert(k) {
		t.Error("Expected no close on forming candle")
	}

	current, ok := store.GetCurrentKline("BTCUSDT")
	if !ok {
		t.Fatal("Expected current kline to exist")
	}
	if current.Close != 50100 {
		t.Errorf("Close = %v, want 50100", current.Close)
	}
	if store.KlineCount("BTCUSDT") != 0 {
		t.Errorf("KlineCount = %d, want 0", store.KlineCount("BTCUSDT"))
	}
}

func TestStore_Upsert_Close(t *testing.T) {
	store := NewStore(5*time.Minute, 12)

	var closedSymbol string
	var closedKlines []Kline
	var wg sync.WaitGroup
	wg.Add(1)

	store.SetOnClose(func(symbol string, klines []Kline) {
		closedSymbol = symbol
		closedKlines = klines
		wg.Done()
	})

	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	forming := closedKline("BTCUSDT", ts, 50000, 50500)
	forming.IsClosed = false
	store.Upsert(forming)

	if !store.Upsert(closedKline("BTCUSDT", ts, 50000, 51000)) {
		t.Error("Expected kline to close")
	}
	wg.Wait()

	if closedSymbol != "BTCUSDT" {
		t.Errorf("Callback symbol = %v, want BTCUSDT", closedSymbol)
	}
	if len(closedKlines) != 1 {
		t.Fatalf("Callback klines length = %v, want 1", len(closedKlines))
	}
	if closedKlines[0].Close != 51000 {
		t.Errorf("Closed kline Close = %v, want 51000", closedKlines[0].Close)
	}
	if _, ok := store.GetCurrentKline("BTCUSDT"); ok {
		t.Error("Current should be cleared after close")
	}
}

func TestStore_Upsert_DuplicateAndStale(t *testing.T) {
	store := NewStore(5*time.Minute, 12)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	store.Upsert(closedKline("BTCUSDT", base.Add(5*time.Minute), 100, 101))

	if store.Upsert(closedKline("BTCUSDT", base.Add(5*time.Minute), 100, 102)) {
		t.Error("Repeated close should not report a new candle")
	}
	if store.Upsert(closedKline("BTCUSDT", base, 100, 99)) {
		t.Error("Older candle should be ignored")
	}

	klines, _ := store.GetKlines("BTCUSDT")
	if len(klines) != 1 {
		t.Fatalf("len = %d, want 1", len(klines))
	}
	if klines[0].Close != 102 {
		t.Errorf("Close = %v, want 102 (replaced)", klines[0].Close)
	}
}

func TestStore_Upsert_Invalid(t *testing.T) {
	store := NewStore(5*time.Minute, 12)
	ts := time.Now()

	bad := closedKline("BTCUSDT", ts, 100, 101)
	bad.High = 50
	if store.Upsert(bad) {
		t.Error("Invalid candle should be rejected")
	}
	if store.Upsert(closedKline("", ts, 100, 101)) {
		t.Error("Candle without symbol should be rejected")
	}
	if store.SymbolCount() != 0 {
		t.Errorf("SymbolCount = %d, want 0", store.SymbolCount())
	}
}

func TestStore_RollingWindow(t *testing.T) {
	maxCount := 3
	store := NewStore(5*time.Minute, maxCount)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		store.Upsert(closedKline("BTCUSDT", base.Add(time.Duration(i*5)*time.Minute), float64(50000+i*100), float64(50050+i*100)))
	}

	klines, ok := store.GetKlines("BTCUSDT")
	if !ok {
		t.Fatal("Expected klines to exist")
	}
	if len(klines) != maxCount {
		t.Errorf("Klines count = %v, want %v", len(klines), maxCount)
	}
	if klines[0].Open != 50200 {
		t.Errorf("First kline Open = %v, want 50200", klines[0].Open)
	}
}

func TestStore_Seed(t *testing.T) {
	store := NewStore(5*time.Minute, 2)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	store.Seed("ETHUSDT", []Kline{
		closedKline("", base.Add(10*time.Minute), 3, 4),
		closedKline("", base, 1, 2),
		closedKline("", base.Add(5*time.Minute), 2, 3),
	})

	klines, ok := store.GetKlines("ETHUSDT")
	if !ok || len(klines) != 2 {
		t.Fatalf("GetKlines = %d rows, want 2", len(klines))
	}
	if klines[0].Open != 2 || klines[1].Open != 3 {
		t.Errorf("Seed kept %v, %v; want newest two in order", klines[0].Open, klines[1].Open)
	}
	if klines[0].Symbol != "ETHUSDT" {
		t.Errorf("Symbol = %q, want ETHUSDT", klines[0].Symbol)
	}
}

func TestStore_CleanupStale(t *testing.T) {
	store := NewStore(5*time.Minute, 12)
	now := time.Now()

	store.Upsert(closedKline("BTCUSDT", now, 50000, 50010))
	store.Upsert(closedKline("ETHUSDT", now, 3000, 3010))

	store.mu.Lock()
	store.klines["ETHUSDT"].LastSeen = now.Add(-2 * time.Hour)
	store.mu.Unlock()

	removed := store.CleanupStale(1 * time.Hour)
	if removed != 1 {
		t.Errorf("Removed = %v, want 1", removed)
	}
	if store.SymbolCount() != 1 {
		t.Errorf("SymbolCount = %v, want 1", store.SymbolCount())
	}
	if got := store.Symbols(); len(got) != 1 || got[0] != "BTCUSDT" {
		t.Errorf("Symbols() = %v, want [BTCUSDT]", got)
	}
}

func TestStore_Stats(t *testing.T) {
	store := NewStore(15*time.Minute, 12)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, sym := range []string{"BTCUSDT", "ADAUSDT"} {
		k := closedKline(sym, ts, 1, 2)
		if err := k.Validate(); err != nil {
			t.Fatalf("fixture candle invalid: %v", err)
		}
		if !store.Upsert(k) {
			t.Fatalf("Upsert(%s) did not close a candle", sym)
		}
	}

	stats := store.Stats()
	if stats.SymbolCount != 2 || len(stats.Symbols) != 2 {
		t.Fatalf("SymbolCount = %d, Symbols = %d, want 2", stats.SymbolCount, len(stats.Symbols))
	}
	if stats.Interval != "15m0s" {
		t.Errorf("Interval = %q, want 15m0s", stats.Interval)
	}
	if stats.Symbols[0].Symbol != "ADAUSDT" {
		t.Errorf("Symbols not sorted: %v", stats.Symbols[0].Symbol)
	}
	if !stats.Symbols[0].LastClosed.Equal(ts) {
		t.Errorf("LastClosed = %v, want %v", stats.Symbols[0].LastClosed, ts)
	}
}

// Property Tests

func TestProperty_RollingWindowSizeLimit(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Rolling window never exceeds maxCount", prop.ForAll(
		func(maxCount, numKlines int) bool {
			store := NewStore(5*time.Minute, maxCount)
			base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

			for i := 0; i < numKlines; i++ {
				store.Upsert(closedKline("TEST", base.Add(time.Duration(i*5)*time.Minute), float64(50000+i), float64(50001+i)))
			}

			return store.KlineCount("TEST") <= maxCount
		},
		gen.IntRange(1, 100),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_HistoryStaysOrdered(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("history open times strictly increase regardless of arrival order", prop.ForAll(
		func(offsets []int) bool {
			store := NewStore(time.Minute, 500)
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for _, off := range offsets {
				store.Upsert(closedKline("TEST", base.Add(time.Duration(off)*time.Minute), 10, 11))
			}
			klines, _ := store.GetKlines("TEST")
			for i := 1; i < len(klines); i++ {
				if !klines[i].OpenTime.After(klines[i-1].OpenTime) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 300)),
	))

	properties.TestingRun(t)
}

func TestNewStore_InvalidMaxCount(t *testing.T) {
	for _, maxCount := range []int{-10, 0} {
		store := NewStore(5*time.Minute, maxCount)
		if store == nil {
			t.Fatal("NewStore returned nil")
		}
		if store.maxCount != DefaultKlineCount {
			t.Errorf("maxCount = %d, want default %d", store.maxCount, DefaultKlineCount)
		}
	}
}

func TestNewStore_ValidMaxCount(t *testing.T) {
	store := NewStore(5*time.Minute, 20)
	if store.maxCount != 20 {
		t.Errorf("maxCount = %d, want 20", store.maxCount)
	}
}
