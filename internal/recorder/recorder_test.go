package recorder

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/candle-confluence/internal/backtest"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/signal"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func confluence(symbol string, side signal.Side, tier signal.Tier, at time.Time) SignalRecord {
	r := NewConfluenceRecord(symbol, "1d", signal.ConfluenceSignal{
		Time:      at,
		Side:      side,
		Direction: pattern.DirectionBullish,
		Price:     100,
		Tier:      tier,
		Count:     2,
		Rationale: tier.Label() + ": Vol",
	})
	r.CreatedAt = at
	return r
}

func patternRecord(symbol string, at time.Time) SignalRecord {
	s := pattern.NewSignal(symbol, "1d", pattern.DetectedPattern{Type: "hammer", Direction: pattern.DirectionBullish, Confidence: 70}, 99, at)
	s.DetectedAt = at
	return NewPatternRecord(s)
}

func seed(t *testing.T, s SignalStore) {
	t.Helper()
	recs := []SignalRecord{
		confluence("BTCUSDT", signal.SideBuy, signal.TierLow, base),
		confluence("BTCUSDT", signal.SideSell, signal.TierHigh, base.Add(time.Hour)),
		confluence("ETHUSDT", signal.SideBuy, signal.TierMedium, base.Add(2*time.Hour)),
		patternRecord("BTCUSDT", base.Add(3*time.Hour)),
	}
	for _, r := range recs {
		if err := s.RecordSignal(r); err != nil {
			t.Fatalf("RecordSignal: %v", err)
		}
	}
}

func checkQueries(t *testing.T, s SignalStore) {
	t.Helper()
	tests := []struct {
		name  string
		q     SignalQuery
		want  int
		first Kind
	}{
		{"all newest first", SignalQuery{}, 4, KindPattern},
		{"by symbol", SignalQuery{Symbol: "btcusdt"}, 3, KindPattern},
		{"confluence only", SignalQuery{Kind: KindConfluence}, 3, KindConfluence},
		{"sell side", SignalQuery{Side: signal.SideSell}, 1, KindConfluence},
		{"min tier keeps patterns", SignalQuery{MinTier: signal.TierMedium}, 3, KindPattern},
		{"since", SignalQuery{Since: base.Add(90 * time.Minute)}, 2, KindPattern},
		{"limit", SignalQuery{Limit: 2}, 2, KindPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QuerySignals(tt.q)
			if err != nil {
				t.Fatalf("QuerySignals: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d: %+v", len(got), tt.want, got)
			}
			if got[0].Kind != tt.first {
				t.Errorf("first kind = %s, want %s", got[0].Kind, tt.first)
			}
			for i := 1; i < len(got); i++ {
				if got[i].CreatedAt.After(got[i-1].CreatedAt) {
					t.Errorf("not newest first at %d", i)
				}
			}
		})
	}
}

func TestJSONLHistory_Query(t *testing.T) {
	h, err := NewJSONLHistory("", 100)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, h)
	checkQueries(t, h)
}

func TestJSONLHistory_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals", "history.jsonl")
	h, err := NewJSONLHistory(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, h)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	again, err := NewJSONLHistory(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	if again.Count() != 4 {
		t.Fatalf("reloaded %d records, want 4", again.Count())
	}
	checkQueries(t, again)
}

func TestJSONLHistory_Compacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	h, err := NewJSONLHistory(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	for i := 0; i < 100; i++ {
		if err := h.RecordSignal(confluence("BTCUSDT", signal.SideBuy, signal.TierLow, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	if h.Count() != 10 {
		t.Errorf("in-memory = %d, want 10", h.Count())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	if lines != 10 {
		t.Errorf("file lines after compaction = %d, want 10", lines)
	}
}

func TestJSONLHistory_InvalidMax(t *testing.T) {
	h, err := NewJSONLHistory("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.maxSize != DefaultHistoryMax {
		t.Errorf("maxSize = %d, want %d", h.maxSize, DefaultHistoryMax)
	}
}

func openSQLite(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "confluence.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_Signals(t *testing.T) {
	r := openSQLite(t)
	seed(t, r)
	checkQueries(t, r)

	got, err := r.QuerySignals(SignalQuery{Kind: KindPattern})
	if err != nil || len(got) != 1 {
		t.Fatalf("pattern query = %v, %v", got, err)
	}
	p := got[0]
	if p.Pattern != "hammer" || p.Confidence != 70 || p.Price != 99 || !p.KlineTime.Equal(base.Add(3*time.Hour)) {
		t.Errorf("round trip = %+v", p)
	}
}

func TestSQLiteRecorder_Backtest(t *testing.T) {
	r := openSQLite(t)
	res := &backtest.Result{
		ID:        "run-1",
		Bot:       backtest.BotRSI,
		Symbol:    "BTCUSDT",
		Interval:  "1h",
		StartedAt: base,
		Config:    backtest.DefaultRSIConfig(),
		Trades: []backtest.Trade{
			{Index: 3, Time: base, Side: backtest.SideBuy, Price: 100, Amount: 10, AmountUSD: 1000, Signal: backtest.ReasonRSIThreshold},
			{Index: 5, Time: base.Add(2 * time.Hour), Side: backtest.SideSell, Price: 101.25, Amount: 10, Exit: backtest.ReasonTakeProfit, PnL: 12.5},
		},
	}
	m := backtest.Metrics{
		InitialCapital: 10000,
		FinalEquity:    10012.5,
		NumTrades:      2,
		ProfitFactor:   math.Inf(1),
		TPHits:         1,
		TPSLRatio:      math.Inf(1),
		Sharpe:         math.NaN(),
	}
	if err := r.RecordBacktest(res, m); err != nil {
		t.Fatalf("RecordBacktest: %v", err)
	}
	if err := r.RecordBacktest(nil, m); err == nil {
		t.Error("nil result accepted")
	}

	runs, err := r.Runs(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].Trades != 2 || runs[0].FinalEquity != 10012.5 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordSignal(SignalRecord{}); err != nil {
		t.Error(err)
	}
	if got, err := r.QuerySignals(SignalQuery{}); err != nil || got != nil {
		t.Errorf("QuerySignals = %v, %v", got, err)
	}
}
