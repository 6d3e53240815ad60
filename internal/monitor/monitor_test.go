package monitor

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"example.com/candle-confluence/internal/analysis"
	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/recorder"
	signalpkg "example.com/candle-confluence/internal/signal"
	"example.com/candle-confluence/internal/sse"
)

func testAnalysisConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	p := indicator.DefaultParams()
	p.RSIPeriod = 5
	p.MACDFast, p.MACDSlow, p.MACDSignal = 3, 6, 3
	p.ADXPeriod = 5
	p.BBPeriod = 5
	p.ATRPeriod = 5
	p.EnvelopeLookback = 5
	p.VolumeFast, p.VolumeSlow = 3, 5
	p.VolOscFast, p.VolOscSlow = 2, 4
	cfg.Indicators = p
	cfg.Patterns.ATRPeriod = 5
	cfg.Divergence.Lookback = 4
	cfg.Pivot.Left, cfg.Pivot.Right = 3, 3
	cfg.CDL = false
	return cfg
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// series alternates small green and red candles with three growing red
// candles at 30..32 that complete a bullish Euphoria.
func series() []kline.Kline {
	type bar struct{ open, close float64 }
	var bars []bar
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			bars = append(bars, bar{100, 100.5})
		} else {
			bars = append(bars, bar{100.5, 100})
		}
	}
	bars = append(bars, bar{100, 99.5}, bar{99.5, 98.5}, bar{98.5, 97})
	for i := 0; i < 27; i++ {
		if i%2 == 0 {
			bars = append(bars, bar{97, 97.5})
		} else {
			bars = append(bars, bar{97.5, 97})
		}
	}
	out := make([]kline.Kline, len(bars))
	for i, b := range bars {
		out[i] = kline.Kline{
			Symbol:   "BTCUSDT",
			Open:     b.open,
			Close:    b.close,
			High:     math.Max(b.open, b.close) + 5,
			Low:      math.Min(b.open, b.close) - 5,
			Volume:   float64(1000 + (i%5)*50),
			OpenTime: base.Add(time.Duration(i) * 24 * time.Hour),
			IsClosed: true,
		}
	}
	return out
}

type harness struct {
	m       *Monitor
	history *recorder.JSONLHistory
	broker  *sse.Broker[recorder.SignalRecord]
	sub     chan recorder.SignalRecord
	store   *analysis.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hist, err := recorder.NewJSONLHistory("", 100)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{history: hist, broker: sse.NewBroker[recorder.SignalRecord](), store: analysis.NewStore()}
	h.sub = h.broker.Subscribe(64)
	h.m = New(Config{
		Symbols:    []string{"BTCUSDT"},
		Interval:   "1d",
		Analysis:   testAnalysisConfig(),
		KlineStore: kline.NewStore(24*time.Hour, 200),
		Broker:     h.broker,
		History:    hist,
		Combiner:   signalpkg.NewCombiner(48 * time.Hour),
		Analyses:   h.store,
	})
	return h
}

func TestProcess_ConfluenceAtNewestBar(t *testing.T) {
	h := newHarness(t)
	ks := series()[:34]

	if n := h.m.Process("BTCUSDT", ks); n == 0 {
		t.Fatal("nothing published")
	}
	recs, _ := h.history.QuerySignals(recorder.SignalQuery{Kind: recorder.KindConfluence})
	if len(recs) != 1 {
		t.Fatalf("confluence records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Side != signalpkg.SideBuy || r.Price != 97.5 || !r.KlineTime.Equal(ks[33].OpenTime) {
		t.Errorf("record = %+v", r)
	}
	if !strings.HasPrefix(r.Rationale, r.Tier.Label()+": ") {
		t.Errorf("rationale = %q", r.Rationale)
	}

	got := 0
	for len(h.sub) > 0 {
		<-h.sub
		got++
	}
	if got != h.history.Count() {
		t.Errorf("broker delivered %d, history has %d", got, h.history.Count())
	}

	sum, ok := h.store.Get("BTCUSDT")
	if !ok || sum.Bars != 34 || len(sum.Signals) != 1 {
		t.Errorf("summary = %+v ok=%v", sum, ok)
	}

	if n := h.m.Process("BTCUSDT", ks); n != 0 {
		t.Errorf("reprocessing the same bar published %d", n)
	}
}

func TestProcess_PatternAtNewestBar(t *testing.T) {
	h := newHarness(t)
	ks := series()[:33]

	h.m.Process("BTCUSDT", ks)
	recs, _ := h.history.QuerySignals(recorder.SignalQuery{Kind: recorder.KindPattern})
	found := false
	for _, r := range recs {
		if r.Pattern == string(pattern.PatternEuphoria) && r.Direction == pattern.DirectionBullish {
			found = true
		}
	}
	if !found {
		t.Errorf("euphoria not published: %+v", recs)
	}
	if pats := h.m.Combiner.RecentPatterns("BTCUSDT"); len(pats) != len(recs) {
		t.Errorf("combiner patterns = %d, want %d", len(pats), len(recs))
	}
	if conf, _ := h.history.QuerySignals(recorder.SignalQuery{Kind: recorder.KindConfluence}); len(conf) != 0 {
		t.Errorf("confluence published before its signal bar: %+v", conf)
	}
}

func TestProcess_ShortBuffer(t *testing.T) {
	h := newHarness(t)
	if n := h.m.Process("BTCUSDT", series()[:1]); n != 0 {
		t.Errorf("published %d from one bar", n)
	}
}

func TestProperty_PublishesOnlyNewestBar(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	all := series()
	properties.Property("records carry the newest bar time", prop.ForAll(
		func(n int) bool {
			hist, _ := recorder.NewJSONLHistory("", 100)
			m := New(Config{Interval: "1d", Analysis: testAnalysisConfig(), History: hist})
			m.Process("BTCUSDT", all[:n])
			recs, _ := hist.QuerySignals(recorder.SignalQuery{})
			for _, r := range recs {
				if !r.KlineTime.Equal(all[n-1].OpenTime) {
					return false
				}
			}
			return true
		},
		gen.IntRange(2, len(all)),
	))

	properties.TestingRun(t)
}

type fakeSource struct {
	klines []kline.Kline
	err    error
}

func (f *fakeSource) Klines(_ context.Context, symbol, _ string, _ int, _, _ time.Time) ([]kline.Kline, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]kline.Kline, len(f.klines))
	copy(out, f.klines)
	return out, nil
}

func TestSeed(t *testing.T) {
	ks := series()[:20]
	ks[19].IsClosed = false
	store := kline.NewStore(24*time.Hour, 100)
	m := New(Config{
		Symbols:    []string{"BTCUSDT", "ETHUSDT"},
		Interval:   "1d",
		KlineStore: store,
		Source:     &fakeSource{klines: ks},
	})
	if n := m.Seed(context.Background()); n != 2 {
		t.Errorf("seeded %d, want 2", n)
	}
	if c := store.KlineCount("ETHUSDT"); c != 19 {
		t.Errorf("ETHUSDT candles = %d, want 19 closed", c)
	}

	m.Source = &fakeSource{err: errors.New("down")}
	if n := m.Seed(context.Background()); n != 0 {
		t.Errorf("seeded %d with a failing source", n)
	}
}

const closedKline = `{"stream":"btcusdt@kline_1d","data":{"e":"kline","E":1704153600100,"s":"BTCUSDT","k":{"t":1704067200000,"T":1704153599999,"s":"BTCUSDT","i":"1d","o":"100","h":"105","l":"95","c":"101","v":"10","x":true}}}`

func TestRun_StreamUpserts(t *testing.T) {
	var conns int64
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		atomic.AddInt64(&conns, 1)
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(closedKline))
		<-release
	}))
	defer srv.Close()

	store := kline.NewStore(24*time.Hour, 100)
	m := New(Config{Symbols: []string{"BTCUSDT"}, Interval: "1d", Analysis: testAnalysisConfig(), KlineStore: store})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	m.Dial = func(ctx context.Context) (*websocket.Conn, *http.Response, error) {
		return websocket.DefaultDialer.DialContext(ctx, url, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for store.KlineCount("BTCUSDT") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	close(release)
	<-done

	if store.KlineCount("BTCUSDT") != 1 {
		t.Fatalf("candles = %d, want 1", store.KlineCount("BTCUSDT"))
	}
	st := m.Stats()
	if st.Messages < 2 || st.Closes != 1 || st.DecodeErrors < 1 || st.Symbols != 1 {
		t.Errorf("stats = %+v", st)
	}
	if atomic.LoadInt64(&conns) != 1 {
		t.Errorf("connections = %d, want 1", conns)
	}
}

func TestDecodeKlineEvent(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(closedKline))
	_ = zw.Close()

	tests := []struct {
		name string
		msg  []byte
		ok   bool
	}{
		{"plain", []byte(closedKline), true},
		{"trailing control bytes", []byte(closedKline + "\n\x00"), true},
		{"gzip", buf.Bytes(), true},
		{"subscription ack", []byte(`{"result":null,"id":1}`), false},
		{"binary noise", []byte{0x01, 0x02, 0x03}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := decodeKlineEvent(tt.msg)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (ev.Kline.Close != 101 || !ev.Kline.IsClosed) {
				t.Errorf("event = %+v", ev)
			}
		})
	}
}
