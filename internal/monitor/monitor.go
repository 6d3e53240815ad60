// Package monitor follows the live kline stream and publishes the patterns,
// confluence signals and level breaks completed by each closed candle.
package monitor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"example.com/candle-confluence/internal/analysis"
	"example.com/candle-confluence/internal/binance"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/recorder"
	signalpkg "example.com/candle-confluence/internal/signal"
	"example.com/candle-confluence/internal/sse"
)

// DialFunc opens the kline stream.
type DialFunc func(ctx context.Context) (*websocket.Conn, *http.Response, error)

type Monitor struct {
	Symbols  []string
	Interval string
	Config   analysis.Config

	KlineStore *kline.Store
	Source     analysis.KlineSource
	SeedLimit  int

	Detector *pattern.Detector
	Broker   *sse.Broker[recorder.SignalRecord]
	History  recorder.SignalStore
	Combiner *signalpkg.Combiner
	Analyses *analysis.Store

	HeartbeatEvery time.Duration
	StaleAfter     time.Duration
	Dial           DialFunc

	msgs        int64
	closes      int64
	published   int64
	decodeFails int64

	mu      sync.Mutex
	lastBar map[string]time.Time
}

// Config wires a Monitor. Optional fields may be nil.
type Config struct {
	Symbols    []string
	Interval   string
	Analysis   analysis.Config
	KlineStore *kline.Store
	Source     analysis.KlineSource
	SeedLimit  int
	Detector   *pattern.Detector
	Broker     *sse.Broker[recorder.SignalRecord]
	History    recorder.SignalStore
	Combiner   *signalpkg.Combiner
	Analyses   *analysis.Store
}

// New creates a monitor and registers it for candle closes on the store.
func New(cfg Config) *Monitor {
	m := &Monitor{
		Symbols:    cfg.Symbols,
		Interval:   cfg.Interval,
		Config:     cfg.Analysis,
		KlineStore: cfg.KlineStore,
		Source:     cfg.Source,
		SeedLimit:  cfg.SeedLimit,
		Detector:   cfg.Detector,
		Broker:     cfg.Broker,
		History:    cfg.History,
		Combiner:   cfg.Combiner,
		Analyses:   cfg.Analyses,
		lastBar:    make(map[string]time.Time),
	}
	if m.SeedLimit <= 0 {
		m.SeedLimit = kline.DefaultKlineCount
	}
	m.Dial = func(ctx context.Context) (*websocket.Conn, *http.Response, error) {
		return binance.DialKlineStream(ctx, m.Symbols, m.Interval)
	}
	if m.KlineStore != nil {
		m.KlineStore.SetOnClose(m.onKlineClose)
	}
	return m
}

// Seed fills the candle buffer of every symbol over REST. The forming candle
// is dropped; it arrives later from the stream.
func (m *Monitor) Seed(ctx context.Context) int {
	if m.Source == nil || m.KlineStore == nil {
		return 0
	}
	seeded := 0
	for _, sym := range m.Symbols {
		if ctx.Err() != nil {
			break
		}
		ks, err := m.Source.Klines(ctx, sym, m.Interval, m.SeedLimit, time.Time{}, time.Time{})
		if err != nil {
			log.Printf("WARN: monitor seed %s: %v", sym, err)
			continue
		}
		closed := ks[:0]
		for _, k := range ks {
			if k.IsClosed {
				closed = append(closed, k)
			}
		}
		m.KlineStore.Seed(sym, closed)
		seeded++
	}
	log.Printf("monitor seeded symbols=%d/%d interval=%s", seeded, len(m.Symbols), m.Interval)
	return seeded
}

// Run reads the stream until ctx is done, reconnecting with backoff.
func (m *Monitor) Run(ctx context.Context) {
	if m.StaleAfter > 0 && m.KlineStore != nil {
		go m.cleanupLoop(ctx)
	}

	backoff := 1 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := m.Dial(ctx)
		if err != nil {
			log.Printf("monitor ws dial failed: %v", err)
			if !sleepContext(ctx, backoff) {
				return
			}
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		log.Printf("monitor ws connected symbols=%d interval=%s", len(m.Symbols), m.Interval)
		backoff = 1 * time.Second

		err = m.readLoop(ctx, conn)
		_ = conn.Close()
		if err != nil && ctx.Err() == nil {
			log.Printf("monitor ws read loop exit: %v", err)
		}

		if !sleepContext(ctx, backoff) {
			return
		}
		backoff = minDuration(backoff*2, 30*time.Second)
	}
}

func (m *Monitor) cleanupLoop(ctx context.Context) {
	t := time.NewTicker(m.StaleAfter / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.KlineStore.CleanupStale(m.StaleAfter); n > 0 {
				log.Printf("monitor dropped stale symbols=%d", n)
			}
		}
	}
}

func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	if every := m.HeartbeatEvery; every > 0 {
		go func() {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					st := m.Stats()
					log.Printf("monitor ws heartbeat msgs=%d closes=%d published=%d decode_err=%d symbols=%d",
						st.Messages, st.Closes, st.Published, st.DecodeErrors, st.Symbols)
				}
			}
		}()
	}

	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
			}
		}
	}()

	sampled := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mt, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		atomic.AddInt64(&m.msgs, 1)

		ev, ok := decodeKlineEvent(b)
		if !ok {
			atomic.AddInt64(&m.decodeFails, 1)
			if sampled < 3 {
				sampled++
				head := cleanJSONBytes(b)
				if len(head) > 160 {
					head = head[:160]
				}
				log.Printf("monitor ws undecodable message mt=%d len=%d prefix=%q", mt, len(b), head)
			}
			continue
		}
		if m.KlineStore != nil && m.KlineStore.Upsert(ev.Kline) {
			atomic.AddInt64(&m.closes, 1)
		}
	}
}

// decodeKlineEvent decodes a text frame, falling back to compressed payloads.
func decodeKlineEvent(b []byte) (binance.KlineEvent, bool) {
	if ev, err := binance.DecodeKlineMessage(cleanJSONBytes(b)); err == nil {
		return ev, true
	}
	if dec, ok := maybeDecompress(b); ok {
		if ev, err := binance.DecodeKlineMessage(cleanJSONBytes(dec)); err == nil {
			return ev, true
		}
	}
	return binance.KlineEvent{}, false
}

func cleanJSONBytes(b []byte) []byte {
	bb := bytes.TrimSpace(b)
	for len(bb) > 0 && bb[len(bb)-1] < 0x20 {
		bb = bb[:len(bb)-1]
	}
	return bb
}

func maybeDecompress(b []byte) ([]byte, bool) {
	bb := bytes.TrimSpace(b)
	if len(bb) == 0 || bb[0] == '{' || bb[0] == '[' {
		return nil, false
	}

	if len(bb) >= 2 && bb[0] == 0x1f && bb[1] == 0x8b {
		if out, ok := decompressWith(func() (io.ReadCloser, error) {
			return gzip.NewReader(bytes.NewReader(bb))
		}); ok {
			return out, true
		}
	}
	if len(bb) >= 2 && bb[0] == 0x78 {
		if out, ok := decompressWith(func() (io.ReadCloser, error) {
			return zlib.NewReader(bytes.NewReader(bb))
		}); ok {
			return out, true
		}
	}
	return decompressWith(func() (io.ReadCloser, error) {
		return io.NopCloser(flate.NewReader(bytes.NewReader(bb))), nil
	})
}

func decompressWith(newReader func() (io.ReadCloser, error)) ([]byte, bool) {
	r, err := newReader()
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, 10<<20))
	if err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// onKlineClose runs on its own goroutine with a private copy of the buffer.
func (m *Monitor) onKlineClose(symbol string, klines []kline.Kline) {
	m.Process(symbol, klines)
}

// Process analyses the closed-candle buffer of symbol and publishes what the
// newest bar completed. A bar is processed once; repeats return 0. It returns
// the number of records published.
func (m *Monitor) Process(symbol string, klines []kline.Kline) int {
	if len(klines) < 2 {
		return 0
	}
	last := len(klines) - 1
	barTime := klines[last].OpenTime

	m.mu.Lock()
	if prev, ok := m.lastBar[symbol]; ok && !barTime.After(prev) {
		m.mu.Unlock()
		return 0
	}
	m.lastBar[symbol] = barTime
	m.mu.Unlock()

	start := time.Now()
	rep, err := analysis.Analyze(kline.ColumnsOf(klines), m.Config)
	if err != nil {
		log.Printf("monitor analyze %s: %v", symbol, err)
		return 0
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		log.Printf("monitor analyze slow: symbol=%s bars=%d elapsed=%v", symbol, len(klines), elapsed)
	}
	if m.Analyses != nil {
		m.Analyses.Put(rep.Summarize(symbol, m.Interval))
	}

	published := 0
	price := klines[last].Close

	for _, p := range m.detect(rep, klines) {
		sig := pattern.NewSignal(symbol, m.Interval, p, price, barTime)
		log.Printf("pattern %s %s %s confidence=%d", symbol, p.Type, p.Direction, p.Confidence)
		if m.Combiner != nil {
			m.Combiner.AddPatternSignal(sig)
		}
		m.publish(recorder.NewPatternRecord(sig))
		published++
	}

	if rep.Pivot != nil && rep.Pivot.Breaks != nil && m.Combiner != nil {
		for _, b := range rep.Pivot.Breaks.Events {
			if b.Index != last {
				continue
			}
			log.Printf("break %s %s level=%g close=%g", symbol, b.Kind, b.Level, b.Close)
			m.Combiner.AddBreakSignal(signalpkg.NewBreakSignal(symbol, m.Interval, b, barTime))
		}
	}

	for _, s := range rep.Signals.Signals {
		if s.Index != last {
			continue
		}
		log.Printf("confluence %s %s tier=%s count=%d price=%g", symbol, s.Side, s.Tier, s.Count, s.Price)
		m.publish(recorder.NewConfluenceRecord(symbol, m.Interval, s))
		published++
	}

	atomic.AddInt64(&m.published, int64(published))
	return published
}

// detect lists the patterns completed at the newest bar. The detector adds
// the talib-cdl strength; without one the report's own events are used.
func (m *Monitor) detect(rep *analysis.Report, klines []kline.Kline) []pattern.DetectedPattern {
	if m.Detector != nil {
		ps, err := m.Detector.Detect(klines)
		if err != nil {
			log.Printf("monitor pattern detect: %v", err)
			return nil
		}
		return ps
	}
	last := len(klines) - 1
	var out []pattern.DetectedPattern
	for _, ev := range rep.Patterns.EventsAt(last) {
		out = append(out, pattern.DetectedPattern{Type: ev.Pattern, Direction: ev.Direction, Confidence: 100})
	}
	return out
}

func (m *Monitor) publish(r recorder.SignalRecord) {
	if m.History != nil {
		if err := m.History.RecordSignal(r); err != nil {
			log.Printf("monitor history record error: %v", err)
		}
	}
	if m.Broker != nil {
		m.Broker.Publish(r)
	}
}

// Stats is a snapshot of the monitor counters.
type Stats struct {
	Messages     int64 `json:"messages"`
	Closes       int64 `json:"closes"`
	Published    int64 `json:"published"`
	DecodeErrors int64 `json:"decode_errors"`
	Symbols      int   `json:"symbols"`
}

func (m *Monitor) Stats() Stats {
	st := Stats{
		Messages:     atomic.LoadInt64(&m.msgs),
		Closes:       atomic.LoadInt64(&m.closes),
		Published:    atomic.LoadInt64(&m.published),
		DecodeErrors: atomic.LoadInt64(&m.decodeFails),
	}
	if m.KlineStore != nil {
		st.Symbols = m.KlineStore.SymbolCount()
	}
	return st
}
