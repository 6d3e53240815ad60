package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"example.com/candle-confluence/internal/analysis"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/monitor"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/recorder"
	signalpkg "example.com/candle-confluence/internal/signal"
	"example.com/candle-confluence/internal/sse"
)

type Server struct {
	SignalBroker   *sse.Broker[recorder.SignalRecord]
	CombinedBroker *sse.Broker[signalpkg.CombinedSignal]
	History        recorder.SignalStore
	Analyses       *analysis.Store
	KlineStore     *kline.Store
	Monitor        *monitor.Monitor
	AllowedOrigins []string

	// NextRefresh reports when the scheduled analysis refresh runs next.
	NextRefresh func() time.Time
}

func New(signalBroker *sse.Broker[recorder.SignalRecord], history recorder.SignalStore, allowedOrigins []string) *Server {
	return &Server{SignalBroker: signalBroker, History: history, AllowedOrigins: allowedOrigins}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/signals", s.handleSignals)
	mux.HandleFunc("/api/analysis", s.handleAnalysis)
	mux.HandleFunc("/api/patterns", s.handlePatterns)
	mux.HandleFunc("/api/klines", s.handleKlines)
	mux.HandleFunc("/api/klines/stats", s.handleKlineStats)
	mux.HandleFunc("/api/runtime", s.handleRuntime)
	return s.cors(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// allowGet answers preflight and rejects everything but GET.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// handleSignals queries published signals, newest first.
// GET /api/signals?symbol=BTCUSDT&kind=confluence&side=buy&min_tier=medium&since=24h&limit=200
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.History == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	query := recorder.SignalQuery{
		Symbol: strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
		Kind:   recorder.Kind(strings.ToLower(q.Get("kind"))),
		Side:   signalpkg.Side(strings.ToLower(q.Get("side"))),
		Limit:  200,
	}
	if v := q.Get("min_tier"); v != "" {
		tier, err := signalpkg.ParseTier(strings.ToLower(v))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query.MinTier = tier
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			query.Limit = n
		}
	}

	res, err := s.History.QuerySignals(query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		res = []recorder.SignalRecord{}
	}
	writeJSON(w, http.StatusOK, res)
}

// parseSince accepts an RFC 3339 time or a duration back from now.
func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q", v)
}

// AnalysisIndex lists what the analysis snapshot covers.
type AnalysisIndex struct {
	Interval    string    `json:"interval"`
	UpdatedAt   time.Time `json:"updated_at"`
	Symbols     []string  `json:"symbols"`
	NextRefresh time.Time `json:"next_refresh,omitempty"`
}

// handleAnalysis returns the latest summary of one symbol, or the index
// without a symbol.
// GET /api/analysis?symbol=BTCUSDT
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.Analyses == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		idx := AnalysisIndex{Symbols: s.Analyses.Symbols()}
		if snap := s.Analyses.Snapshot(); snap != nil {
			idx.Interval = snap.Interval
			idx.UpdatedAt = snap.UpdatedAt
		}
		if s.NextRefresh != nil {
			idx.NextRefresh = s.NextRefresh()
		}
		writeJSON(w, http.StatusOK, idx)
		return
	}

	sum, ok := s.Analyses.Get(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis for symbol")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handlePatterns returns the pattern catalogue.
// GET /api/patterns?category=Classic%20Contrarian&source=talib
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()
	category := q.Get("category")
	source := q.Get("source")

	out := make([]pattern.CatalogueEntry, 0)
	for _, e := range pattern.Catalogue() {
		if category != "" && !strings.EqualFold(string(e.Category), category) {
			continue
		}
		if source != "" && !strings.EqualFold(e.Source, source) {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleKlines returns the buffered closed candles of a symbol.
// GET /api/klines?symbol=BTCUSDT&limit=100
func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.KlineStore == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
		return
	}

	q := r.URL.Query()
	symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter required")
		return
	}

	klines, ok := s.KlineStore.GetKlines(symbol)
	if !ok {
		writeJSON(w, http.StatusOK, []kline.Kline{})
		return
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(klines) {
			klines = klines[len(klines)-n:]
		}
	}
	writeJSON(w, http.StatusOK, klines)
}

// handleKlineStats returns statistics about the candle buffer.
// GET /api/klines/stats
func (s *Server) handleKlineStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.KlineStore == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"enabled":false}`))
		return
	}
	writeJSON(w, http.StatusOK, s.KlineStore.Stats())
}

// RuntimeStats contains runtime statistics.
type RuntimeStats struct {
	Goroutines      int     `json:"goroutines"`
	HeapMB          float64 `json:"heap_mb"`
	SysMB           float64 `json:"sys_mb"`
	NumGC           uint32  `json:"num_gc"`
	KlineSymbols    int     `json:"kline_symbols"`
	AnalysedSymbols int     `json:"analysed_symbols"`
	Uptime          string  `json:"uptime"`
	SSESubscribers  int     `json:"sse_subscribers"`
	SSEDropped      uint64  `json:"sse_dropped"`
	Version         string  `json:"version"`

	Monitor *monitor.Stats `json:"monitor,omitempty"`
}

// Version can be set at build time via -ldflags
var Version = "dev"

var startTime = time.Now()

// handleRuntime returns runtime statistics.
// GET /api/runtime
func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		SysMB:      float64(m.Sys) / 1024 / 1024,
		NumGC:      m.NumGC,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Version:    Version,
	}
	if s.KlineStore != nil {
		stats.KlineSymbols = s.KlineStore.SymbolCount()
	}
	if s.Analyses != nil {
		stats.AnalysedSymbols = len(s.Analyses.Symbols())
	}
	if s.Monitor != nil {
		ms := s.Monitor.Stats()
		stats.Monitor = &ms
	}
	if s.SignalBroker != nil {
		stats.SSESubscribers = s.SignalBroker.SubscriberCount()
		stats.SSEDropped = s.SignalBroker.Dropped()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.SignalBroker == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	signalCh := s.SignalBroker.Subscribe(256)
	defer s.SignalBroker.Unsubscribe(signalCh)

	var combinedCh chan signalpkg.CombinedSignal
	if s.CombinedBroker != nil {
		combinedCh = s.CombinedBroker.Subscribe(64)
		defer s.CombinedBroker.Unsubscribe(combinedCh)
	}

	_, _ = fmt.Fprintf(w, ": connected %s\n\n", time.Now().UTC().Format(time.RFC3339))
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			writeEvent(w, string(sig.Kind), sig)
			flusher.Flush()

		case cs, ok := <-combinedCh:
			if !ok {
				combinedCh = nil
				continue
			}
			writeEvent(w, "combined", cs)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.ReplaceAll(string(b), "\n", ""))
}

func ParseAllowedOrigins(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{"*"}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowed := s.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowOrigin := ""
		for _, o := range allowed {
			if o == "*" {
				allowOrigin = "*"
				break
			}
			if o == origin {
				allowOrigin = origin
				break
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
