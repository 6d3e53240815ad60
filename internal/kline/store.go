package kline

import (
	"log"
	"sort"
	"sync"
	"time"
)

// SymbolKlines holds candle data for a single trading pair.
type SymbolKlines struct {
	Symbol   string
	Current  *Kline  // Current forming candle from the stream
	History  []Kline // Closed candles (oldest first, newest last)
	LastSeen time.Time
}

// Store buffers closed candles per symbol for live analysis.
type Store struct {
	mu       sync.RWMutex
	klines   map[string]*SymbolKlines
	interval time.Duration
	maxCount int
	onClose  func(symbol string, klines []Kline)
}

// DefaultKlineCount is the default number of candles to keep per symbol.
// It covers the 800-bar envelope lookback with room for warm-up.
const DefaultKlineCount = 1000

// NewStore creates a new candle store.
// interval: candle interval (e.g., 15 * time.Minute)
// maxCount: maximum number of closed candles to keep per symbol
func NewStore(interval time.Duration, maxCount int) *Store {
	if maxCount <= 0 {
		log.Printf("WARN: invalid KLINE_COUNT=%d, using default %d", maxCount, DefaultKlineCount)
		maxCount = DefaultKlineCount
	}
	return &Store{
		klines:   make(map[string]*SymbolKlines),
		interval: interval,
		maxCount: maxCount,
	}
}

// Interval returns the candle interval of the store.
func (s *Store) Interval() time.Duration {
	return s.interval
}

// SetOnClose sets the callback called when a candle closes.
// The callback receives a deep copy snapshot of the history, safe for async use.
func (s *Store) SetOnClose(fn func(symbol string, klines []Kline)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

func (s *Store) getOrCreate(symbol string) *SymbolKlines {
	sk, ok := s.klines[symbol]
	if !ok {
		sk = &SymbolKlines{
			Symbol:  symbol,
			History: make([]Kline, 0, 64),
		}
		s.klines[symbol] = sk
	}
	return sk
}

// Seed replaces the history of a symbol with the given closed candles,
// typically fetched over REST before the stream starts.
func (s *Store) Seed(symbol string, klines []Kline) {
	norm := Normalize(klines)
	if len(norm) > s.maxCount {
		norm = norm[len(norm)-s.maxCount:]
	}
	for i := range norm {
		norm[i].Symbol = symbol
		norm[i].IsClosed = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sk := s.getOrCreate(symbol)
	sk.History = norm
	sk.LastSeen = time.Now()
}

// Upsert applies a streamed candle. A forming candle replaces Current; a closed
// candle is appended (or replaces the last row with the same open time).
// Returns true if a new candle closed.
func (s *Store) Upsert(k Kline) bool {
	if k.Symbol == "" || k.Validate() != nil {
		return false
	}

	s.mu.Lock()

	sk := s.getOrCreate(k.Symbol)
	sk.LastSeen = time.Now()

	if !k.IsClosed {
		clone := k.Clone()
		sk.Current = &clone
		s.mu.Unlock()
		return false
	}

	n := len(sk.History)
	switch {
	case n > 0 && sk.History[n-1].OpenTime.Equal(k.OpenTime):
		// Repeated close event for the same candle.
		sk.History[n-1] = k.Clone()
		s.mu.Unlock()
		return false
	case n > 0 && k.OpenTime.Before(sk.History[n-1].OpenTime):
		s.mu.Unlock()
		return false
	}

	sk.History = append(sk.History, k.Clone())
	if len(sk.History) > s.maxCount {
		sk.History = sk.History[len(sk.History)-s.maxCount:]
	}
	if sk.Current != nil && !sk.Current.OpenTime.After(k.OpenTime) {
		sk.Current = nil
	}

	snapshot := make([]Kline, len(sk.History))
	copy(snapshot, sk.History)
	onClose := s.onClose

	s.mu.Unlock()

	// Call callback outside lock to avoid deadlock
	if onClose != nil {
		go onClose(k.Symbol, snapshot)
	}
	return true
}

// GetKlines returns a deep copy of the closed candles for a symbol, oldest first.
func (s *Store) GetKlines(symbol string) ([]Kline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.klines[symbol]
	if !ok || len(sk.History) == 0 {
		return nil, false
	}

	result := make([]Kline, len(sk.History))
	copy(result, sk.History)
	return result, true
}

// GetCurrentKline returns a deep copy of the current forming candle.
func (s *Store) GetCurrentKline(symbol string) (*Kline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.klines[symbol]
	if !ok || sk.Current == nil {
		return nil, false
	}

	clone := sk.Current.Clone()
	return &clone, true
}

// CleanupStale removes symbols that haven't been updated for staleThreshold.
// Returns the number of symbols removed.
func (s *Store) CleanupStale(staleThreshold time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0

	for symbol, sk := range s.klines {
		if now.Sub(sk.LastSeen) > staleThreshold {
			delete(s.klines, symbol)
			removed++
		}
	}

	return removed
}

// Symbols returns the tracked symbols in sorted order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.klines))
	for symbol := range s.klines {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// SymbolCount returns the number of symbols being tracked.
func (s *Store) SymbolCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.klines)
}

// KlineCount returns the number of closed candles for a symbol.
func (s *Store) KlineCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.klines[symbol]
	if !ok {
		return 0
	}
	return len(sk.History)
}

// StoreStats contains statistics about the candle store.
type StoreStats struct {
	Enabled     bool          `json:"enabled"`
	SymbolCount int           `json:"symbol_count"`
	Interval    string        `json:"interval"`
	MaxCount    int           `json:"max_count"`
	Symbols     []SymbolStats `json:"symbols,omitempty"`
}

// SymbolStats contains statistics for a single symbol.
type SymbolStats struct {
	Symbol       string    `json:"symbol"`
	KlineCount   int       `json:"kline_count"`
	HasCurrent   bool      `json:"has_current"`
	LastSeen     time.Time `json:"last_seen"`
	LastClosed   time.Time `json:"last_closed,omitempty"`
	CurrentOpen  float64   `json:"current_open,omitempty"`
	CurrentClose float64   `json:"current_close,omitempty"`
}

// Stats returns statistics about the candle store.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		Enabled:     true,
		SymbolCount: len(s.klines),
		Interval:    s.interval.String(),
		MaxCount:    s.maxCount,
		Symbols:     make([]SymbolStats, 0, len(s.klines)),
	}

	for symbol, sk := range s.klines {
		ss := SymbolStats{
			Symbol:     symbol,
			KlineCount: len(sk.History),
			HasCurrent: sk.Current != nil,
			LastSeen:   sk.LastSeen,
		}
		if n := len(sk.History); n > 0 {
			ss.LastClosed = sk.History[n-1].OpenTime
		}
		if sk.Current != nil {
			ss.CurrentOpen = sk.Current.Open
			ss.CurrentClose = sk.Current.Close
		}
		stats.Symbols = append(stats.Symbols, ss)
	}
	sort.Slice(stats.Symbols, func(i, j int) bool {
		return stats.Symbols[i].Symbol < stats.Symbols[j].Symbol
	})

	return stats
}
