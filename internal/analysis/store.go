package analysis

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Snapshot is the latest Summary of every analysed symbol.
type Snapshot struct {
	Interval  string             `json:"interval"`
	UpdatedAt time.Time          `json:"updated_at"`
	Symbols   map[string]Summary `json:"symbols"`
}

// Store holds the current snapshot. Readers never see a partially built one.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewStore() *Store {
	return &Store{}
}

// Swap replaces the whole snapshot.
func (s *Store) Swap(snap *Snapshot) error {
	if snap == nil || snap.Symbols == nil {
		return errors.New("nil snapshot")
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current snapshot, or nil before the first refresh.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Get returns the summary of one symbol.
func (s *Store) Get(symbol string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Summary{}, false
	}
	sum, ok := s.snap.Symbols[symbol]
	return sum, ok
}

// Put replaces one symbol's summary, copying the snapshot so earlier
// readers keep a consistent view.
func (s *Store) Put(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := &Snapshot{UpdatedAt: sum.UpdatedAt, Interval: sum.Interval, Symbols: map[string]Summary{}}
	if s.snap != nil {
		next.Interval = s.snap.Interval
		for k, v := range s.snap.Symbols {
			next.Symbols[k] = v
		}
	}
	next.Symbols[sum.Symbol] = sum
	s.snap = next
}

// Symbols lists the symbols in the current snapshot, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil
	}
	out := make([]string, 0, len(s.snap.Symbols))
	for sym := range s.snap.Symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
