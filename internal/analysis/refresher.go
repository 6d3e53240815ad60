package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"example.com/candle-confluence/internal/kline"
)

// KlineSource fetches closed candles, oldest first. start and end may be zero.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]kline.Kline, error)
}

// Refresher fetches and analyses a symbol list with a worker pool, then
// publishes the summaries to Store and to an on-disk JSON snapshot.
type Refresher struct {
	Path     string
	Store    *Store
	Source   KlineSource
	Config   Config
	Symbols  []string
	Interval string
	Limit    int
	Workers  int

	// OnReport is called from the collecting goroutine for every symbol that analysed cleanly.
	OnReport func(symbol string, klines []kline.Kline, r *Report)

	mu sync.Mutex
}

func NewRefresher(path string, store *Store, source KlineSource, cfg Config) *Refresher {
	return &Refresher{
		Path:     path,
		Store:    store,
		Source:   source,
		Config:   cfg,
		Interval: "1d",
		Limit:    1500,
		Workers:  4,
	}
}

// LoadFromDisk restores the last written snapshot, if any.
func (r *Refresher) LoadFromDisk() {
	if r.Path == "" {
		return
	}
	b, err := os.ReadFile(r.Path)
	if err != nil {
		return
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		log.Printf("analysis load %s failed: %v", r.Path, err)
		return
	}
	if snap.Symbols == nil {
		return
	}
	if err := r.Store.Swap(&snap); err != nil {
		log.Printf("analysis swap failed: %v", err)
		return
	}
	log.Printf("analysis loaded symbols=%d updated_at=%s", len(snap.Symbols), snap.UpdatedAt.Format(time.RFC3339))
}

type refreshResult struct {
	symbol string
	klines []kline.Kline
	report *Report
	err    error
}

// Refresh analyses every symbol once. It fails without touching the store
// when fewer than half the symbols, or fewer than 80% of the previous
// snapshot, come back.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := r.Symbols
	if len(symbols) == 0 {
		return errors.New("no symbols configured")
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	jobs := make(chan string)
	results := make(chan refreshResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- r.analyse(ctx, sym)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(jobs)
		for _, sym := range symbols {
			select {
			case <-ctx.Done():
				return
			case jobs <- sym:
			}
		}
	}()

	summaries := make(map[string]Summary, len(symbols))
	fail := 0
	for res := range results {
		if res.err != nil {
			fail++
			log.Printf("analysis %s failed: %v", res.symbol, res.err)
			continue
		}
		summaries[res.symbol] = res.report.Summarize(res.symbol, r.Interval)
		if r.OnReport != nil {
			r.OnReport(res.symbol, res.klines, res.report)
		}
	}

	expected := len(symbols)
	minCount := expected / 2
	if minCount < 1 {
		minCount = 1
	}
	if old := r.Store.Snapshot(); old != nil {
		oldMin := len(old.Symbols) * 8 / 10
		if oldMin > minCount {
			minCount = oldMin
		}
	}
	if len(summaries) < minCount {
		return fmt.Errorf("analysis computed too few symbols: got=%d expected=%d min=%d", len(summaries), expected, minCount)
	}

	snap := &Snapshot{
		Interval:  r.Interval,
		UpdatedAt: time.Now().UTC(),
		Symbols:   summaries,
	}
	if err := r.write(snap); err != nil {
		return err
	}
	if err := r.Store.Swap(snap); err != nil {
		return err
	}

	log.Printf("analysis refreshed %s symbols=%d fail=%d", r.Interval, len(summaries), fail)
	return nil
}

func (r *Refresher) analyse(ctx context.Context, symbol string) refreshResult {
	ctxKline, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	klines, err := r.Source.Klines(ctxKline, symbol, r.Interval, r.Limit, time.Time{}, time.Time{})
	if err != nil {
		return refreshResult{symbol: symbol, err: err}
	}
	klines = kline.Normalize(klines)
	rep, err := Analyze(kline.ColumnsOf(klines), r.Config)
	return refreshResult{symbol: symbol, klines: klines, report: rep, err: err}
}

// write stores snap atomically through a temporary file.
func (r *Refresher) write(snap *Snapshot) error {
	if r.Path == "" {
		return nil
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return err
	}
	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path)
}
