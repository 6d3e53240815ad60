package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// klineServer serves total one-minute candles starting at t0 with the
// exchange's paging rules: with a startTime the oldest limit candles of the
// range come back, without one the newest.
func klineServer(t *testing.T, total int) (*httptest.Server, *int64) {
	t.Helper()
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)

		var rows [][]any
		for k := 0; k < total; k++ {
			ot := t0.Add(time.Duration(k) * time.Minute).UnixMilli()
			if start > 0 && ot < start || end > 0 && ot > end {
				continue
			}
			rows = append(rows, []any{ot, "1.0", "2.0", "0.5", "1.5", "10", ot + 59999, "15", 5, "1", "1", "0"})
		}
		if len(rows) > limit {
			if start > 0 {
				rows = rows[:limit]
			} else {
				rows = rows[len(rows)-limit:]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func testClient(base string, now time.Time) (*RESTClient, *[]time.Duration) {
	var mu sync.Mutex
	slept := &[]time.Duration{}
	c := NewRESTClient()
	c.BaseURL = base
	c.now = func() time.Time { return now }
	c.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

func TestKlines_Parse(t *testing.T) {
	srv, _ := klineServer(t, 10)
	c, _ := testClient(srv.URL, t0.Add(9*time.Minute+30*time.Second))

	got, err := c.Klines(context.Background(), "btcusdt", "1m", 5, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	first := got[0]
	if first.Symbol != "BTCUSDT" || !first.OpenTime.Equal(t0.Add(5*time.Minute)) {
		t.Errorf("first = %+v", first)
	}
	if first.Open != 1 || first.High != 2 || first.Low != 0.5 || first.Close != 1.5 || first.Volume != 10 {
		t.Errorf("OHLCV = %+v", first)
	}
	if !first.IsClosed {
		t.Error("past candle not marked closed")
	}
	if last := got[4]; last.IsClosed {
		t.Error("forming candle marked closed")
	}
}

func TestKlines_Validation(t *testing.T) {
	srv, requests := klineServer(t, 10)
	c, _ := testClient(srv.URL, t0)

	tests := []struct {
		name     string
		symbol   string
		interval string
	}{
		{"empty symbol", "", "1m"},
		{"unknown interval", "BTCUSDT", "7m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Klines(context.Background(), tt.symbol, tt.interval, 10, time.Time{}, time.Time{}); err == nil {
				t.Error("expected error")
			}
		})
	}
	if n := atomic.LoadInt64(requests); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestKlines_Retry(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		header    string
		wantErr   bool
		wantCalls int64
		wantSleep []time.Duration
	}{
		{
			name:      "rate limited then ok",
			responses: []int{429, 429, 200},
			wantCalls: 3,
			wantSleep: []time.Duration{2 * time.Second, 4 * time.Second},
		},
		{
			name:      "retry-after honoured",
			responses: []int{418, 200},
			header:    "3",
			wantCalls: 2,
			wantSleep: []time.Duration{3 * time.Second},
		},
		{
			name:      "server errors exhaust retries",
			responses: []int{500, 502, 503},
			wantErr:   true,
			wantCalls: 3,
			wantSleep: []time.Duration{2 * time.Second, 4 * time.Second},
		},
		{
			name:      "client error is not retried",
			responses: []int{400},
			wantErr:   true,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt64(&calls, 1)
				status := tt.responses[len(tt.responses)-1]
				if int(n) <= len(tt.responses) {
					status = tt.responses[n-1]
				}
				if status != http.StatusOK {
					if tt.header != "" {
						w.Header().Set("Retry-After", tt.header)
					}
					w.WriteHeader(status)
					_, _ = w.Write([]byte(`{"code":-1003,"msg":"slow down"}`))
					return
				}
				_, _ = w.Write([]byte(`[[1704067200000,"1","2","0.5","1.5","10",1704067259999]]`))
			}))
			defer srv.Close()

			c, slept := testClient(srv.URL, t0.Add(time.Hour))
			got, err := c.Klines(context.Background(), "BTCUSDT", "1m", 1, time.Time{}, time.Time{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var se *StatusError
				if !errors.As(err, &se) || se.Symbol != "BTCUSDT" {
					t.Errorf("err = %v, want *StatusError", err)
				}
			} else if len(got) != 1 {
				t.Errorf("klines = %d, want 1", len(got))
			}
			if n := atomic.LoadInt64(&calls); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
			if len(*slept) != len(tt.wantSleep) {
				t.Fatalf("sleeps = %v, want %v", *slept, tt.wantSleep)
			}
			for i := range tt.wantSleep {
				if (*slept)[i] != tt.wantSleep[i] {
					t.Errorf("sleep[%d] = %s, want %s", i, (*slept)[i], tt.wantSleep[i])
				}
			}
		})
	}
}

func TestFetchHistorical_Paginates(t *testing.T) {
	srv, requests := klineServer(t, 2500)
	end := t0.Add(2500 * time.Minute)
	c, slept := testClient(srv.URL, end)

	var progress []int
	got, err := c.FetchHistorical(context.Background(), "BTCUSDT", "1m", t0, end, func(chunk, chunks, candles int) {
		if chunks != 3 {
			t.Errorf("chunks = %d, want 3", chunks)
		}
		progress = append(progress, chunk)
	})
	if err != nil {
		t.Fatalf("FetchHistorical: %v", err)
	}
	if len(got) != 2500 {
		t.Fatalf("len = %d, want 2500", len(got))
	}
	if !got[0].OpenTime.Equal(t0) || !got[2499].OpenTime.Equal(t0.Add(2499*time.Minute)) {
		t.Errorf("range = %s .. %s", got[0].OpenTime, got[2499].OpenTime)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].OpenTime.After(got[i-1].OpenTime) {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}
	if n := atomic.LoadInt64(requests); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
	if len(progress) != 3 || len(*slept) != 2 {
		t.Errorf("progress = %v, rate-limit sleeps = %v", progress, *slept)
	}
}

func TestKlines_LimitAboveMaxPages(t *testing.T) {
	srv, requests := klineServer(t, 2500)
	c, _ := testClient(srv.URL, t0.Add(2500*time.Minute))

	got, err := c.Klines(context.Background(), "BTCUSDT", "1m", 1500, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(got) != 1500 {
		t.Fatalf("len = %d, want 1500", len(got))
	}
	if !got[0].OpenTime.Equal(t0.Add(1000 * time.Minute)) {
		t.Errorf("first = %s", got[0].OpenTime)
	}
	if n := atomic.LoadInt64(requests); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestFetchHistorical_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	c, _ := testClient(srv.URL, t0.Add(time.Hour))

	if _, err := c.FetchHistorical(context.Background(), "BTCUSDT", "1m", t0, t0, nil); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
	var se *StatusError
	if _, err := c.FetchHistorical(context.Background(), "BTCUSDT", "1m", t0, t0.Add(time.Hour), nil); !errors.As(err, &se) {
		t.Errorf("err = %v, want *StatusError", err)
	}

	empty, _ := klineServer(t, 0)
	c.BaseURL = empty.URL
	if _, err := c.FetchHistorical(context.Background(), "BTCUSDT", "1m", t0, t0.Add(time.Hour), nil); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 2 ", 2 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.in); got != tt.want {
			t.Errorf("retryAfter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
