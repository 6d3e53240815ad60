// Package binance fetches candles from the Binance spot REST API and the
// kline websocket stream.
package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/candle-confluence/internal/kline"
)

const (
	RESTBaseURL   = "https://api.binance.com"
	StreamBaseURL = "wss://stream.binance.com:9443"

	// MaxLimit is the most candles one klines request returns.
	MaxLimit = 1000
)

var (
	ErrInvalidRange = errors.New("start must be before end")
	ErrNoData       = errors.New("no klines returned")
)

// StatusError is a non-2xx klines response.
type StatusError struct {
	Symbol string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("binance klines %s: status=%d body=%s", e.Symbol, e.Status, e.Body)
}

// Retryable reports whether the status is worth retrying: rate limits,
// IP bans and server errors.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusTeapot || e.Status >= 500
}

// RESTClient fetches klines with retry and exponential backoff.
type RESTClient struct {
	BaseURL string
	HTTP    *http.Client

	MaxRetries     int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewRESTClient() *RESTClient {
	return &RESTClient{
		BaseURL:        RESTBaseURL,
		HTTP:           &http.Client{Timeout: 10 * time.Second},
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		RateLimitDelay: 50 * time.Millisecond,
		sleep:          sleepCtx,
		now:            time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Klines returns up to limit candles, oldest first. start and end may be
// zero. A limit above MaxLimit pages back from end with FetchHistorical.
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]kline.Kline, error) {
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	step, err := kline.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > MaxLimit {
		if end.IsZero() {
			end = c.now()
		}
		if start.IsZero() {
			start = end.Add(-time.Duration(limit) * step)
		}
		out, err := c.FetchHistorical(ctx, symbol, interval, start, end, nil)
		if err != nil {
			return nil, err
		}
		if len(out) > limit {
			out = out[len(out)-limit:]
		}
		return out, nil
	}
	return c.fetch(ctx, symbol, interval, limit, start, end)
}

func (c *RESTClient) fetch(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]kline.Kline, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/api/v3/klines?" + q.Encode()

	retries := c.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		body, retryAfter, err := c.get(ctx, u, symbol)
		if err == nil {
			return parseKlines(body, symbol, c.now())
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == retries-1 {
			break
		}
		delay := c.BaseDelay * time.Duration(1<<attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		log.Printf("binance klines %s retry in %s attempt=%d/%d: %v", symbol, delay, attempt+1, retries, err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *RESTClient) get(ctx context.Context, u, symbol string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode/100 != 2 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, retryAfter(resp.Header.Get("Retry-After")), &StatusError{Symbol: symbol, Status: resp.StatusCode, Body: msg}
	}
	return body, 0, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parseKlines decodes the array-of-arrays klines payload. A candle whose
// close time has not passed at now is marked as still forming.
func parseKlines(body []byte, symbol string, now time.Time) ([]kline.Kline, error) {
	var rows [][]any
	if err := decodeNumbers(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines %s: %w", symbol, err)
	}
	out := make([]kline.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		k := kline.Kline{
			Symbol:    strings.ToUpper(symbol),
			OpenTime:  time.UnixMilli(toInt(row[0])).UTC(),
			Open:      toFloat(row[1]),
			High:      toFloat(row[2]),
			Low:       toFloat(row[3]),
			Close:     toFloat(row[4]),
			Volume:    toFloat(row[5]),
			CloseTime: time.UnixMilli(toInt(row[6])).UTC(),
		}
		k.IsClosed = k.CloseTime.Before(now)
		out = append(out, k)
	}
	return out, nil
}

// FetchHistorical pages newest to oldest in chunks of MaxLimit candles and
// returns the merged range [start, end] oldest first. A failed chunk is
// skipped; the call fails only when nothing was fetched. progress may be nil.
func (c *RESTClient) FetchHistorical(ctx context.Context, symbol, interval string, start, end time.Time, progress func(chunk, chunks, candles int)) ([]kline.Kline, error) {
	step, err := kline.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = c.now()
	}
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	estimated := int(end.Sub(start) / step)
	chunks := (estimated + MaxLimit - 1) / MaxLimit
	if chunks == 0 {
		chunks = 1
	}
	span := time.Duration(MaxLimit) * step

	var (
		all     []kline.Kline
		lastErr error
	)
	curEnd := end
	for chunk := 0; chunk < chunks; chunk++ {
		chunkStart := curEnd.Add(-span)
		if chunkStart.Before(start) {
			chunkStart = start
		}
		got, err := c.fetch(ctx, symbol, interval, MaxLimit, chunkStart, curEnd)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("WARN: binance klines %s chunk %d/%d failed: %v", symbol, chunk+1, chunks, err)
			lastErr = err
			curEnd = chunkStart
			continue
		}
		if len(got) == 0 {
			break
		}
		all = append(all, got...)
		if progress != nil {
			progress(chunk+1, chunks, len(all))
		}

		curEnd = got[0].OpenTime
		if !curEnd.After(start) {
			break
		}
		if chunk < chunks-1 {
			if err := c.sleep(ctx, c.RateLimitDelay); err != nil {
				return nil, err
			}
		}
	}

	if len(all) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNoData
	}

	all = kline.Normalize(all)
	out := all[:0]
	for _, k := range all {
		if k.OpenTime.Before(start) || k.OpenTime.After(end) {
			continue
		}
		out = append(out, k)
	}
	if gaps := kline.DetectGaps(out, step); len(gaps) > 0 {
		log.Printf("binance klines %s gaps=%d first_after=%s", symbol, len(gaps), gaps[0].After.Format(time.RFC3339))
	}
	return out, nil
}
