package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"example.com/candle-confluence/internal/kline"
)

// KlineEvent is one kline stream update.
type KlineEvent struct {
	EventTime int64
	Symbol    string
	Interval  string
	Kline     kline.Kline
}

// UnmarshalJSON accepts numbers sent either as JSON numbers or as strings.
func (e *KlineEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := decodeNumbers(data, &raw); err != nil {
		return err
	}

	e.EventTime = toInt(raw["E"])
	if v, ok := raw["s"].(string); ok {
		e.Symbol = v
	}

	k, ok := raw["k"].(map[string]any)
	if !ok {
		return nil
	}
	if v, ok := k["i"].(string); ok {
		e.Interval = v
	}
	symbol := e.Symbol
	if v, ok := k["s"].(string); ok && v != "" {
		symbol = v
	}
	if e.Symbol == "" {
		e.Symbol = symbol
	}
	e.Kline = kline.Kline{
		Symbol:    symbol,
		OpenTime:  time.UnixMilli(toInt(k["t"])).UTC(),
		CloseTime: time.UnixMilli(toInt(k["T"])).UTC(),
		Open:      toFloat(k["o"]),
		High:      toFloat(k["h"]),
		Low:       toFloat(k["l"]),
		Close:     toFloat(k["c"]),
		Volume:    toFloat(k["v"]),
		IsClosed:  toBool(k["x"]),
	}
	return nil
}

// DecodeKlineMessage decodes a bare event or a combined-stream envelope
// {"stream": ..., "data": {...}}.
func DecodeKlineMessage(b []byte) (KlineEvent, error) {
	var env struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err == nil && len(env.Data) > 0 {
		b = env.Data
	}
	var ev KlineEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return KlineEvent{}, err
	}
	if ev.Symbol == "" || ev.Kline.OpenTime.UnixMilli() == 0 {
		return KlineEvent{}, errors.New("not a kline event")
	}
	return ev, nil
}

// KlineStreamURL builds the combined stream URL for symbols at interval.
func KlineStreamURL(base string, symbols []string, interval string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, s+"@kline_"+interval)
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// DialKlineStream subscribes to the kline stream of every symbol.
func DialKlineStream(ctx context.Context, symbols []string, interval string) (*websocket.Conn, *http.Response, error) {
	return dialKlineStream(ctx, StreamBaseURL, symbols, interval)
}

func dialKlineStream(ctx context.Context, base string, symbols []string, interval string) (*websocket.Conn, *http.Response, error) {
	if len(symbols) == 0 {
		return nil, nil, errors.New("no symbols to subscribe")
	}
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	return d.DialContext(ctx, KlineStreamURL(base, symbols, interval), nil)
}
