package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const klineMsg = `{"e":"kline","E":1704067260123,"s":"BTCUSDT","k":{"t":1704067200000,"T":1704067259999,"s":"BTCUSDT","i":"1m","o":"42000.5","h":"42100","l":"41900.25","c":"42050","v":"12.5","x":true}}`

func TestDecodeKlineMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		wantErr bool
	}{
		{"bare event", klineMsg, false},
		{"combined envelope", `{"stream":"btcusdt@kline_1m","data":` + klineMsg + `}`, false},
		{"numeric fields", `{"E":1704067260123,"s":"BTCUSDT","k":{"t":1704067200000,"T":1704067259999,"i":"1m","o":42000.5,"h":42100,"l":41900.25,"c":42050,"v":12.5,"x":true}}`, false},
		{"not a kline", `{"result":null,"id":1}`, true},
		{"garbage", `{"s":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeKlineMessage([]byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			k := ev.Kline
			if ev.Symbol != "BTCUSDT" || ev.Interval != "1m" || k.Symbol != "BTCUSDT" {
				t.Errorf("event = %+v", ev)
			}
			if !k.OpenTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("open time = %s", k.OpenTime)
			}
			if k.Open != 42000.5 || k.High != 42100 || k.Low != 41900.25 || k.Close != 42050 || k.Volume != 12.5 {
				t.Errorf("OHLCV = %+v", k)
			}
			if !k.IsClosed {
				t.Error("x=true not decoded")
			}
		})
	}
}

func TestKlineEvent_NumberAndStringAgree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("price decodes the same from number or string", prop.ForAll(
		func(cents int64) bool {
			price := fmt.Sprintf("%d.%02d", cents/100, cents%100)
			asNum := fmt.Sprintf(`{"s":"X","k":{"t":1,"o":%s,"c":%s}}`, price, price)
			asStr := fmt.Sprintf(`{"s":"X","k":{"t":1,"o":"%s","c":"%s"}}`, price, price)
			a, errA := DecodeKlineMessage([]byte(asNum))
			b, errB := DecodeKlineMessage([]byte(asStr))
			return errA == nil && errB == nil && a.Kline.Open == b.Kline.Open && a.Kline.Close == b.Kline.Close
		},
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}

func TestKlineStreamURL(t *testing.T) {
	got := KlineStreamURL("wss://stream.binance.com:9443/", []string{"BTCUSDT", " ethusdt ", ""}, "1d")
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1d/ethusdt@kline_1d"
	if got != want {
		t.Errorf("KlineStreamURL = %q, want %q", got, want)
	}
}

func TestDialKlineStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotQuery := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.Query().Get("streams")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@kline_1m","data":`+klineMsg+`}`))
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := dialKlineStream(ctx, base, []string{"BTCUSDT"}, "1m")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if q := <-gotQuery; q != "btcusdt@kline_1m" {
		t.Errorf("streams = %q", q)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := DecodeKlineMessage(msg)
	if err != nil || ev.Kline.Close != 42050 {
		t.Errorf("event = %+v err = %v", ev, err)
	}

	if _, _, err := dialKlineStream(ctx, base, nil, "1m"); err == nil {
		t.Error("dial with no symbols succeeded")
	}
}
