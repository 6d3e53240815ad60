// Package kline provides OHLCV candle types, series normalisation and the live candle buffer.
package kline

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidKline is returned by Validate when the OHLC ordering does not hold.
var ErrInvalidKline = errors.New("invalid kline")

// Kline represents a single OHLCV candlestick.
type Kline struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	IsClosed  bool      `json:"is_closed"`
}

// Body returns the absolute size of the kline body (|Close - Open|).
func (k *Kline) Body() float64 {
	return math.Abs(k.Close - k.Open)
}

// UpperShadow returns the length of the upper shadow.
func (k *Kline) UpperShadow() float64 {
	if k.Close > k.Open {
		return k.High - k.Close
	}
	return k.High - k.Open
}

// LowerShadow returns the length of the lower shadow.
func (k *Kline) LowerShadow() float64 {
	if k.Close > k.Open {
		return k.Open - k.Low
	}
	return k.Close - k.Low
}

// IsBullish returns true if the kline is bullish (Close > Open).
func (k *Kline) IsBullish() bool {
	return k.Close > k.Open
}

// IsBearish returns true if the kline is bearish (Close < Open).
func (k *Kline) IsBearish() bool {
	return k.Close < k.Open
}

// Range returns the total range of the kline (High - Low).
func (k *Kline) Range() float64 {
	return k.High - k.Low
}

// OpenTimeMs returns the open time as unix milliseconds, the dedup key of a series.
func (k *Kline) OpenTimeMs() int64 {
	return k.OpenTime.UnixMilli()
}

// Validate checks low <= min(open,close) <= max(open,close) <= high and a non-negative volume.
func (k *Kline) Validate() error {
	for _, v := range []float64{k.Open, k.High, k.Low, k.Close, k.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidKline, k.OpenTime.Format(time.RFC3339))
		}
	}
	if k.Open <= 0 || k.High <= 0 || k.Low <= 0 || k.Close <= 0 {
		return fmt.Errorf("%w: non-positive price at %s", ErrInvalidKline, k.OpenTime.Format(time.RFC3339))
	}
	if k.Volume < 0 {
		return fmt.Errorf("%w: negative volume at %s", ErrInvalidKline, k.OpenTime.Format(time.RFC3339))
	}
	if k.Low > math.Min(k.Open, k.Close) || math.Max(k.Open, k.Close) > k.High {
		return fmt.Errorf("%w: ohlc out of order at %s", ErrInvalidKline, k.OpenTime.Format(time.RFC3339))
	}
	return nil
}

// Clone returns a deep copy of the kline.
func (k *Kline) Clone() Kline {
	return Kline{
		Symbol:    k.Symbol,
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		IsClosed:  k.IsClosed,
	}
}

// Columns holds the parallel OHLCV arrays of a series.
type Columns struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
	Time   []time.Time
}

// Len returns the number of rows.
func (c Columns) Len() int {
	return len(c.Close)
}

// ColumnsOf copies klines into column form. klines must be oldest first.
func ColumnsOf(klines []Kline) Columns {
	n := len(klines)
	c := Columns{
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
		Time:   make([]time.Time, n),
	}
	for i, k := range klines {
		c.Open[i] = k.Open
		c.High[i] = k.High
		c.Low[i] = k.Low
		c.Close[i] = k.Close
		c.Volume[i] = k.Volume
		c.Time[i] = k.OpenTime
	}
	return c
}

// Slice returns the rows [0, end) sharing the underlying arrays.
func (c Columns) Slice(end int) Columns {
	if end > c.Len() {
		end = c.Len()
	}
	if end < 0 {
		end = 0
	}
	return Columns{
		Open:   c.Open[:end],
		High:   c.High[:end],
		Low:    c.Low[:end],
		Close:  c.Close[:end],
		Volume: c.Volume[:end],
		Time:   c.Time[:end],
	}
}
