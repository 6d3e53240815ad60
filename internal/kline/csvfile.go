package kline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// csvHeader is the column layout written by WriteCSV and expected by ReadCSV.
var csvHeader = []string{"open_time", "open", "high", "low", "close", "volume"}

// ReadCSV loads klines from a CSV file with header open_time,open,high,low,close,volume.
// open_time is unix milliseconds or RFC3339. The result is normalised.
func ReadCSV(path, symbol string) ([]Kline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCSV(f, symbol)
}

// DecodeCSV parses klines from r. See ReadCSV.
func DecodeCSV(r io.Reader, symbol string) ([]Kline, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv missing column %q", col)
		}
	}

	var out []Kline
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		openTime, err := parseTime(rec[idx["open_time"]])
		if err != nil {
			return nil, fmt.Errorf("csv line %d open_time: %w", line, err)
		}
		var vals [5]float64
		for i, col := range csvHeader[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[col]]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d %s: %w", line, col, err)
			}
			vals[i] = v
		}
		out = append(out, Kline{
			Symbol:   symbol,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
			OpenTime: openTime,
			IsClosed: true,
		})
	}
	return Normalize(out), nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Values below year 2000 in milliseconds are treated as seconds.
		if ms < 946684800000 {
			return time.Unix(ms, 0).UTC(), nil
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// WriteCSV writes klines in the ReadCSV layout using an atomic tmp+rename.
func WriteCSV(path string, klines []Kline) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := EncodeCSV(f, klines); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// EncodeCSV writes klines to w.
func EncodeCSV(w io.Writer, klines []Kline) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, k := range klines {
		rec := []string{
			strconv.FormatInt(k.OpenTimeMs(), 10),
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
