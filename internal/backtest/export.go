package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var tradeHeader = []string{
	"time", "side", "price", "amount_usd", "amount", "fee", "fee_usd", "rsi",
	"signal", "exit", "pnl", "cash_after", "position_after", "volume_confirmed", "volume_reason",
}

var equityHeader = []string{"time", "cash", "position", "price", "equity", "rsi"}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteTradesCSV writes one row per fill.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		confirmed, reason := "", ""
		if t.Participation != nil {
			confirmed = strconv.FormatBool(t.Participation.Confirmed)
			reason = t.Participation.Reason
		}
		pnl := ""
		if t.Closing() {
			pnl = ftoa(t.PnL)
		}
		row := []string{
			stamp(t.Time), string(t.Side), ftoa(t.Price), ftoa(t.AmountUSD), ftoa(t.Amount),
			ftoa(t.Fee), ftoa(t.FeeUSD), ftoa(t.RSI), string(t.Signal), string(t.Exit), pnl,
			ftoa(t.CashAfter), ftoa(t.PositionAfter), confirmed, reason,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes one row per bar.
func WriteEquityCSV(w io.Writer, equity []EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(equityHeader); err != nil {
		return err
	}
	for _, p := range equity {
		row := []string{stamp(p.Time), ftoa(p.Cash), ftoa(p.Position), ftoa(p.Price), ftoa(p.Equity), ftoa(p.RSI)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes <prefix>_trades.csv and <prefix>_equity.csv.
func Export(r *Result, prefix string) error {
	write := func(name string, fn func(io.Writer) error) error {
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		return f.Close()
	}
	if err := write(prefix+"_trades.csv", func(w io.Writer) error { return WriteTradesCSV(w, r.Trades) }); err != nil {
		return err
	}
	return write(prefix+"_equity.csv", func(w io.Writer) error { return WriteEquityCSV(w, r.Equity) })
}
