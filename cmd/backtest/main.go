package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"example.com/candle-confluence/internal/backtest"
	"example.com/candle-confluence/internal/binance"
	"example.com/candle-confluence/internal/config"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/recorder"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	csvPath := flag.String("csv", "", "read candles from this CSV instead of the exchange")
	symbol := flag.String("symbol", "", "symbol to fetch (default: first configured symbol)")
	interval := flag.String("interval", "", "kline interval (default: configured interval)")
	limit := flag.Int("limit", 0, "number of candles to fetch (default: configured kline_limit)")
	start := flag.String("start", "", "fetch from this date (YYYY-MM-DD), paging through history")
	end := flag.String("end", "", "fetch up to this date (YYYY-MM-DD), default now")
	saveCSV := flag.String("save-csv", "", "write the fetched candles to this CSV")
	bot := flag.String("bot", "rsi", "strategy: rsi or volume")
	sqlitePath := flag.String("sqlite", "", "record the run into this SQLite database")
	export := flag.String("export", "", "write <prefix>_trades.csv and <prefix>_equity.csv")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if *symbol == "" {
		*symbol = cfg.Symbols[0]
	}
	if *interval == "" {
		*interval = cfg.Interval
	}
	if *limit <= 0 {
		*limit = cfg.KlineLimit
	}
	*symbol = strings.ToUpper(*symbol)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	klines, err := loadKlines(ctx, *csvPath, *symbol, *interval, *limit, *start, *end)
	if err != nil {
		log.Fatalf("load candles: %v", err)
	}
	log.Printf("backtest candles=%d symbol=%s interval=%s first=%s last=%s", len(klines), *symbol, *interval,
		klines[0].OpenTime.Format(time.DateOnly), klines[len(klines)-1].OpenTime.Format(time.DateOnly))

	if *saveCSV != "" {
		if err := kline.WriteCSV(*saveCSV, klines); err != nil {
			log.Fatalf("save csv: %v", err)
		}
		log.Printf("candles written to %s", *saveCSV)
	}

	cols := kline.ColumnsOf(klines)
	var res *backtest.Result
	switch strings.ToLower(*bot) {
	case "rsi":
		res, err = backtest.RunRSI(cols, cfg.Backtest.RSI)
	case "volume":
		res, err = backtest.RunVolume(cols, cfg.Backtest.Volume)
	default:
		log.Fatalf("unknown bot %q (want rsi or volume)", *bot)
	}
	if err != nil {
		log.Fatalf("backtest: %v", err)
	}
	res.Symbol = *symbol
	res.Interval = *interval

	m := backtest.ComputeMetrics(res)
	printSummary(res, m)

	if *export != "" {
		if err := backtest.Export(res, *export); err != nil {
			log.Fatalf("export: %v", err)
		}
		log.Printf("exported %s_trades.csv and %s_equity.csv", *export, *export)
	}

	path := *sqlitePath
	if path == "" {
		path = cfg.Database.SQLitePath
	}
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if path != "" {
		sr, err := recorder.NewSQLiteRecorder(path)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		rec = sr
	}
	defer rec.Close()
	if err := rec.RecordBacktest(res, m); err != nil {
		log.Fatalf("record backtest: %v", err)
	}
	if path != "" {
		log.Printf("run %s recorded to %s", res.ID, path)
	}
}

func loadKlines(ctx context.Context, csvPath, symbol, interval string, limit int, start, end string) ([]kline.Kline, error) {
	if csvPath != "" {
		ks, err := kline.ReadCSV(csvPath, symbol)
		if err != nil {
			return nil, err
		}
		if len(ks) == 0 {
			return nil, fmt.Errorf("%s: %w", csvPath, backtest.ErrNoData)
		}
		return ks, nil
	}

	rest := binance.NewRESTClient()
	var ks []kline.Kline
	var err error
	if start != "" {
		from, perr := time.Parse(time.DateOnly, start)
		if perr != nil {
			return nil, fmt.Errorf("parse start: %w", perr)
		}
		to := time.Now().UTC()
		if end != "" {
			if to, perr = time.Parse(time.DateOnly, end); perr != nil {
				return nil, fmt.Errorf("parse end: %w", perr)
			}
		}
		ks, err = rest.FetchHistorical(ctx, symbol, interval, from, to, func(chunk, chunks, candles int) {
			log.Printf("fetch chunk=%d/%d candles=%d", chunk, chunks, candles)
		})
	} else {
		ks, err = rest.Klines(ctx, symbol, interval, limit, time.Time{}, time.Time{})
	}
	if err != nil {
		return nil, err
	}

	closed := ks[:0]
	for _, k := range ks {
		if k.IsClosed {
			closed = append(closed, k)
		}
	}
	if len(closed) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, backtest.ErrNoData)
	}
	return closed, nil
}

func printSummary(r *backtest.Result, m backtest.Metrics) {
	fmt.Printf("\n%s bot on %s %s (run %s)\n", strings.ToUpper(string(r.Bot)), r.Symbol, r.Interval, r.ID)
	fmt.Printf("  initial capital   %12.2f\n", m.InitialCapital)
	fmt.Printf("  final equity      %12.2f\n", m.FinalEquity)
	fmt.Printf("  total return      %12.2f (%.2f%%)\n", m.TotalReturn, m.TotalReturnPct)
	fmt.Printf("  trades            %12d (buys %d, sells %d)\n", m.NumTrades, m.NumBuys, m.NumSells)
	fmt.Printf("  win rate          %11.2f%%\n", m.WinRate)
	fmt.Printf("  avg P/L           %12.2f\n", m.AvgProfitLoss)
	fmt.Printf("  profit factor     %12.2f\n", m.ProfitFactor)
	fmt.Printf("  max drawdown      %12.2f (%.2f%%)\n", m.MaxDrawdown, m.MaxDrawdownPct)
	fmt.Printf("  sharpe            %12.2f\n", m.Sharpe)
	fmt.Printf("  fees              %12.4f\n", m.TotalFees)
	fmt.Printf("  TP / SL / max hold %5d / %d / %d (ratio %.2f)\n", m.TPHits, m.SLHits, m.MaxHoldingHits, m.TPSLRatio)
	if v := m.Volume; v.WithVolume+v.WithoutVolume > 0 {
		fmt.Printf("  volume confirmed  %12d (win %.2f%%, avg %.2f)\n", v.WithVolume, v.ConfirmedWinRate, v.ConfirmedAvgPnL)
		fmt.Printf("  volume weak       %12d (win %.2f%%, avg %.2f)\n", v.WithoutVolume, v.UnconfirmedWinRate, v.UnconfirmedAvgPnL)
	}
}
