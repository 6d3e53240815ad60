package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"example.com/candle-confluence/internal/backtest"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/signal"
)

// SQLiteRecorder persists signals and backtest runs to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database shared between statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			interval    TEXT,
			side        TEXT,
			direction   TEXT,
			pattern     TEXT,
			tier        TEXT,
			tier_rank   INTEGER,
			count       INTEGER,
			confidence  INTEGER,
			price       REAL,
			rationale   TEXT,
			kline_time  INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_created ON signals(symbol, created_at)`,

		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id               TEXT PRIMARY KEY,
			bot              TEXT NOT NULL,
			symbol           TEXT,
			interval         TEXT,
			started_at       INTEGER NOT NULL,
			initial_capital  REAL,
			final_equity     REAL,
			total_return_pct REAL,
			num_trades       INTEGER,
			win_rate         REAL,
			profit_factor    REAL,
			max_drawdown_pct REAL,
			sharpe           REAL,
			tp_hits          INTEGER,
			sl_hits          INTEGER,
			tp_sl_ratio      REAL,
			config           TEXT,
			metrics          TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL REFERENCES backtest_runs(id),
			idx         INTEGER,
			timestamp   INTEGER NOT NULL,
			side        TEXT,
			price       REAL,
			amount      REAL,
			amount_usd  REAL,
			fee_usd     REAL,
			signal      TEXT,
			exit_reason TEXT,
			pnl         REAL,
			cash_after  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(s SignalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO signals
		(id, kind, symbol, interval, side, direction, pattern, tier, tier_rank,
		 count, confidence, price, rationale, kline_time, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, string(s.Kind), s.Symbol, s.Interval, string(s.Side), string(s.Direction),
		s.Pattern, string(s.Tier), s.Tier.Rank(), s.Count, s.Confidence,
		finite(s.Price), s.Rationale, s.KlineTime.UnixMilli(), s.CreatedAt.UnixMilli(),
	)
	return err
}

func (r *SQLiteRecorder) QuerySignals(q SignalQuery) ([]SignalRecord, error) {
	var (
		where []string
		args  []any
	)
	if q.Symbol != "" {
		where = append(where, "symbol = ? COLLATE NOCASE")
		args = append(args, q.Symbol)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Side != "" {
		where = append(where, "side = ?")
		args = append(args, string(q.Side))
	}
	if q.MinTier != "" {
		where = append(where, "(kind != ? OR tier_rank >= ?)")
		args = append(args, string(KindConfluence), q.MinTier.Rank())
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}

	query := `SELECT id, kind, symbol, interval, side, direction, pattern, tier,
		count, confidence, price, rationale, kline_time, created_at FROM signals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var (
			s                          SignalRecord
			kind, side, dir, tier      string
			price                      sql.NullFloat64
			klineMillis, createdMillis int64
		)
		if err := rows.Scan(&s.ID, &kind, &s.Symbol, &s.Interval, &side, &dir, &s.Pattern, &tier,
			&s.Count, &s.Confidence, &price, &s.Rationale, &klineMillis, &createdMillis); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Kind = Kind(kind)
		s.Side = signal.Side(side)
		s.Direction = pattern.Direction(dir)
		s.Tier = signal.Tier(tier)
		s.Price = price.Float64
		s.KlineTime = time.UnixMilli(klineMillis).UTC()
		s.CreatedAt = time.UnixMilli(createdMillis).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordBacktest stores the run summary and its trades in one transaction.
func (r *SQLiteRecorder) RecordBacktest(res *backtest.Result, m backtest.Metrics) error {
	if res == nil {
		return fmt.Errorf("record backtest: nil result")
	}
	cfg, err := json.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("encode backtest config: %w", err)
	}
	metricsJSON, err := json.Marshal(jsonSafe(m))
	if err != nil {
		return fmt.Errorf("encode backtest metrics: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO backtest_runs
		(id, bot, symbol, interval, started_at, initial_capital, final_equity, total_return_pct,
		 num_trades, win_rate, profit_factor, max_drawdown_pct, sharpe, tp_hits, sl_hits,
		 tp_sl_ratio, config, metrics)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.ID, string(res.Bot), res.Symbol, res.Interval, res.StartedAt.UnixMilli(),
		m.InitialCapital, finite(m.FinalEquity), finite(m.TotalReturnPct),
		m.NumTrades, finite(m.WinRate), nullable(m.ProfitFactor), finite(m.MaxDrawdownPct),
		finite(m.Sharpe), m.TPHits, m.SLHits, nullable(m.TPSLRatio),
		string(cfg), string(metricsJSON),
	); err != nil {
		return fmt.Errorf("insert backtest run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO backtest_trades
		(run_id, idx, timestamp, side, price, amount, amount_usd, fee_usd, signal, exit_reason, pnl, cash_after)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range res.Trades {
		if _, err := stmt.Exec(res.ID, t.Index, t.Time.UnixMilli(), string(t.Side), t.Price, t.Amount,
			t.AmountUSD, t.FeeUSD, string(t.Signal), string(t.Exit), finite(t.PnL), t.CashAfter); err != nil {
			return fmt.Errorf("insert backtest trade: %w", err)
		}
	}
	return tx.Commit()
}

// RunSummary is a stored backtest run without its trades.
type RunSummary struct {
	ID             string    `json:"id"`
	Bot            string    `json:"bot"`
	Symbol         string    `json:"symbol"`
	StartedAt      time.Time `json:"started_at"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturnPct float64   `json:"total_return_pct"`
	NumTrades      int       `json:"num_trades"`
	Trades         int       `json:"stored_trades"`
}

// Runs lists the newest stored backtest runs.
func (r *SQLiteRecorder) Runs(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT r.id, r.bot, r.symbol, r.started_at, r.final_equity,
		r.total_return_pct, r.num_trades,
		(SELECT COUNT(*) FROM backtest_trades t WHERE t.run_id = r.id)
		FROM backtest_runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s       RunSummary
			started int64
		)
		if err := rows.Scan(&s.ID, &s.Bot, &s.Symbol, &started, &s.FinalEquity, &s.TotalReturnPct, &s.NumTrades, &s.Trades); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.StartedAt = time.UnixMilli(started).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("closing sqlite recorder")
	return r.db.Close()
}

// jsonSafe zeroes the non-finite ratios encoding/json refuses to encode.
func jsonSafe(m backtest.Metrics) backtest.Metrics {
	for _, f := range []*float64{
		&m.FinalEquity, &m.TotalReturn, &m.TotalReturnPct, &m.WinRate, &m.AvgProfitLoss,
		&m.ProfitFactor, &m.MaxDrawdown, &m.MaxDrawdownPct, &m.Sharpe, &m.TPSLRatio,
		&m.Volume.ConfirmedWinRate, &m.Volume.ConfirmedAvgPnL,
		&m.Volume.UnconfirmedWinRate, &m.Volume.UnconfirmedAvgPnL,
	} {
		*f = finite(*f)
	}
	return m
}

// finite maps NaN and the infinities to zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
