// Package config loads the service configuration from .env, YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"example.com/candle-confluence/internal/analysis"
	"example.com/candle-confluence/internal/backtest"
	"example.com/candle-confluence/internal/kline"
)

// Config holds all application configuration.
type Config struct {
	Symbols    []string `yaml:"symbols"`
	Interval   string   `yaml:"interval"`
	KlineLimit int      `yaml:"kline_limit"`
	DataDir    string   `yaml:"data_dir"`

	Analysis analysis.Config `yaml:"analysis"`

	Backtest struct {
		RSI    backtest.RSIConfig    `yaml:"rsi"`
		Volume backtest.VolumeConfig `yaml:"volume"`
	} `yaml:"backtest"`

	Refresh struct {
		Cron         string        `yaml:"cron"`
		Workers      int           `yaml:"workers"`
		SnapshotPath string        `yaml:"snapshot_path"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"refresh"`

	Monitor struct {
		Enabled       bool          `yaml:"enabled"`
		Patterns      bool          `yaml:"patterns"`
		MinConfidence int           `yaml:"min_confidence"`
		Buffer        int           `yaml:"buffer"`
		CombineWindow time.Duration `yaml:"combine_window"`
	} `yaml:"monitor"`

	History struct {
		Path string `yaml:"path"`
		Max  int    `yaml:"max"`
	} `yaml:"history"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	HTTP struct {
		Addr        string `yaml:"addr"`
		CORSOrigins string `yaml:"cors_origins"`
	} `yaml:"http"`
}

// Default returns the stock configuration.
func Default() *Config {
	cfg := &Config{
		Symbols:    []string{"BTCUSDT"},
		Interval:   "1d",
		KlineLimit: 1500,
		DataDir:    "data",
		Analysis:   analysis.DefaultConfig(),
	}
	cfg.Backtest.RSI = backtest.DefaultRSIConfig()
	cfg.Backtest.Volume = backtest.DefaultVolumeConfig()
	cfg.Refresh.Cron = "0 5 0 * * *"
	cfg.Refresh.Workers = 4
	cfg.Refresh.SnapshotPath = "analysis/snapshot.json"
	cfg.Refresh.Timeout = 10 * time.Minute
	cfg.Monitor.Enabled = true
	cfg.Monitor.Patterns = true
	cfg.Monitor.MinConfidence = 60
	cfg.Monitor.Buffer = 1000
	cfg.Monitor.CombineWindow = 15 * time.Minute
	cfg.History.Path = "signals/history.jsonl"
	cfg.History.Max = 1000
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.CORSOrigins = "*"
	return cfg
}

// Load reads .env, then the YAML file at path, then environment overrides.
// Missing files are not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: load .env: %v", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = ParseSymbols(v)
	}
	if v := os.Getenv("INTERVAL"); v != "" {
		c.Interval = v
	}
	envInt("KLINE_LIMIT", &c.KlineLimit)
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REFRESH_CRON"); v != "" {
		c.Refresh.Cron = v
	}
	envInt("REFRESH_WORKERS", &c.Refresh.Workers)
	envBool("MONITOR_ENABLED", &c.Monitor.Enabled)
	envBool("PATTERN_ENABLED", &c.Monitor.Patterns)
	envInt("PATTERN_MIN_CONFIDENCE", &c.Monitor.MinConfidence)
	envBool("CDL_ENABLED", &c.Analysis.CDL)
	if v := os.Getenv("HISTORY_FILE"); v != "" {
		c.History.Path = v
	}
	envInt("HISTORY_MAX", &c.History.Max)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.HTTP.CORSOrigins = v
	}
	envInt("RSI_PERIOD", &c.Analysis.Indicators.RSIPeriod)
	envFloat("RSI_OVERSOLD", &c.Analysis.Signal.RSIOversold)
	envFloat("RSI_OVERBOUGHT", &c.Analysis.Signal.RSIOverbought)
	envInt("K_LOOKBACK", &c.Analysis.Indicators.EnvelopeLookback)
}

// fillDefaults restores values a YAML file or the environment left empty.
func (c *Config) fillDefaults() {
	d := Default()
	if len(c.Symbols) == 0 {
		c.Symbols = d.Symbols
	}
	if c.Interval == "" {
		c.Interval = d.Interval
	}
	if c.KlineLimit == 0 {
		c.KlineLimit = d.KlineLimit
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = d.Refresh.Cron
	}
	if c.Refresh.SnapshotPath == "" {
		c.Refresh.SnapshotPath = d.Refresh.SnapshotPath
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = d.Refresh.Timeout
	}
	if c.Monitor.CombineWindow == 0 {
		c.Monitor.CombineWindow = d.Monitor.CombineWindow
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("symbols: at least one symbol is required")
	}
	if _, err := kline.IntervalDuration(c.Interval); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	if c.KlineLimit <= 0 {
		return fmt.Errorf("kline_limit must be positive, got %d", c.KlineLimit)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Backtest.RSI.Validate(); err != nil {
		return fmt.Errorf("backtest.rsi: %w", err)
	}
	if err := c.Backtest.Volume.Validate(); err != nil {
		return fmt.Errorf("backtest.volume: %w", err)
	}
	if c.Refresh.Workers <= 0 {
		return fmt.Errorf("refresh.workers must be positive, got %d", c.Refresh.Workers)
	}
	if _, err := cronParser.Parse(c.Refresh.Cron); err != nil {
		return fmt.Errorf("refresh.cron: %w", err)
	}
	if c.Monitor.Buffer <= 0 {
		return fmt.Errorf("monitor.buffer must be positive, got %d", c.Monitor.Buffer)
	}
	return nil
}

// cronParser accepts the six-field specs the scheduler runs with.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSymbols splits a comma or space separated list into upper-case symbols.
func ParseSymbols(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: invalid %s=%q, keeping %d", key, v, *dst)
		return
	}
	*dst = i
}

func envFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: invalid %s=%q, keeping %g", key, v, *dst)
		return
	}
	*dst = f
}

func envBool(key string, dst *bool) {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return
	}
	*dst = v == "true" || v == "1" || v == "yes" || v == "on"
}
