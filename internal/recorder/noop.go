package recorder

import "example.com/candle-confluence/internal/backtest"

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ SignalRecord) error { return nil }
func (n *NoopRecorder) QuerySignals(_ SignalQuery) ([]SignalRecord, error) { return nil, nil }
func (n *NoopRecorder) RecordBacktest(_ *backtest.Result, _ backtest.Metrics) error { return nil }
func (n *NoopRecorder) Close() error { return nil }
