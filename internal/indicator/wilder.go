package indicator

// SeedMode selects how a Wilder fold is seeded from its first Period inputs.
type SeedMode int

const (
	// SeedSum seeds with the plain sum (smoothed TR and DM).
	SeedSum SeedMode = iota
	// SeedMean seeds with the arithmetic mean (ADX over DX).
	SeedMean
)

// WilderState folds values with Wilder's recurrence s = s - s/period + x
// once Period values have been collected for the seed.
type WilderState struct {
	Period int
	Mode   SeedMode
	Value  float64
	Ready  bool

	count int
	sum   float64
}

// NewWilderState returns an empty fold.
func NewWilderState(period int, mode SeedMode) WilderState {
	return WilderState{Period: period, Mode: mode}
}

// Next folds x into the state. Value is meaningful only when Ready.
func (s WilderState) Next(x float64) WilderState {
	if s.Ready {
		p := float64(s.Period)
		s.Value = s.Value - s.Value/p + x
		return s
	}
	s.sum += x
	s.count++
	if s.count == s.Period {
		s.Value = s.sum
		if s.Mode == SeedMean {
			s.Value = s.sum / float64(s.Period)
		}
		s.Ready = true
	}
	return s
}
