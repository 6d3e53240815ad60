package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"example.com/candle-confluence/internal/kline"
)

func approx(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}

func equalColumns(t *testing.T, name string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s len = %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("%s[%d] = %v, want %v", name, i, got[i], want[i])
		}
	}
}

var nan = math.NaN()

func TestSMA(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		w    int
		want []float64
	}{
		{"basic", []float64{1, 2, 3, 4, 5}, 3, []float64{nan, nan, 2, 3, 4}},
		{"window one", []float64{4, 5}, 1, []float64{4, 5}},
		{"too short", []float64{1, 2}, 3, []float64{nan, nan}},
		{"leading nan", []float64{nan, 1, 2, 3}, 2, []float64{nan, nan, 1.5, 2.5}},
		{"interior nan", []float64{1, nan, 3, 4, 5}, 2, []float64{nan, nan, nan, 3.5, 4.5}},
		{"empty", nil, 3, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equalColumns(t, "SMA", SMA(tt.x, tt.w), tt.want)
		})
	}
}

func TestStdDev_Population(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := StdDev(x, 8)
	if !approx(got[7], 2) {
		t.Errorf("StdDev = %v, want 2 (population)", got[7])
	}
	for i := 0; i < 7; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("StdDev[%d] = %v, want NaN", i, got[i])
		}
	}
}

func TestBollinger(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	b := ComputeBollinger(x, 8, 2)
	if !approx(b.Middle[7], 5) || !approx(b.Upper[7], 9) || !approx(b.Lower[7], 1) {
		t.Errorf("Bollinger = %v/%v/%v, want 5/9/1", b.Middle[7], b.Upper[7], b.Lower[7])
	}
	if !math.IsNaN(b.Upper[6]) {
		t.Errorf("Upper[6] = %v, want NaN", b.Upper[6])
	}
}

func TestEMA(t *testing.T) {
	equalColumns(t, "EMA", EMA([]float64{1, 2, 3}, 3), []float64{1, 1.5, 2.25})
	equalColumns(t, "EMA", EMA([]float64{nan, 2, 4}, 3), []float64{nan, 2, 3})
}

func TestEMAState_Fold(t *testing.T) {
	st := NewEMAState(9)
	if st.Seeded {
		t.Fatal("new state should not be seeded")
	}
	st = st.Next(10)
	if st.Value != 10 {
		t.Errorf("seed Value = %v, want 10", st.Value)
	}
	prev := st
	st = st.Next(20)
	if !approx(st.Value, 0.2*20+0.8*10) {
		t.Errorf("Value = %v, want 12", st.Value)
	}
	if prev.Value != 10 {
		t.Error("Next mutated the previous state")
	}
}

func TestWilderState(t *testing.T) {
	tests := []struct {
		name  string
		mode  SeedMode
		seed  float64
		after float64
	}{
		{"sum", SeedSum, 6, 6 - 6.0/3 + 3},
		{"mean", SeedMean, 2, 2 - 2.0/3 + 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewWilderState(3, tt.mode)
			for _, v := range []float64{1, 2} {
				st = st.Next(v)
				if st.Ready {
					t.Fatal("ready before period values")
				}
			}
			st = st.Next(3)
			if !st.Ready || !approx(st.Value, tt.seed) {
				t.Errorf("seed = %v (ready=%v), want %v", st.Value, st.Ready, tt.seed)
			}
			st = st.Next(3)
			if !approx(st.Value, tt.after) {
				t.Errorf("after = %v, want %v", st.Value, tt.after)
			}
		})
	}
}

func TestRSI_WarmUp(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i%3)
	}

	rsi14 := RSI(closes[:14], 14)
	for i, v := range rsi14 {
		if !math.IsNaN(v) {
			t.Errorf("14 bars: rsi[%d] = %v, want NaN", i, v)
		}
	}

	rsi15 := RSI(closes, 14)
	defined := 0
	for i, v := range rsi15 {
		if !math.IsNaN(v) {
			defined++
			if i != 14 {
				t.Errorf("15 bars: defined at %d, want 14", i)
			}
		}
	}
	if defined != 1 {
		t.Errorf("15 bars: %d defined values, want 1", defined)
	}
}

func TestRSI_Policies(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		period int
		want   float64
	}{
		{"only gains", []float64{1, 2, 3, 4}, 3, 100},
		{"flat", []float64{5, 5, 5, 5}, 3, 50},
		{"only losses", []float64{4, 3, 2, 1}, 3, 0},
		{"balanced", []float64{1, 2, 1}, 2, 50},
		{"loss left window", []float64{1, 0.7, 0.8, 0.9, 1.0}, 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := RSI(tt.closes, tt.period)
			if got := rsi[len(rsi)-1]; !approx(got, tt.want) {
				t.Errorf("RSI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMACD(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 12, 14, 13}
	m := ComputeMACD(closes, 3, 6, 2)
	fast := EMA(closes, 3)
	slow := EMA(closes, 6)
	for i := range closes {
		if !approx(m.Line[i], fast[i]-slow[i]) {
			t.Errorf("Line[%d] = %v", i, m.Line[i])
		}
		if !approx(m.Histogram[i], m.Line[i]-m.Signal[i]) {
			t.Errorf("Histogram[%d] = %v", i, m.Histogram[i])
		}
	}
	if m.Line[0] != 0 {
		t.Errorf("Line[0] = %v, want 0", m.Line[0])
	}
}

func trendSeries(n int) (high, low, close []float64) {
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + 0.5*float64(i) + 3*math.Sin(float64(i)/3)
		close[i] = base
		high[i] = base + 1 + math.Abs(math.Cos(float64(i)))
		low[i] = base - 1 - 0.5*math.Abs(math.Sin(float64(i)))
	}
	return high, low, close
}

func TestADX_DefinedRanges(t *testing.T) {
	const p = 5
	high, low, close := trendSeries(40)
	res := ComputeADX(high, low, close, p)

	for i := 0; i < p; i++ {
		if !math.IsNaN(res.PlusDI[i]) || !math.IsNaN(res.MinusDI[i]) {
			t.Errorf("DI[%d] defined, want NaN before period", i)
		}
	}
	for i := 0; i < 2*p-1; i++ {
		if !math.IsNaN(res.ADX[i]) {
			t.Errorf("ADX[%d] = %v, want NaN before 2*period-1", i, res.ADX[i])
		}
	}
	if math.IsNaN(res.ADX[2*p-1]) {
		t.Error("ADX[2*period-1] should be the seed")
	}
}

func TestADX_WilderRecurrence(t *testing.T) {
	const p = 5
	high, low, close := trendSeries(60)
	res := ComputeADX(high, low, close, p)

	dx := func(i int) float64 {
		s := res.PlusDI[i] + res.MinusDI[i]
		if s == 0 {
			return 0
		}
		return 100 * math.Abs(res.PlusDI[i]-res.MinusDI[i]) / s
	}

	seed := 0.0
	for i := p; i <= 2*p-1; i++ {
		seed += dx(i)
	}
	if !approx(res.ADX[2*p-1], seed/p) {
		t.Errorf("ADX seed = %v, want %v", res.ADX[2*p-1], seed/p)
	}
	for i := 2 * p; i < len(close); i++ {
		want := res.ADX[i-1] - res.ADX[i-1]/p + dx(i)
		if !approx(res.ADX[i], want) {
			t.Fatalf("ADX[%d] = %v, want %v", i, res.ADX[i], want)
		}
	}

	tr := TrueRange(high, low, close)
	plus, _ := directionalMovement(high, low)
	sumTR, sumPlus := 0.0, 0.0
	for i := 1; i <= p; i++ {
		sumTR += tr[i]
		sumPlus += plus[i]
	}
	if !approx(res.PlusDI[p], 100*sumPlus/sumTR) {
		t.Errorf("PlusDI[period] = %v, want %v", res.PlusDI[p], 100*sumPlus/sumTR)
	}
}

func TestADX_FlatSeries(t *testing.T) {
	flat := []float64{10, 10, 10, 10, 10, 10, 10, 10}
	res := ComputeADX(flat, flat, flat, 3)
	if res.PlusDI[3] != 0 || res.MinusDI[3] != 0 {
		t.Errorf("DI on zero range = %v/%v, want 0/0", res.PlusDI[3], res.MinusDI[3])
	}
	if res.ADX[5] != 0 {
		t.Errorf("ADX on zero range = %v, want 0", res.ADX[5])
	}
}

func TestDirectionalMovement_Exclusive(t *testing.T) {
	high := []float64{10, 12, 13, 13}
	low := []float64{9, 9, 7, 6}
	plus, minus := directionalMovement(high, low)
	// bar 1: up 2, down 0; bar 2: up 1, down 2; bar 3: up 0, down 1.
	equalColumns(t, "+DM", plus, []float64{0, 2, 0, 0})
	equalColumns(t, "-DM", minus, []float64{0, 0, 2, 1})
}

func TestVolumeOscillator(t *testing.T) {
	osc := VolumeOscillator([]float64{100, 100, 100}, 5, 10)
	for i, v := range osc {
		if v != 0 {
			t.Errorf("osc[%d] = %v, want 0", i, v)
		}
	}
	zero := VolumeOscillator([]float64{0, 0}, 5, 10)
	if !math.IsNaN(zero[1]) {
		t.Errorf("osc on zero volume = %v, want NaN", zero[1])
	}
}

func TestComputeVolume(t *testing.T) {
	vol := []float64{10, 10, 10, 40, 10}
	v := ComputeVolume(vol, 3, 4, 1.5)

	if v.Spike[0] || v.Spike[1] {
		t.Error("spike must be false while MAFast is undefined")
	}
	if !v.Spike[3] {
		t.Errorf("Spike[3] = false, want true (40 > 1.5*20)")
	}
	if v.Spike[4] {
		t.Error("Spike[4] = true, want false")
	}
	if !math.IsNaN(v.Trend[3]) {
		t.Errorf("Trend[3] = %v, want NaN before the short window fills", v.Trend[3])
	}
	if !approx(v.Trend[4], 16.0/20.0) {
		t.Errorf("Trend[4] = %v, want 0.8", v.Trend[4])
	}
}

func TestEnvelopes_Inside(t *testing.T) {
	e := ComputeEnvelopes([]float64{10, 12}, []float64{8, 8}, 2)
	tests := []struct {
		name  string
		i     int
		price float64
		want  bool
	}{
		{"undefined", 0, 9, false},
		{"inside", 1, 9, true},
		{"on upper", 1, 11, false},
		{"below", 1, 7, false},
		{"out of range", 5, 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Inside(tt.i, tt.price); got != tt.want {
				t.Errorf("Inside(%d, %v) = %v, want %v", tt.i, tt.price, got, tt.want)
			}
		})
	}
}

func TestCompute_InvalidParameter(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"rsi", func(p *Params) { p.RSIPeriod = 0 }},
		{"adx", func(p *Params) { p.ADXPeriod = -1 }},
		{"bb std", func(p *Params) { p.BBStdDev = 0 }},
		{"lookback", func(p *Params) { p.EnvelopeLookback = 0 }},
		{"spike", func(p *Params) { p.VolumeSpike = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			_, err := Compute(kline.Columns{}, p)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("Compute() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestCompute_MatchesColumns(t *testing.T) {
	high, low, close := trendSeries(120)
	vol := make([]float64, len(close))
	for i := range vol {
		vol[i] = 1000 + 100*math.Sin(float64(i))
	}
	cols := kline.Columns{Open: close, High: high, Low: low, Close: close, Volume: vol}

	p := DefaultParams()
	p.EnvelopeLookback = 50
	set, err := Compute(cols, p)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	equalColumns(t, "rsi", set.RSI, RSI(close, p.RSIPeriod))
	equalColumns(t, "adx", set.ADX.ADX, ComputeADX(high, low, close, p.ADXPeriod).ADX)
	equalColumns(t, "k_envelope_upper", set.Envelopes.Upper, SMA(high, 50))

	for _, name := range FloatNames() {
		col, ok := set.Float(name)
		if !ok || len(col) != len(close) {
			t.Errorf("Float(%q) ok=%v len=%d", name, ok, len(col))
		}
	}
	if _, ok := set.Float("nope"); ok {
		t.Error("Float(unknown) ok = true")
	}
}

// Property Tests

func TestProperty_RSIBounded(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("RSI stays within [0, 100]", prop.ForAll(
		func(closes []float64) bool {
			for _, v := range RSI(closes, 5) {
				if math.IsNaN(v) {
					continue
				}
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(1, 1000)),
	))

	properties.TestingRun(t)
}

func TestProperty_SMAOfConstant(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("SMA of a constant column is the constant after warm-up", prop.ForAll(
		func(c float64, n, w int) bool {
			x := make([]float64, n)
			for i := range x {
				x[i] = c
			}
			out := SMA(x, w)
			for i, v := range out {
				if i < w-1 {
					if !math.IsNaN(v) {
						return false
					}
					continue
				}
				if math.Abs(v-c) > 1e-9*math.Max(1, math.Abs(c)) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1000, 1000),
		gen.IntRange(0, 60),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestProperty_ComputeIsCausal(t *testing.T) {
	properties := gopter.NewProperties(nil)
	high, low, close := trendSeries(80)
	vol := make([]float64, len(close))
	for i := range vol {
		vol[i] = 500 + 50*math.Cos(float64(i)/2)
	}
	full := kline.Columns{Open: close, High: high, Low: low, Close: close, Volume: vol, Time: make([]time.Time, len(close))}
	p := DefaultParams()
	p.EnvelopeLookback = 30
	whole, _ := Compute(full, p)

	properties.Property("a prefix computes the same values as the full series", prop.ForAll(
		func(end int) bool {
			part, err := Compute(full.Slice(end), p)
			if err != nil {
				return false
			}
			for _, name := range FloatNames() {
				a, _ := part.Float(name)
				b, _ := whole.Float(name)
				for i := range a {
					if !approx(a[i], b[i]) && math.Abs(a[i]-b[i]) > 1e-7*math.Max(1, math.Abs(b[i])) {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 80),
	))

	properties.TestingRun(t)
}
