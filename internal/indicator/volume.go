package indicator

import "math"

// VolumeTrendWindow is the short window of the volume_trend ratio.
const VolumeTrendWindow = 5

// VolumeOscillator returns 100·(EMA(vol, fast) − EMA(vol, slow)) / EMA(vol, slow).
// It is NaN where the slow average is zero.
func VolumeOscillator(vol []float64, fast, slow int) []float64 {
	f := EMA(vol, fast)
	s := EMA(vol, slow)
	out := nanColumn(len(vol))
	for i := range vol {
		if math.IsNaN(s[i]) || s[i] == 0 {
			continue
		}
		out[i] = 100 * (f[i] - s[i]) / s[i]
	}
	return out
}

// Volume holds volume moving averages, the spike flag and the short-term trend ratio.
type Volume struct {
	MAFast []float64
	MASlow []float64
	Spike  []bool
	Trend  []float64
}

// ComputeVolume returns the volume indicators. Spike is vol > spike·MAFast and reads
// false while MAFast is undefined.
func ComputeVolume(vol []float64, fast, slow int, spike float64) Volume {
	n := len(vol)
	v := Volume{
		MAFast: SMA(vol, fast),
		MASlow: SMA(vol, slow),
		Spike:  make([]bool, n),
		Trend:  nanColumn(n),
	}
	short := SMA(vol, VolumeTrendWindow)
	for i := 0; i < n; i++ {
		ma := v.MAFast[i]
		if math.IsNaN(ma) {
			continue
		}
		v.Spike[i] = vol[i] > spike*ma
		if !math.IsNaN(short[i]) && ma != 0 {
			v.Trend[i] = short[i] / ma
		}
	}
	return v
}
