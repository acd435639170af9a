package signal

// Smoother computes a causal trailing mean over the last W raw values. The
// first W-1 outputs use the shorter history seen so far instead of a null
// value, so backtest and live produce the same series from the same inputs.
type Smoother struct {
	window int
	buf    []float64
	sum    float64
}

// NewSmoother returns a smoother with the given lookback window. Windows
// below 1 are clamped to 1 (pass-through).
func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{window: window}
}

// Push feeds one raw value and returns the mean of the effective window.
func (s *Smoother) Push(v float64) float64 {
	s.buf = append(s.buf, v)
	s.sum += v
	if len(s.buf) > s.window {
		s.sum -= s.buf[0]
		s.buf = s.buf[1:]
	}
	return s.sum / float64(len(s.buf))
}

// Len reports how many values currently back the mean.
func (s *Smoother) Len() int { return len(s.buf) }

// Reset clears all history.
func (s *Smoother) Reset() {
	s.buf = s.buf[:0]
	s.sum = 0
}

// SmoothAll runs a fresh smoother over a whole series, for callers that
// already hold the full raw history. ToSamples is the record-level variant.
func SmoothAll(window int, raw []float64) []float64 {
	sm := NewSmoother(window)
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = sm.Push(v)
	}
	return out
}
