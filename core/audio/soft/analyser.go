package soft

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	defaultMinDecibels = -100.0
	defaultMaxDecibels = -30.0
	defaultSmoothing   = 0.8
)

// analyser keeps the last fftSize mono samples of its input and passes the
// input through unchanged. Opaque input is recorded as silence.
type analyser struct {
	node
	size   int
	ring   []float64
	pos    int
	fresh  bool
	window []float64
	smooth []float64
}

func newAnalyser(size int) *analyser {
	a := &analyser{
		size:   size,
		ring:   make([]float64, size),
		window: make([]float64, size),
		smooth: make([]float64, size/2),
	}
	// Blackman
	for i := range a.window {
		x := 2 * math.Pi * float64(i) / float64(size)
		a.window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return a
}

func (a *analyser) FFTSize() int { return a.size }
func (a *analyser) FrequencyBinCount() int { return a.size / 2 }

func (a *analyser) process(in, out *[Quantum]frame, tainted bool) bool {
	*out = *in
	for i := range in {
		v := 0.0
		if !tainted {
			v = (in[i][0] + in[i][1]) / 2
		}
		a.ring[a.pos] = v
		a.pos = (a.pos + 1) % a.size
	}
	a.fresh = true
	return tainted
}

// samples returns the ring in chronological order. Requires ctx.mu.
func (a *analyser) samples() []float64 {
	out := make([]float64, a.size)
	for i := range out {
		out[i] = a.ring[(a.pos+i)%a.size]
	}
	return out
}

func (a *analyser) ByteFrequencyData(dst []byte) {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()

	if a.fresh {
		s := a.samples()
		for i := range s {
			s[i] *= a.window[i]
		}
		spec := fft.FFTReal(s)
		for k := range a.smooth {
			mag := cmplx.Abs(spec[k]) / float64(a.size)
			a.smooth[k] = defaultSmoothing*a.smooth[k] + (1-defaultSmoothing)*mag
		}
		a.fresh = false
	}

	scale := 255 / (defaultMaxDecibels - defaultMinDecibels)
	for k := range dst {
		if k >= len(a.smooth) {
			dst[k] = 0
			continue
		}
		db := 20 * math.Log10(a.smooth[k])
		v := scale * (db - defaultMinDecibels)
		dst[k] = clampByte(v)
	}
}

func (a *analyser) ByteTimeDomainData(dst []byte) {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()

	s := a.samples()
	for i := range dst {
		if i >= len(s) {
			dst[i] = 128
			continue
		}
		dst[i] = clampByte(128 * (1 + s[i]))
	}
}

func clampByte(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}
