package soft

import (
	"math"
	"math/cmplx"

	"MTCPlayer/core/audio"
)

// biquad is an RBJ cookbook filter. Shelves use slope 1, peaking uses Q 1.
type biquad struct {
	node
	kind audio.FilterType
	freq *param
	gain *param

	ready              bool
	cf, cg             float64
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

func (f *biquad) Type() audio.FilterType { return f.kind }
func (f *biquad) Frequency() audio.Param { return f.freq }
func (f *biquad) Gain() audio.Param { return f.gain }

func (f *biquad) process(in, out *[Quantum]frame, tainted bool) bool {
	t := f.ctx.timeLocked()
	f.freq.advance(t)
	f.gain.advance(t)
	if !f.ready || f.freq.value != f.cf || f.gain.value != f.cg {
		f.coefficients(f.freq.value, f.gain.value)
	}

	for i := range in {
		for ch := 0; ch < 2; ch++ {
			x := in[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch], f.x1[ch] = f.x1[ch], x
			f.y2[ch], f.y1[ch] = f.y1[ch], y
			out[i][ch] = y
		}
	}
	return tainted
}

func (f *biquad) coefficients(freq, gainDB float64) {
	f.ready, f.cf, f.cg = true, freq, gainDB

	nyquist := f.ctx.rate / 2
	A := math.Pow(10, gainDB/40)
	norm := freq / nyquist

	// beyond nyquist a shelf collapses to a flat gain
	if norm >= 1 {
		f.set(1, 0, 0, 1, 0, 0)
		if f.kind == audio.LowShelf {
			f.set(A*A, 0, 0, 1, 0, 0)
		}
		return
	}
	if norm <= 0 {
		f.set(1, 0, 0, 1, 0, 0)
		if f.kind == audio.HighShelf {
			f.set(A*A, 0, 0, 1, 0, 0)
		}
		return
	}

	w0 := math.Pi * norm
	cosw, sinw := math.Cos(w0), math.Sin(w0)

	switch f.kind {
	case audio.LowShelf:
		alpha := sinw / 2 * math.Sqrt2
		k := 2 * math.Sqrt(A) * alpha
		f.set(
			A*((A+1)-(A-1)*cosw+k),
			2*A*((A-1)-(A+1)*cosw),
			A*((A+1)-(A-1)*cosw-k),
			(A+1)+(A-1)*cosw+k,
			-2*((A-1)+(A+1)*cosw),
			(A+1)+(A-1)*cosw-k,
		)
	case audio.HighShelf:
		alpha := sinw / 2 * math.Sqrt2
		k := 2 * math.Sqrt(A) * alpha
		f.set(
			A*((A+1)+(A-1)*cosw+k),
			-2*A*((A-1)+(A+1)*cosw),
			A*((A+1)+(A-1)*cosw-k),
			(A+1)-(A-1)*cosw+k,
			2*((A-1)-(A+1)*cosw),
			(A+1)-(A-1)*cosw-k,
		)
	default: // peaking, Q = 1
		alpha := sinw / 2
		f.set(1+alpha*A, -2*cosw, 1-alpha*A, 1+alpha/A, -2*cosw, 1-alpha/A)
	}
}

func (f *biquad) set(b0, b1, b2, a0, a1, a2 float64) {
	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = a1/a0, a2/a0
}

// Response returns the filter's magnitude response at freq, using the
// current parameter values.
func (f *biquad) Response(freq float64) float64 {
	f.ctx.mu.Lock()
	defer f.ctx.mu.Unlock()
	if !f.ready || f.freq.value != f.cf || f.gain.value != f.cg {
		f.coefficients(f.freq.value, f.gain.value)
	}
	w := 2 * math.Pi * freq / f.ctx.rate
	z1 := complex(math.Cos(-w), math.Sin(-w))
	z2 := z1 * z1
	num := complex(f.b0, 0) + complex(f.b1, 0)*z1 + complex(f.b2, 0)*z2
	den := 1 + complex(f.a1, 0)*z1 + complex(f.a2, 0)*z2
	return cmplx.Abs(num / den)
}
