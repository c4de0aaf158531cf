package soft

import (
	"math"
	"math/cmplx"

	"MTCPlayer/core/audio"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// impulse responses are normalized to the loudness of the dry signal
	gainCalibration           = 0.00125 // -58 dB
	gainCalibrationSampleRate = 44100.0
	minPower                  = 0.000125
)

// convolver is a uniformly partitioned overlap-save convolution: the
// impulse response is cut into Quantum-sized partitions whose spectra are
// multiplied with a delay line of input block spectra.
type convolver struct {
	node
	buf *audio.Buffer

	parts [2][][]complex128 // per channel, per partition, 2*Quantum bins
	fdl   [2][][]complex128 // input spectra, newest at head
	head  int
	prev  [2][Quantum]float64
}

func (v *convolver) Buffer() *audio.Buffer {
	v.ctx.mu.Lock()
	defer v.ctx.mu.Unlock()
	return v.buf
}

// SetBuffer loads a new impulse response. A mono response is used for both
// channels. nil silences the node.
func (v *convolver) SetBuffer(b *audio.Buffer) {
	v.ctx.mu.Lock()
	defer v.ctx.mu.Unlock()

	v.buf = b
	v.parts = [2][][]complex128{}
	v.fdl = [2][][]complex128{}
	v.prev = [2][Quantum]float64{}
	v.head = 0
	if b.Len() == 0 {
		v.buf = nil
		return
	}

	scale := normalization(b)
	parts := (b.Len() + Quantum - 1) / Quantum
	for ch := 0; ch < 2; ch++ {
		ir := b.Channels[0]
		if ch < len(b.Channels) {
			ir = b.Channels[ch]
		}
		v.parts[ch] = make([][]complex128, parts)
		for p := 0; p < parts; p++ {
			block := make([]float64, 2*Quantum)
			for i := 0; i < Quantum && p*Quantum+i < len(ir); i++ {
				block[i] = ir[p*Quantum+i] * scale
			}
			v.parts[ch][p] = fft.FFTReal(block)
		}
		v.fdl[ch] = make([][]complex128, parts)
	}
}

func normalization(b *audio.Buffer) float64 {
	power := 0.0
	for _, ch := range b.Channels {
		for _, s := range ch {
			power += s * s
		}
	}
	power = math.Sqrt(power / float64(len(b.Channels)*b.Len()))
	if math.IsNaN(power) || math.IsInf(power, 0) || power < minPower {
		power = minPower
	}
	scale := gainCalibration / power
	if b.SampleRate > 0 {
		scale *= gainCalibrationSampleRate / b.SampleRate
	}
	return scale
}

func (v *convolver) process(in, out *[Quantum]frame, tainted bool) bool {
	if v.buf == nil {
		*out = [Quantum]frame{}
		return tainted
	}

	parts := len(v.parts[0])
	v.head = (v.head - 1 + parts) % parts
	const n = 2 * Quantum

	for ch := 0; ch < 2; ch++ {
		block := make([]float64, n)
		copy(block, v.prev[ch][:])
		for i := 0; i < Quantum; i++ {
			block[Quantum+i] = in[i][ch]
			v.prev[ch][i] = in[i][ch]
		}
		v.fdl[ch][v.head] = fft.FFTReal(block)

		acc := make([]complex128, n)
		for p := 0; p < parts; p++ {
			x := v.fdl[ch][(v.head+p)%parts]
			if x == nil {
				continue
			}
			h := v.parts[ch][p]
			// real signals: bins above nyquist mirror the lower half
			for k := 0; k <= Quantum; k++ {
				acc[k] += x[k] * h[k]
			}
		}
		for k := Quantum + 1; k < n; k++ {
			acc[k] = cmplx.Conj(acc[n-k])
		}

		y := fft.IFFT(acc)
		for i := 0; i < Quantum; i++ {
			out[i][ch] = real(y[Quantum+i])
		}
	}
	return tainted
}
