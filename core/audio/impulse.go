package audio

import (
	"math"
	"math/rand"
)

// ImpulseResponse synthesizes a stereo reverb tail: decaying noise of
// duration seconds whose envelope is (1 - i/len)^decay.
func ImpulseResponse(r *rand.Rand, sampleRate, duration, decay float64) *Buffer {
	n := int(sampleRate * duration)
	if n < 1 {
		n = 1
	}
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float64, 2)}
	for c := range b.Channels {
		ch := make([]float64, n)
		for i := range ch {
			env := math.Pow(1-float64(i)/float64(n), decay)
			ch[i] = (r.Float64()*2 - 1) * env
		}
		b.Channels[c] = ch
	}
	return b
}
