// Package soft is a software audio processing context. Audio is pulled
// from the destination in render quanta of 128 frames; every node renders
// at most once per quantum no matter how many outputs read it.
package soft

import (
	"context"
	"errors"
	"sync"

	"MTCPlayer/core/audio"
	"MTCPlayer/core/media"

	"github.com/gopxl/beep/v2"
)

// Quantum is the number of frames rendered per processing step.
const Quantum = 128

var (
	ErrInvalidState  = errors.New("soft: invalid state")
	ErrInvalidAccess = errors.New("soft: invalid access")
	ErrNotSupported  = errors.New("soft: not supported")
)

type frame = [2]float64

// claims records which elements already feed a source node, across every
// context of the process.
var claims = struct {
	sync.Mutex
	m map[media.Element]*Context
}{m: make(map[media.Element]*Context)}

// Context implements audio.Context. It starts suspended; a suspended or
// closed context renders silence and its clock stands still.
type Context struct {
	rate float64

	mu      sync.Mutex
	state   audio.State
	quantum uint64 // index of the last rendered quantum, 0 before the first
	frames  uint64
	dest    *destination

	out    [Quantum]frame
	outPos int
}

var _ audio.Context = (*Context)(nil)

// New creates a suspended context rendering at sampleRate.
func New(sampleRate int) *Context {
	c := &Context{rate: float64(sampleRate), state: audio.StateSuspended, outPos: Quantum}
	c.dest = &destination{}
	c.dest.init(c, c.dest)
	return c
}

// Factory adapts New to audio.Factory.
func Factory(sampleRate int) audio.Factory {
	return func() (audio.Context, error) {
		return New(sampleRate), nil
	}
}

func (c *Context) State() audio.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return ErrInvalidState
	}
	c.state = audio.StateRunning
	return nil
}

// Suspend stops the clock; rendering yields silence until Resume.
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return ErrInvalidState
	}
	c.state = audio.StateSuspended
	return nil
}

// CurrentTime is the context clock in seconds of rendered audio.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLocked()
}

func (c *Context) timeLocked() float64 {
	return float64(c.frames) / c.rate
}

func (c *Context) SampleRate() float64 {
	return c.rate
}

func (c *Context) Destination() audio.Node {
	return c.dest
}

// Output is the destination as a beep stream, e.g. for a speaker or an
// offline WAV encoder. It never drains.
func (c *Context) Output() beep.Streamer {
	return streamerFunc(c.stream)
}

// Format describes Output.
func (c *Context) Format() beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(c.rate), NumChannels: 2, Precision: 2}
}

type streamerFunc func([][2]float64) (int, bool)

func (f streamerFunc) Stream(s [][2]float64) (int, bool) { return f(s) }
func (f streamerFunc) Err() error { return nil }

func (c *Context) stream(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := len(samples)
	for len(samples) > 0 {
		if c.outPos >= Quantum {
			c.renderLocked()
			c.outPos = 0
		}
		n := copy(samples, c.out[c.outPos:])
		c.outPos += n
		samples = samples[n:]
	}
	return total, true
}

func (c *Context) renderLocked() {
	if c.state != audio.StateRunning {
		c.out = [Quantum]frame{}
		return
	}
	c.quantum++
	buf, _ := c.dest.pull(c.quantum)
	c.out = *buf
	c.frames += Quantum
}

func (c *Context) CreateMediaElementSource(el media.Element) (audio.Node, error) {
	out, ok := el.(media.Output)
	if !ok {
		return nil, ErrNotSupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return nil, ErrInvalidState
	}

	claims.Lock()
	defer claims.Unlock()
	if _, taken := claims.m[el]; taken {
		return nil, ErrInvalidState
	}
	claims.m[el] = c

	n := newElementSource(out, c.rate)
	n.init(c, n)
	return n, nil
}

// ReleaseElement lets el feed a new source node later.
func (c *Context) ReleaseElement(el media.Element) {
	claims.Lock()
	if claims.m[el] == c {
		delete(claims.m, el)
	}
	claims.Unlock()
}

func (c *Context) CreateBiquadFilter(t audio.FilterType, frequency, gain float64) (audio.Filter, error) {
	switch t {
	case audio.LowShelf, audio.Peaking, audio.HighShelf:
	default:
		return nil, ErrNotSupported
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	f := &biquad{kind: t}
	f.init(c, f)
	f.freq = newParam(c, frequency)
	f.gain = newParam(c, gain)
	return f, nil
}

func (c *Context) CreateConvolver() (audio.Convolver, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	v := &convolver{}
	v.init(c, v)
	return v, nil
}

func (c *Context) CreateGain(value float64) (audio.Gain, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	g := &gainNode{}
	g.init(c, g)
	g.gain = newParam(c, value)
	return g, nil
}

func (c *Context) CreateAnalyser(fftSize int) (audio.Analyser, error) {
	if fftSize < 32 || fftSize > 32768 || fftSize&(fftSize-1) != 0 {
		return nil, ErrNotSupported
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	a := newAnalyser(fftSize)
	a.init(c, a)
	return a, nil
}

func (c *Context) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return ErrInvalidState
	}
	return nil
}

// Close stops rendering for good and releases every element this context
// claimed.
func (c *Context) Close() error {
	c.mu.Lock()
	c.state = audio.StateClosed
	c.mu.Unlock()

	claims.Lock()
	for el, owner := range claims.m {
		if owner == c {
			delete(claims.m, el)
		}
	}
	claims.Unlock()
	return nil
}
