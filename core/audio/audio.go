// Package audio owns the signal graph between a media element and the
// output device: a 5-band equalizer, a convolution reverb with a dry/wet
// mix, and an analysis tap for the visualizer.
//
// The processing primitives are described by the interfaces below; package
// soft provides a software implementation.
package audio

import (
	"context"

	"MTCPlayer/core/media"
)

// State is the running state of a processing context.
type State string

const (
	StateSuspended State = "suspended"
	StateRunning   State = "running"
	StateClosed    State = "closed"
)

// FilterType selects the biquad response.
type FilterType string

const (
	LowShelf  FilterType = "lowshelf"
	Peaking   FilterType = "peaking"
	HighShelf FilterType = "highshelf"
)

// Node is one processing stage.
type Node interface {
	Connect(dst Node) error
	// Disconnect removes every outgoing connection of the node.
	Disconnect() error
}

// Param is an automatable node parameter.
type Param interface {
	Value() float64
	SetValue(v float64)
	// SetTargetAtTime approaches target exponentially from startTime with
	// the given time constant, in seconds of context time.
	SetTargetAtTime(target, startTime, timeConstant float64)
}

type Filter interface {
	Node
	Type() FilterType
	Frequency() Param
	Gain() Param
}

type Convolver interface {
	Node
	SetBuffer(b *Buffer)
	Buffer() *Buffer
}

type Gain interface {
	Node
	Gain() Param
}

// Analyser is the analysis tap. It passes audio through unchanged.
type Analyser interface {
	Node
	FFTSize() int
	FrequencyBinCount() int
	// ByteFrequencyData fills dst with smoothed magnitudes scaled to 0..255.
	ByteFrequencyData(dst []byte)
	// ByteTimeDomainData fills dst with the waveform, 128 being silence.
	ByteTimeDomainData(dst []byte)
}

// Context is the audio processing context.
type Context interface {
	State() State
	Resume(ctx context.Context) error
	CurrentTime() float64
	SampleRate() float64
	Destination() Node

	// CreateMediaElementSource may succeed at most once per element.
	CreateMediaElementSource(el media.Element) (Node, error)
	CreateBiquadFilter(t FilterType, frequency, gain float64) (Filter, error)
	CreateConvolver() (Convolver, error)
	CreateGain(value float64) (Gain, error)
	CreateAnalyser(fftSize int) (Analyser, error)

	Close() error
}

// Factory creates the processing context on first use.
type Factory func() (Context, error)

// Buffer is a planar sample buffer.
type Buffer struct {
	SampleRate float64
	Channels   [][]float64
}

// Len is the number of frames per channel.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration is the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / b.SampleRate
}
