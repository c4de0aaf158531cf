// Package media provides the platform media playback primitive: an element
// that is given a source, loads it, plays/pauses/seeks it and reports
// progress through events.
package media

import (
	"context"

	"github.com/gopxl/beep/v2"
)

// Event names mirror the media element events the transport listens to.
type Event string

const (
	EventTimeUpdate     Event = "timeupdate"
	EventLoadedMetadata Event = "loadedmetadata" // duration became known
	EventEnded          Event = "ended"
	EventError          Event = "error"
	EventVolumeChange   Event = "volumechange"
)

// CrossOrigin is the element's CORS mode. Analysis of remote audio requires
// CrossOriginAnonymous; CrossOriginNone plays anything but is opaque.
type CrossOrigin string

const (
	CrossOriginNone      CrossOrigin = ""
	CrossOriginAnonymous CrossOrigin = "anonymous"
)

// Element is the media playback primitive driven by the transport.
type Element interface {
	SetSource(src string)
	Source() string
	SetCrossOrigin(mode CrossOrigin)
	CrossOrigin() CrossOrigin

	// Load resets the element for the current source; any Play still in
	// flight for the previous source fails with an aborted error.
	Load()
	// Play starts playback, loading the source first when needed.
	Play(ctx context.Context) error
	Pause()
	Paused() bool

	CurrentTime() float64
	SetCurrentTime(t float64)
	Duration() float64
	PlaybackRate() float64
	SetPlaybackRate(r float64)
	Volume() float64
	SetVolume(v float64)

	// On registers a listener and returns a function removing it.
	On(ev Event, fn func()) (off func())
}

// Output is implemented by elements whose decoded audio can be routed into
// an audio processing context.
type Output interface {
	beep.Streamer
	SampleRate() beep.SampleRate
	// Opaque reports whether the current source was loaded without CORS
	// clearance; analysis of opaque audio yields silence.
	Opaque() bool
}
