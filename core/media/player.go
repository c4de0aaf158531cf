package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"

	"github.com/gopxl/beep/v2"
)

const (
	resampleQuality = 4
	timeUpdateEvery = 250 * time.Millisecond
)

var errClosed = errors.New("media element closed")

var (
	_ Element = (*Player)(nil)
	_ Output  = (*Player)(nil)
)

// Player is the software media element. Decoding is delegated to the beep
// decoders through an Opener; the decoded audio is pulled by whatever
// consumes the Player as a beep.Streamer (an audio context source node or
// a speaker).
type Player struct {
	open    Opener
	outRate beep.SampleRate

	mu          sync.Mutex
	src         string
	crossOrigin CrossOrigin
	gen         uint64 // bumped by SetSource/Load, invalidates in-flight Play calls
	cur         *Source
	curGen      uint64
	resampler   *beep.Resampler
	paused      bool
	ended       bool
	pendingSeek float64
	volume      float64
	rate        float64
	sinceUpdate int
	closed      bool

	lmu       sync.Mutex
	listeners map[Event]map[int]func()
	nextID    int

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithOpener replaces the default file/http opener.
func WithOpener(o Opener) PlayerOption {
	return func(p *Player) { p.open = o }
}

// NewPlayer creates a paused element rendering at sampleRate.
func NewPlayer(sampleRate beep.SampleRate, opts ...PlayerOption) *Player {
	p := &Player{
		open:      HTTPOpener(nil, "null"),
		outRate:   sampleRate,
		paused:    true,
		volume:    1,
		rate:      1,
		listeners: make(map[Event]map[int]func()),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.dispatch()
	return p
}

func (p *Player) SetSource(src string) {
	p.mu.Lock()
	p.src = src
	p.gen++
	p.mu.Unlock()
}

func (p *Player) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

func (p *Player) SetCrossOrigin(mode CrossOrigin) {
	p.mu.Lock()
	p.crossOrigin = mode
	p.mu.Unlock()
}

func (p *Player) CrossOrigin() CrossOrigin {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crossOrigin
}

// Load drops the decoded source and resets position and duration.
func (p *Player) Load() {
	p.mu.Lock()
	p.gen++
	p.releaseLocked()
	p.paused = true
	p.pendingSeek = 0
	p.mu.Unlock()
}

// Play opens the current source if it is not loaded yet, then resumes. A
// Load or SetSource issued while the source is being opened makes this call
// fail with an aborted error.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errClosed
	}
	gen, src, mode := p.gen, p.src, p.crossOrigin
	if p.cur != nil && p.curGen == gen {
		p.resumeLocked()
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if src == "" {
		return playerr.PlaybackSource("play", "no media source", nil)
	}

	s, err := p.open(ctx, src, mode)

	p.mu.Lock()
	if p.closed || gen != p.gen || ctx.Err() != nil {
		p.mu.Unlock()
		if s != nil {
			s.Stream.Close()
		}
		return playerr.Aborted("play", ctx.Err())
	}
	if err != nil {
		p.paused = true
		p.mu.Unlock()
		p.emit(EventError)
		return err
	}
	if p.cur != nil && p.curGen == gen {
		// a concurrent Play for the same load won
		p.resumeLocked()
		p.mu.Unlock()
		s.Stream.Close()
		return nil
	}
	p.installLocked(s, gen)
	p.resumeLocked()
	p.mu.Unlock()

	p.emit(EventLoadedMetadata)
	return nil
}

func (p *Player) installLocked(s *Source, gen uint64) {
	p.cur, p.curGen = s, gen
	p.ended = false
	p.sinceUpdate = 0
	if p.pendingSeek > 0 {
		p.seekLocked(p.pendingSeek)
		p.pendingSeek = 0
		return
	}
	p.resampler = beep.ResampleRatio(resampleQuality, p.ratioLocked(), s.Stream)
}

func (p *Player) resumeLocked() {
	if p.ended {
		p.seekLocked(0)
		p.ended = false
	}
	p.paused = false
}

func (p *Player) releaseLocked() {
	if p.cur != nil {
		if err := p.cur.Stream.Close(); err != nil {
			logger.Debug("closing media stream", logger.ErrorField(err))
		}
	}
	p.cur = nil
	p.resampler = nil
	p.ended = false
}

func (p *Player) ratioLocked() float64 {
	if p.cur == nil {
		return p.rate
	}
	return float64(p.cur.Format.SampleRate) / float64(p.outRate) * p.rate
}

func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// CurrentTime is the decoder position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return p.pendingSeek
	}
	return float64(p.cur.Stream.Position()) / float64(p.cur.Format.SampleRate)
}

// SetCurrentTime seeks. Before the source is loaded the position is
// remembered and applied once it is.
func (p *Player) SetCurrentTime(t float64) {
	if t < 0 {
		t = 0
	}
	p.mu.Lock()
	if p.cur == nil {
		p.pendingSeek = t
		p.mu.Unlock()
		return
	}
	p.seekLocked(t)
	p.ended = false
	p.mu.Unlock()
	p.emit(EventTimeUpdate)
}

func (p *Player) seekLocked(t float64) {
	n := int(t * float64(p.cur.Format.SampleRate))
	if end := p.cur.Stream.Len(); n > end {
		n = end
	}
	if err := p.cur.Stream.Seek(n); err != nil {
		logger.Warn("media seek failed", logger.Float64("time", t), logger.ErrorField(err))
	}
	// a fresh resampler drops samples buffered from the old position
	p.resampler = beep.ResampleRatio(resampleQuality, p.ratioLocked(), p.cur.Stream)
}

// Duration is 0 until a source has been opened.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0
	}
	return float64(p.cur.Stream.Len()) / float64(p.cur.Format.SampleRate)
}

func (p *Player) PlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *Player) SetPlaybackRate(r float64) {
	if r <= 0 {
		return
	}
	p.mu.Lock()
	p.rate = r
	if p.resampler != nil {
		p.resampler.SetRatio(p.ratioLocked())
	}
	p.mu.Unlock()
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.emit(EventVolumeChange)
}

// SampleRate is the rate Stream renders at.
func (p *Player) SampleRate() beep.SampleRate {
	return p.outRate
}

// Opaque reports whether the loaded source lacks CORS clearance.
func (p *Player) Opaque() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil && p.cur.Opaque
}

// Stream renders the element output. It never drains: a paused, ended or
// empty element produces silence.
func (p *Player) Stream(samples [][2]float64) (int, bool) {
	var fire []Event

	p.mu.Lock()
	if p.paused || p.resampler == nil || p.closed {
		p.mu.Unlock()
		silence(samples)
		return len(samples), true
	}

	n, ok := p.resampler.Stream(samples)
	for i := 0; i < n; i++ {
		samples[i][0] *= p.volume
		samples[i][1] *= p.volume
	}
	silence(samples[n:])

	p.sinceUpdate += n
	if p.sinceUpdate >= p.outRate.N(timeUpdateEvery) {
		p.sinceUpdate = 0
		fire = append(fire, EventTimeUpdate)
	}
	if !ok {
		p.paused = true
		p.ended = true
		fire = append(fire, EventTimeUpdate, EventEnded)
	}
	p.mu.Unlock()

	for _, ev := range fire {
		p.emit(ev)
	}
	return len(samples), true
}

func (p *Player) Err() error {
	return nil
}

func silence(samples [][2]float64) {
	for i := range samples {
		samples[i] = [2]float64{}
	}
}

// On registers fn for ev. Listeners run on the element's event goroutine,
// in emission order, never under the element's lock.
func (p *Player) On(ev Event, fn func()) func() {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	id := p.nextID
	p.nextID++
	if p.listeners[ev] == nil {
		p.listeners[ev] = make(map[int]func())
	}
	p.listeners[ev][id] = fn
	return func() {
		p.lmu.Lock()
		delete(p.listeners[ev], id)
		p.lmu.Unlock()
	}
}

func (p *Player) emit(ev Event) {
	if ev == EventTimeUpdate {
		select {
		case p.events <- ev:
		case <-p.done:
		default: // progress ticks may be dropped under load
		}
		return
	}
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Player) dispatch() {
	for {
		select {
		case ev := <-p.events:
			p.lmu.Lock()
			fns := make([]func(), 0, len(p.listeners[ev]))
			for _, fn := range p.listeners[ev] {
				fns = append(fns, fn)
			}
			p.lmu.Unlock()
			for _, fn := range fns {
				fn()
			}
		case <-p.done:
			return
		}
	}
}

// Close releases the decoded source and stops event delivery.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.gen++
		p.releaseLocked()
		p.mu.Unlock()
		close(p.done)
	})
	return nil
}
