// Package player assembles the playback stack without a device: software
// audio context, media element, signal graph and transport over a library.
// The context output is pulled in real time so positions advance as they
// would on a speaker.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MTCPlayer/core/audio"
	"MTCPlayer/core/audio/soft"
	"MTCPlayer/core/library"
	"MTCPlayer/core/media"
	"MTCPlayer/core/transport"
	"MTCPlayer/core/visual"
	"MTCPlayer/logger"
	"MTCPlayer/model"

	"github.com/gopxl/beep/v2"
)

const pumpInterval = 20 * time.Millisecond

type options struct {
	transport []transport.Option
	notify    transport.Notifier
	smartEQ   bool
	viz       *visual.Renderer
	vizMode   visual.Mode
}

// Option configures a Headless player.
type Option func(*options)

// WithTransport passes options through to the transport controller.
func WithTransport(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// WithNotifier receives the transport's and Smart EQ's notifications.
func WithNotifier(n transport.Notifier) Option {
	return func(o *options) { o.notify = n }
}

// WithSmartEQ starts with Smart EQ on.
func WithSmartEQ() Option {
	return func(o *options) { o.smartEQ = true }
}

// WithVisualizer draws the analyser tap into r while playback is active.
func WithVisualizer(r *visual.Renderer, mode visual.Mode) Option {
	return func(o *options) {
		o.viz = r
		o.vizMode = mode
	}
}

// Headless is a player whose output is discarded.
type Headless struct {
	Library   *library.Library
	Transport *transport.Controller

	ac     *soft.Context
	engine *audio.Engine
	graph  *audio.Graph
	el     *media.Player
	rate   int
	notify transport.Notifier
	viz    *visual.Renderer
	off    func()

	mu     sync.Mutex
	eq     model.EqSettings
	reverb model.ReverbSettings
}

// New builds the stack at sampleRate.
func New(sampleRate int, lib *library.Library, opts ...Option) (*Headless, error) {
	o := options{notify: transport.LogNotifier{}, vizMode: visual.ModeBars}
	for _, opt := range opts {
		opt(&o)
	}

	ac := soft.New(sampleRate)
	engine := audio.NewEngine(func() (audio.Context, error) { return ac, nil })
	el := media.NewPlayer(beep.SampleRate(sampleRate))

	eq := model.DefaultEqSettings()
	eq.Auto = o.smartEQ
	reverb := model.DefaultReverbSettings()

	graph := audio.NewGraph(engine)
	tap, err := graph.Attach(el, eq.Gains, reverb)
	if err != nil {
		el.Close()
		engine.Close()
		return nil, err
	}

	topts := append([]transport.Option{transport.WithAudio(engine), transport.WithNotifier(o.notify)}, o.transport...)
	h := &Headless{
		Library:   lib,
		Transport: transport.New(el, lib, topts...),
		ac:        ac,
		engine:    engine,
		graph:     graph,
		el:        el,
		rate:      sampleRate,
		notify:    o.notify,
		viz:       o.viz,
		eq:        eq,
		reverb:    reverb,
	}
	if h.viz != nil && tap != nil {
		h.viz.Start(tap, o.vizMode)
	}
	h.off = h.Transport.OnEvent(h.onTransport)
	return h, nil
}

func (h *Headless) onTransport(ev transport.Event) {
	switch ev.Type {
	case transport.EventTrackChange:
		h.applySmartEQ(ev.Track)
		h.setVisualPlaying(ev.Playing)
	case transport.EventPlay:
		h.setVisualPlaying(true)
	case transport.EventPause:
		h.setVisualPlaying(false)
	}
}

func (h *Headless) setVisualPlaying(playing bool) {
	if h.viz != nil {
		h.viz.SetPlaying(playing)
	}
}

// applySmartEQ switches to the preset the track's labels call for. Nothing
// happens when Smart EQ is off or the preset is already active.
func (h *Headless) applySmartEQ(track *model.MediaItem) {
	if track == nil {
		return
	}
	h.mu.Lock()
	if !h.eq.Auto {
		h.mu.Unlock()
		return
	}
	preset := model.AutoPreset(track.Labels())
	if preset == h.eq.Preset {
		h.mu.Unlock()
		return
	}
	if err := h.eq.ApplyPreset(preset); err != nil {
		h.mu.Unlock()
		logger.Warn("smart eq failed", logger.String("preset", string(preset)), logger.ErrorField(err))
		return
	}
	h.graph.UpdateEq(h.eq.Gains)
	h.mu.Unlock()

	logger.Debug("smart eq applied", logger.String("preset", string(preset)), logger.String("trackId", track.ID))
	h.notify.Notify(transport.LevelSuccess, fmt.Sprintf("Smart EQ: Applied %s for %s", preset, track.Artist))
}

// SetSmartEQ turns Smart EQ on or off. Turning it on applies the preset of
// the current track right away.
func (h *Headless) SetSmartEQ(on bool) {
	h.mu.Lock()
	h.eq.Auto = on
	h.mu.Unlock()
	if on {
		h.applySmartEQ(h.Transport.Current())
	}
}

// SetEqualizer applies eq and reverb to the running graph. The Auto flag of
// eq is kept as given.
func (h *Headless) SetEqualizer(eq model.EqSettings, reverb model.ReverbSettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eq = eq
	h.reverb = reverb.Normalize()
	h.graph.UpdateEq(eq.Gains)
	h.graph.UpdateReverb(h.reverb)
}

// Equalizer returns the settings last applied.
func (h *Headless) Equalizer() (model.EqSettings, model.ReverbSettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eq, h.reverb
}

// Run pulls the audio output at the sample rate until ctx is done.
func (h *Headless) Run(ctx context.Context) {
	out := h.ac.Output()
	buf := make([][2]float64, h.rate*int(pumpInterval/time.Millisecond)/1000)
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	logger.Debug("headless output started", logger.Int("sampleRate", h.rate))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out.Stream(buf)
		}
	}
}

func (h *Headless) Close() error {
	h.off()
	err := h.Transport.Close()
	if h.viz != nil {
		h.viz.Stop()
	}
	h.engine.Release(h.el)
	h.el.Close()
	if cerr := h.engine.Close(); err == nil {
		err = cerr
	}
	return err
}
