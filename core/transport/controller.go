// Package transport is the playback sequencing state machine: what is
// playing, from which position and in what order.
package transport

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"MTCPlayer/core/media"
	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
	"MTCPlayer/model"
)

const (
	// RecentLimit caps the recently played list.
	RecentLimit = 10
	// RestartThreshold is how far into a track Prev restarts it instead of
	// going back, in seconds.
	RestartThreshold = 3.0
)

// Option configures a Controller.
type Option func(*Controller)

// WithAudio makes every transition into playing resume the audio context.
func WithAudio(a AudioResumer) Option {
	return func(c *Controller) { c.audio = a }
}

func WithConnectivity(n Connectivity) Option {
	return func(c *Controller) { c.net = n }
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notify = n }
}

func WithPlayCounter(p PlayCounter) Option {
	return func(c *Controller) { c.counter = p }
}

// WithRand sets the shuffle source.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rand = r }
}

// Controller owns the playback session. The media element is the source of
// truth for the audio position; the controller keeps everything else.
type Controller struct {
	el      media.Element
	lib     Library
	audio   AudioResumer
	net     Connectivity
	notify  Notifier
	counter PlayCounter

	mu       sync.Mutex
	rand     *rand.Rand
	gen      uint64 // bumped by every Play; stale continuations compare against it
	track    *model.MediaItem
	playing  bool
	position float64 // video only
	duration float64
	shuffle  bool
	repeat   model.RepeatMode
	muted    bool
	unmuted  float64
	recent   []*model.MediaItem
	sleep    *time.Timer
	sleepGen uint64
	closed   bool
	offs     []func()

	lmu       sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// New binds a controller to the element and listens for its end-of-media
// and metadata events.
func New(el media.Element, lib Library, opts ...Option) *Controller {
	c := &Controller{
		el:        el,
		lib:       lib,
		notify:    LogNotifier{},
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		repeat:    model.RepeatOff,
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.offs = append(c.offs,
		el.On(media.EventEnded, func() { go c.onEnded() }),
		el.On(media.EventLoadedMetadata, c.onMetadata),
	)
	return c
}

func (c *Controller) onEnded() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.Next(context.Background(), true); err != nil {
		logger.Warn("auto advance failed", logger.ErrorField(err))
	}
}

func (c *Controller) onMetadata() {
	d := c.el.Duration()
	c.mu.Lock()
	if c.track != nil && !c.track.IsVideo() {
		c.duration = d
	}
	c.mu.Unlock()
}

// Play makes track the current one and starts it. The most recent call
// wins: a load superseded by a later Play returns nil without touching the
// session.
func (c *Controller) Play(ctx context.Context, track *model.MediaItem) error {
	if track == nil {
		return playerr.Validation("play", "no track")
	}
	online := c.net == nil || c.net.Online()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.track = track
	c.pushRecentLocked(track)
	c.position = 0
	c.duration = track.Duration
	c.playing = track.IsVideo()
	c.mu.Unlock()

	c.el.Pause()
	c.emit(Event{Type: EventTrackChange, Track: track, Playing: track.IsVideo()})

	if track.IsVideo() {
		// the video surface renders it; the audio element stays idle
		c.emit(Event{Type: EventPlay, Track: track, Playing: true})
		return nil
	}

	if !online && !track.IsLocal() {
		c.notify.Notify(LevelError, "Offline: Cannot play remote track.")
		c.emitStopped(gen, track)
		return playerr.Connectivity("play", "offline: cannot play remote track "+track.ID)
	}

	err := c.load(ctx, track, media.CrossOriginAnonymous)
	fallback := false
	if errors.Is(err, playerr.ErrPlaybackSource) && c.current(gen) {
		logger.Warn("playback source rejected, retrying without cors",
			logger.String("trackId", track.ID), logger.ErrorField(err))
		fallback = true
		err = c.load(ctx, track, media.CrossOriginNone)
	}
	return c.finishPlay(ctx, gen, track, err, fallback)
}

func (c *Controller) load(ctx context.Context, track *model.MediaItem, mode media.CrossOrigin) error {
	c.el.Pause()
	c.el.SetCrossOrigin(mode)
	c.el.SetSource(track.MediaURL)
	c.el.Load()
	return c.el.Play(ctx)
}

// finishPlay applies the outcome of an element Play started under gen.
func (c *Controller) finishPlay(ctx context.Context, gen uint64, track *model.MediaItem, err error, fallback bool) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.playing = false
		c.mu.Unlock()
		c.emit(Event{Type: EventPause, Track: track, Position: c.el.CurrentTime()})
		if playerr.IsAborted(err) {
			return nil
		}
		logger.Error("play track failed", logger.String("trackId", track.ID), logger.ErrorField(err))
		c.notify.Notify(LevelError, "Error: "+userMessage(err))
		return err
	}
	c.playing = true
	c.mu.Unlock()

	if fallback {
		c.notify.Notify(LevelInfo, "Playing (visualizer disabled due to source restrictions)")
	}
	c.resumeAudio(ctx)
	c.emit(Event{Type: EventPlay, Track: track, Position: c.el.CurrentTime(), Playing: true})
	return nil
}

// emitStopped reports a Play that never reached playing, unless a later
// Play already took over.
func (c *Controller) emitStopped(gen uint64, track *model.MediaItem) {
	if !c.current(gen) {
		return
	}
	c.emit(Event{Type: EventPause, Track: track})
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) resumeAudio(ctx context.Context) {
	if c.audio == nil {
		return
	}
	if err := c.audio.ResumeIfSuspended(ctx); err != nil {
		logger.Warn("resume audio context failed", logger.ErrorField(err))
	}
}

// Next moves to the following track. auto is true when the current track
// ended by itself.
func (c *Controller) Next(ctx context.Context, auto bool) error {
	c.mu.Lock()
	cur, repeat, shuffle := c.track, c.repeat, c.shuffle
	c.mu.Unlock()
	if cur == nil {
		return nil
	}

	if auto {
		c.countPlay(ctx, cur)
		if repeat == model.RepeatOne {
			return c.restart(ctx, cur)
		}
	}

	list := c.activeList()
	if len(list) == 0 {
		return nil
	}
	idx := indexOf(list, cur.ID)

	if shuffle {
		c.mu.Lock()
		n := c.rand.Intn(len(list))
		c.mu.Unlock()
		if len(list) > 1 && n == idx {
			n = (n + 1) % len(list)
		}
		return c.Play(ctx, list[n])
	}
	if idx == -1 {
		return c.Play(ctx, list[0])
	}
	if idx+1 < len(list) {
		return c.Play(ctx, list[idx+1])
	}

	// end of list
	if repeat == model.RepeatAll {
		return c.Play(ctx, list[0])
	}
	c.stop(cur)
	if !auto {
		return c.Play(ctx, list[0])
	}
	return nil
}

// Prev restarts the current track when it has played for more than
// RestartThreshold, otherwise moves to the previous track circularly.
func (c *Controller) Prev(ctx context.Context) error {
	cur := c.Current()
	if cur == nil {
		return nil
	}
	if c.Position() > RestartThreshold {
		if cur.IsVideo() {
			return c.Play(ctx, cur)
		}
		c.el.SetCurrentTime(0)
		c.emit(Event{Type: EventSeek, Track: cur, Position: 0, Playing: c.IsPlaying()})
		return nil
	}

	list := c.activeList()
	n := len(list)
	if n == 0 {
		return nil
	}
	idx := indexOf(list, cur.ID)
	return c.Play(ctx, list[((idx-1)%n+n)%n])
}

// Seek moves to t seconds, clamped to [0, duration].
func (c *Controller) Seek(t float64) {
	cur := c.Current()
	if cur == nil {
		return
	}
	t = clampPosition(t, c.Duration())
	if cur.IsVideo() {
		c.mu.Lock()
		c.position = t
		c.mu.Unlock()
	} else {
		c.el.SetCurrentTime(t)
	}
	c.emit(Event{Type: EventSeek, Track: cur, Position: t, Playing: c.IsPlaying()})
}

func (c *Controller) restart(ctx context.Context, cur *model.MediaItem) error {
	if cur.IsVideo() {
		return c.Play(ctx, cur)
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.el.SetCurrentTime(0)
	return c.finishPlay(ctx, gen, cur, c.el.Play(ctx), false)
}

func (c *Controller) stop(cur *model.MediaItem) {
	if !cur.IsVideo() {
		c.el.Pause()
	}
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
	c.emit(Event{Type: EventPause, Track: cur, Position: c.Position()})
}

func (c *Controller) countPlay(ctx context.Context, cur *model.MediaItem) {
	if c.counter == nil {
		return
	}
	updated, err := c.counter.IncrementPlayCount(ctx, cur.ID, time.Now())
	if err != nil {
		logger.Warn("increment play count failed", logger.String("trackId", cur.ID), logger.ErrorField(err))
		return
	}
	if u, ok := c.lib.(libraryUpdater); ok && updated != nil {
		u.Put(updated)
	}
}

func (c *Controller) activeList() []*model.MediaItem {
	if l := c.lib.Filtered(); len(l) > 0 {
		return l
	}
	return c.lib.All()
}

func (c *Controller) pushRecentLocked(t *model.MediaItem) {
	out := make([]*model.MediaItem, 0, RecentLimit)
	out = append(out, t)
	for _, r := range c.recent {
		if len(out) == RecentLimit {
			break
		}
		if r.ID != t.ID {
			out = append(out, r)
		}
	}
	c.recent = out
}

func indexOf(list []*model.MediaItem, id string) int {
	for i, m := range list {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func clampPosition(t, duration float64) float64 {
	if t < 0 {
		return 0
	}
	if duration > 0 && t > duration {
		return duration
	}
	return t
}

func userMessage(err error) string {
	var pe *playerr.Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	if err == nil {
		return "Failed to load media"
	}
	return err.Error()
}
