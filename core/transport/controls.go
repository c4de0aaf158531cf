package transport

import (
	"context"
	"math"
	"time"

	"MTCPlayer/core/playerr"
	"MTCPlayer/model"
)

// SeekStep is the keyboard nudge in seconds.
const SeekStep = 5.0

var playbackRates = []float64{1, 1.25, 1.5, 2, 0.5}

func (c *Controller) Current() *model.MediaItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track
}

func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position is the playback position in seconds.
func (c *Controller) Position() float64 {
	c.mu.Lock()
	video, pos := c.track.IsVideo(), c.position
	c.mu.Unlock()
	if video {
		return pos
	}
	return c.el.CurrentTime()
}

// Duration is the element's duration once known, the metadata value before.
func (c *Controller) Duration() float64 {
	c.mu.Lock()
	video, d := c.track.IsVideo(), c.duration
	c.mu.Unlock()
	if !video {
		if ed := c.el.Duration(); ed > 0 {
			d = ed
		}
	}
	return d
}

// Recent returns the recently played tracks, most recent first.
func (c *Controller) Recent() []*model.MediaItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.MediaItem(nil), c.recent...)
}

func (c *Controller) Snapshot() model.PlaybackSnapshot {
	c.mu.Lock()
	s := model.PlaybackSnapshot{
		Track:     c.track,
		IsPlaying: c.playing,
		Shuffle:   c.shuffle,
		Repeat:    c.repeat,
	}
	c.mu.Unlock()
	s.Position = c.Position()
	s.Duration = c.Duration()
	s.Volume = c.el.Volume()
	s.PlaybackRate = c.el.PlaybackRate()
	return s
}

func (c *Controller) Pause() {
	c.mu.Lock()
	cur, was := c.track, c.playing
	c.playing = false
	c.mu.Unlock()
	if cur == nil {
		return
	}
	if !cur.IsVideo() {
		c.el.Pause()
	}
	if was {
		c.emit(Event{Type: EventPause, Track: cur, Position: c.Position()})
	}
}

// Resume continues the current track.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	cur, gen := c.track, c.gen
	if cur != nil && cur.IsVideo() {
		c.playing = true
	}
	c.mu.Unlock()
	if cur == nil {
		return nil
	}
	if cur.IsVideo() {
		c.emit(Event{Type: EventPlay, Track: cur, Position: c.Position(), Playing: true})
		return nil
	}
	return c.finishPlay(ctx, gen, cur, c.el.Play(ctx), false)
}

func (c *Controller) TogglePlay(ctx context.Context) error {
	if c.IsPlaying() {
		c.Pause()
		return nil
	}
	return c.Resume(ctx)
}

// SeekBy moves relative to the current position.
func (c *Controller) SeekBy(delta float64) {
	c.Seek(c.Position() + delta)
}

// PlayByID plays the library track id from at seconds. The current track
// is only re-seeked.
func (c *Controller) PlayByID(ctx context.Context, id string, at float64) error {
	item, ok := c.lib.ByID(id)
	if !ok {
		return playerr.Validation("play by id", "unknown track "+id)
	}
	if cur := c.Current(); cur == nil || cur.ID != id {
		if err := c.Play(ctx, item); err != nil {
			return err
		}
	}
	if cur := c.Current(); cur != nil && cur.ID == id && at > 0 {
		c.Seek(at)
	}
	return nil
}

// ShuffleAll turns shuffle on and plays a random track of the whole library.
func (c *Controller) ShuffleAll(ctx context.Context) error {
	list := c.lib.All()
	if len(list) == 0 {
		return nil
	}
	c.mu.Lock()
	c.shuffle = true
	n := c.rand.Intn(len(list))
	c.mu.Unlock()
	return c.Play(ctx, list[n])
}

func (c *Controller) Volume() float64 {
	return c.el.Volume()
}

// SetVolume sets the element volume, clamped to [0,1], and unmutes.
func (c *Controller) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	c.mu.Lock()
	c.muted = false
	c.mu.Unlock()
	c.el.SetVolume(v)
}

// ToggleMute mutes or restores the volume from before muting. It returns
// the new muted state.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	if c.muted {
		c.muted = false
		v := c.unmuted
		c.mu.Unlock()
		c.el.SetVolume(v)
		return false
	}
	c.mu.Unlock()

	v := c.el.Volume()
	c.mu.Lock()
	c.muted, c.unmuted = true, v
	c.mu.Unlock()
	c.el.SetVolume(0)
	return true
}

// CyclePlaybackRate steps 1 -> 1.25 -> 1.5 -> 2 -> 0.5 -> 1.
func (c *Controller) CyclePlaybackRate() float64 {
	cur := c.el.PlaybackRate()
	next := playbackRates[0]
	for i, r := range playbackRates {
		if math.Abs(r-cur) < 1e-9 {
			next = playbackRates[(i+1)%len(playbackRates)]
			break
		}
	}
	c.el.SetPlaybackRate(next)
	return next
}

func (c *Controller) SetShuffle(on bool) {
	c.mu.Lock()
	c.shuffle = on
	c.mu.Unlock()
}

func (c *Controller) ToggleShuffle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuffle = !c.shuffle
	return c.shuffle
}

func (c *Controller) SetRepeat(m model.RepeatMode) {
	c.mu.Lock()
	c.repeat = m
	c.mu.Unlock()
}

// CycleRepeat steps OFF -> ALL -> ONE -> OFF.
func (c *Controller) CycleRepeat() model.RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = c.repeat.Next()
	return c.repeat
}

// SetSleepTimer pauses playback after d. Zero or negative clears the timer.
func (c *Controller) SetSleepTimer(d time.Duration) {
	c.mu.Lock()
	if c.sleep != nil {
		c.sleep.Stop()
		c.sleep = nil
	}
	c.sleepGen++
	gen := c.sleepGen
	if d <= 0 {
		c.mu.Unlock()
		c.notify.Notify(LevelInfo, "Sleep timer disabled")
		return
	}
	c.sleep = time.AfterFunc(d, func() { c.sleepExpired(gen) })
	c.mu.Unlock()
}

func (c *Controller) SleepTimerActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleep != nil
}

func (c *Controller) sleepExpired(gen uint64) {
	c.mu.Lock()
	if gen != c.sleepGen || c.closed {
		c.mu.Unlock()
		return
	}
	c.sleep = nil
	c.mu.Unlock()

	c.Pause()
	c.notify.Notify(LevelInfo, "Sleep timer ended.")
}

// OnEvent registers a transport listener. Listeners run on the goroutine
// that caused the transition, outside the controller lock.
func (c *Controller) OnEvent(fn func(Event)) (off func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Controller) emit(ev Event) {
	c.lmu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Close clears the sleep timer and stops listening to the element.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.sleep != nil {
		c.sleep.Stop()
		c.sleep = nil
	}
	c.sleepGen++
	offs := c.offs
	c.offs = nil
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
	return nil
}
