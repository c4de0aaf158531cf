package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"MTCPlayer/core/media"
	"MTCPlayer/core/playerr"
	"MTCPlayer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loadCall struct {
	src   string
	cross media.CrossOrigin
}

// fakeElement is a media element without audio. Play succeeds unless fail
// says otherwise; a Play for the slow source blocks until release.
type fakeElement struct {
	media.Element

	mu        sync.Mutex
	src       string
	cross     media.CrossOrigin
	paused    bool
	pos       float64
	dur       float64
	rate      float64
	volume    float64
	gen       int
	loads     []loadCall
	fail      func(src string, cross media.CrossOrigin) error
	slow      string
	entered   chan struct{}
	release   chan struct{}
	listeners map[media.Event][]func()
}

func newFakeElement() *fakeElement {
	return &fakeElement{
		paused:    true,
		dur:       10,
		rate:      1,
		volume:    1,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
		listeners: make(map[media.Event][]func()),
	}
}

func (f *fakeElement) SetSource(src string) {
	f.mu.Lock()
	f.src = src
	f.mu.Unlock()
}

func (f *fakeElement) SetCrossOrigin(mode media.CrossOrigin) {
	f.mu.Lock()
	f.cross = mode
	f.mu.Unlock()
}

func (f *fakeElement) Load() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.pos = 0
	f.paused = true
	f.loads = append(f.loads, loadCall{f.src, f.cross})
}

func (f *fakeElement) Play(ctx context.Context) error {
	f.mu.Lock()
	src, cross, gen, fail := f.src, f.cross, f.gen, f.fail
	f.mu.Unlock()

	if fail != nil {
		if err := fail(src, cross); err != nil {
			return err
		}
	}
	if src != "" && src == f.slow {
		close(f.entered)
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return playerr.Aborted("play", nil)
	}
	f.paused = false
	return nil
}

func (f *fakeElement) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

func (f *fakeElement) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeElement) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeElement) SetCurrentTime(t float64) {
	f.mu.Lock()
	f.pos = t
	f.mu.Unlock()
}

func (f *fakeElement) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dur
}

func (f *fakeElement) PlaybackRate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeElement) SetPlaybackRate(r float64) {
	f.mu.Lock()
	f.rate = r
	f.mu.Unlock()
}

func (f *fakeElement) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeElement) SetVolume(v float64) {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
}

func (f *fakeElement) On(ev media.Event, fn func()) func() {
	f.mu.Lock()
	f.listeners[ev] = append(f.listeners[ev], fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.listeners[ev] = nil
		f.mu.Unlock()
	}
}

func (f *fakeElement) fire(ev media.Event) {
	f.mu.Lock()
	fns := append([]func(){}, f.listeners[ev]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeElement) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

type fakeLibrary struct {
	mu       sync.Mutex
	filtered []*model.MediaItem
	all      []*model.MediaItem
	puts     []*model.MediaItem
}

func (l *fakeLibrary) Filtered() []*model.MediaItem { return l.filtered }
func (l *fakeLibrary) All() []*model.MediaItem { return l.all }

func (l *fakeLibrary) ByID(id string) (*model.MediaItem, bool) {
	for _, m := range l.all {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

func (l *fakeLibrary) Put(m *model.MediaItem) {
	l.mu.Lock()
	l.puts = append(l.puts, m)
	l.mu.Unlock()
}

type note struct {
	level Level
	msg   string
}

type recorder struct {
	mu    sync.Mutex
	notes []note
}

func (r *recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	r.notes = append(r.notes, note{level, msg})
	r.mu.Unlock()
}

func (r *recorder) count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notes {
		if x.level == level {
			n++
		}
	}
	return n
}

type countingResumer struct {
	mu sync.Mutex
	n  int
}

func (r *countingResumer) ResumeIfSuspended(context.Context) error {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
	return nil
}

type countingPlays struct {
	mu  sync.Mutex
	ids []string
}

func (p *countingPlays) IncrementPlayCount(_ context.Context, id string, at time.Time) (*model.MediaItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return &model.MediaItem{ID: id, PlayCount: len(p.ids), LastPlayed: at.UnixMilli()}, nil
}

func (p *countingPlays) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func tracks(n int) []*model.MediaItem {
	out := make([]*model.MediaItem, n)
	for i := range out {
		out[i] = &model.MediaItem{
			ID:       fmt.Sprintf("t%d", i),
			Title:    fmt.Sprintf("Track %d", i),
			MediaURL: fmt.Sprintf("https://cdn.example.com/t%d.mp3", i),
			Type:     model.MediaTypeMusic,
		}
	}
	return out
}

type harness struct {
	c     *Controller
	el    *fakeElement
	lib   *fakeLibrary
	notes *recorder
	audio *countingResumer
	plays *countingPlays
	ctx   context.Context
}

func newHarness(t *testing.T, n int, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		el:    newFakeElement(),
		lib:   &fakeLibrary{all: tracks(n)},
		notes: &recorder{},
		audio: &countingResumer{},
		plays: &countingPlays{},
		ctx:   context.Background(),
	}
	opts = append([]Option{
		WithNotifier(h.notes),
		WithAudio(h.audio),
		WithPlayCounter(h.plays),
		WithRand(rand.New(rand.NewSource(7))),
	}, opts...)
	h.c = New(h.el, h.lib, opts...)
	t.Cleanup(func() { h.c.Close() })
	return h
}

func (h *harness) play(t *testing.T, i int) {
	t.Helper()
	require.NoError(t, h.c.Play(h.ctx, h.lib.all[i]))
}

func (h *harness) index() int {
	return indexOf(h.lib.all, h.c.Current().ID)
}

func TestPlayLoadsWithCrossOriginAndPlays(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 1)

	assert.True(t, h.c.IsPlaying())
	assert.False(t, h.el.Paused())
	require.Equal(t, 1, h.el.loadCount())
	assert.Equal(t, loadCall{h.lib.all[1].MediaURL, media.CrossOriginAnonymous}, h.el.loads[0])
	assert.Equal(t, 1, h.audio.n, "entering playing resumes the audio context")
}

func TestSeekSetsPosition(t *testing.T) {
	h := newHarness(t, 1)
	h.play(t, 0)

	for _, pos := range []float64{0, 2.5, 7, 10} {
		h.c.Seek(pos)
		assert.Equal(t, pos, h.c.Position())
	}
	h.c.Seek(-3)
	assert.Equal(t, 0.0, h.c.Position())
	h.c.Seek(99)
	assert.Equal(t, 10.0, h.c.Position())

	h.c.Seek(4)
	h.c.SeekBy(SeekStep)
	assert.Equal(t, 9.0, h.c.Position())
}

func TestShuffleNextNeverRepeatsCurrent(t *testing.T) {
	h := newHarness(t, 4)
	h.play(t, 2)
	h.c.SetShuffle(true)

	for i := 0; i < 200; i++ {
		before := h.index()
		require.NoError(t, h.c.Next(h.ctx, false))
		assert.NotEqual(t, before, h.index())
	}
}

func TestShuffleSingleTrackReplaysIt(t *testing.T) {
	h := newHarness(t, 1)
	h.play(t, 0)
	h.c.SetShuffle(true)
	require.NoError(t, h.c.Next(h.ctx, false))
	assert.Equal(t, "t0", h.c.Current().ID)
}

func TestPrevRestartsAfterThreeSeconds(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 1)
	h.c.Seek(4)
	loads := h.el.loadCount()

	require.NoError(t, h.c.Prev(h.ctx))
	assert.Equal(t, "t1", h.c.Current().ID)
	assert.Equal(t, 0.0, h.c.Position())
	assert.Equal(t, loads, h.el.loadCount(), "restart must not reload")
}

func TestPrevWrapsWithinThreeSeconds(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 0)
	h.c.Seek(2)

	require.NoError(t, h.c.Prev(h.ctx))
	assert.Equal(t, "t2", h.c.Current().ID)
}

func TestRepeatOneAutoReplaysSameTrack(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 1)
	h.c.SetRepeat(model.RepeatOne)
	h.c.Seek(9)
	loads := h.el.loadCount()

	require.NoError(t, h.c.Next(h.ctx, true))
	assert.Equal(t, "t1", h.c.Current().ID)
	assert.Equal(t, 0.0, h.c.Position())
	assert.True(t, h.c.IsPlaying())
	assert.Equal(t, loads, h.el.loadCount())
	assert.Equal(t, []string{"t1"}, h.plays.calls())

	// manual next ignores repeat-one
	require.NoError(t, h.c.Next(h.ctx, false))
	assert.Equal(t, "t2", h.c.Current().ID)
}

func TestEndOfListAutoWithRepeatOffStops(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 2)

	require.NoError(t, h.c.Next(h.ctx, true))
	assert.Equal(t, "t2", h.c.Current().ID)
	assert.False(t, h.c.IsPlaying())
	assert.True(t, h.el.Paused())
}

func TestEndOfListAutoWithRepeatAllWraps(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 2)
	h.c.SetRepeat(model.RepeatAll)

	require.NoError(t, h.c.Next(h.ctx, true))
	assert.Equal(t, "t0", h.c.Current().ID)
	assert.True(t, h.c.IsPlaying())
}

func TestEndOfListManualNextWraps(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 2)

	require.NoError(t, h.c.Next(h.ctx, false))
	assert.Equal(t, "t0", h.c.Current().ID)
	assert.True(t, h.c.IsPlaying())
	assert.Empty(t, h.plays.calls(), "manual next is not a finished play")
}

func TestNextUsesFilteredList(t *testing.T) {
	h := newHarness(t, 4)
	h.lib.filtered = []*model.MediaItem{h.lib.all[3], h.lib.all[1]}
	h.play(t, 3)

	require.NoError(t, h.c.Next(h.ctx, false))
	assert.Equal(t, "t1", h.c.Current().ID)

	// a current track outside the list starts the list from the top
	h.play(t, 0)
	require.NoError(t, h.c.Next(h.ctx, false))
	assert.Equal(t, "t3", h.c.Current().ID)
}

func TestRecentlyPlayedDedupAndCap(t *testing.T) {
	h := newHarness(t, 12)
	h.play(t, 0)
	h.play(t, 1)
	h.play(t, 0)

	ids := func() []string {
		var out []string
		for _, m := range h.c.Recent() {
			out = append(out, m.ID)
		}
		return out
	}
	assert.Equal(t, []string{"t0", "t1"}, ids())

	for i := 0; i < 12; i++ {
		h.play(t, i)
	}
	got := ids()
	assert.Len(t, got, RecentLimit)
	assert.Equal(t, "t11", got[0])
	assert.Equal(t, "t2", got[RecentLimit-1])
}

func TestVideoSkipsAudioElement(t *testing.T) {
	h := newHarness(t, 0)
	video := &model.MediaItem{ID: "v1", MediaURL: "https://cdn.example.com/v1.mp4", Type: model.MediaTypeVideo, Duration: 120}

	require.NoError(t, h.c.Play(h.ctx, video))
	assert.Zero(t, h.el.loadCount())
	assert.True(t, h.c.IsPlaying())
	assert.Equal(t, 0.0, h.c.Position())
	assert.Equal(t, 120.0, h.c.Duration())

	h.c.Seek(30)
	assert.Equal(t, 30.0, h.c.Position())
	assert.Equal(t, 0.0, h.el.CurrentTime())

	h.c.Pause()
	assert.False(t, h.c.IsPlaying())
	require.NoError(t, h.c.Resume(h.ctx))
	assert.True(t, h.c.IsPlaying())
}

func TestOfflineRemoteTrackFailsBeforeLoad(t *testing.T) {
	h := newHarness(t, 1, WithConnectivity(ConnectivityFunc(func() bool { return false })))

	err := h.c.Play(h.ctx, h.lib.all[0])
	require.Error(t, err)
	assert.Equal(t, playerr.KindConnectivity, playerr.KindOf(err))
	assert.Zero(t, h.el.loadCount())
	assert.False(t, h.c.IsPlaying())
	assert.Equal(t, 1, h.notes.count(LevelError))

	local := &model.MediaItem{ID: "local-abc", MediaURL: "file:///music/a.mp3", Type: model.MediaTypeMusic}
	require.NoError(t, h.c.Play(h.ctx, local))
	assert.True(t, h.c.IsPlaying())
}

func TestSourceRejectionRetriesWithoutCrossOrigin(t *testing.T) {
	h := newHarness(t, 1)
	h.el.fail = func(_ string, cross media.CrossOrigin) error {
		if cross == media.CrossOriginAnonymous {
			return playerr.PlaybackSource("fetch", "blocked by CORS policy", nil)
		}
		return nil
	}

	h.play(t, 0)
	assert.True(t, h.c.IsPlaying())
	require.Equal(t, 2, h.el.loadCount())
	assert.Equal(t, media.CrossOriginNone, h.el.loads[1].cross)
	assert.Equal(t, 1, h.notes.count(LevelInfo))
	assert.Contains(t, h.notes.notes[0].msg, "visualizer disabled")
	assert.Zero(t, h.notes.count(LevelError))
}

func TestSecondSourceFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, 1)
	h.el.fail = func(string, media.CrossOrigin) error {
		return playerr.PlaybackSource("decode", "unsupported media format", nil)
	}

	err := h.c.Play(h.ctx, h.lib.all[0])
	assert.Equal(t, playerr.KindPlaybackSource, playerr.KindOf(err))
	assert.Equal(t, 2, h.el.loadCount(), "exactly one retry")
	assert.False(t, h.c.IsPlaying())
	assert.Equal(t, 1, h.notes.count(LevelError))
}

type eventLog struct {
	mu  sync.Mutex
	evs []Event
}

func recordEvents(c *Controller) *eventLog {
	l := &eventLog{}
	c.OnEvent(func(ev Event) {
		l.mu.Lock()
		l.evs = append(l.evs, ev)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evs[len(l.evs)-1]
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.evs))
	for _, ev := range l.evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestFailedPlayNeverLeavesListenersPlaying(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		h := newHarness(t, 1, WithConnectivity(ConnectivityFunc(func() bool { return false })))
		log := recordEvents(h.c)

		require.Error(t, h.c.Play(h.ctx, h.lib.all[0]))
		assert.Equal(t, []EventType{EventTrackChange, EventPause}, log.types())
		assert.False(t, log.evs[0].Playing)
		assert.False(t, log.last().Playing)
		assert.False(t, h.c.IsPlaying())
	})

	t.Run("source rejected twice", func(t *testing.T) {
		h := newHarness(t, 1)
		h.el.fail = func(string, media.CrossOrigin) error {
			return playerr.PlaybackSource("decode", "unsupported media format", nil)
		}
		log := recordEvents(h.c)

		require.Error(t, h.c.Play(h.ctx, h.lib.all[0]))
		assert.Equal(t, []EventType{EventTrackChange, EventPause}, log.types())
		assert.False(t, log.last().Playing)
		assert.Equal(t, "t0", log.last().Track.ID)
	})

	t.Run("success", func(t *testing.T) {
		h := newHarness(t, 1)
		log := recordEvents(h.c)

		h.play(t, 0)
		assert.Equal(t, []EventType{EventTrackChange, EventPlay}, log.types())
		assert.True(t, log.last().Playing)
	})
}

func TestSupersededPlayIsSwallowed(t *testing.T) {
	h := newHarness(t, 2)
	h.el.slow = h.lib.all[0].MediaURL

	errc := make(chan error, 1)
	go func() { errc <- h.c.Play(h.ctx, h.lib.all[0]) }()
	<-h.el.entered

	h.play(t, 1)
	close(h.el.release)

	assert.NoError(t, <-errc)
	assert.Equal(t, "t1", h.c.Current().ID)
	assert.True(t, h.c.IsPlaying())
	assert.Zero(t, h.notes.count(LevelError))
}

func TestEndedEventAutoAdvances(t *testing.T) {
	h := newHarness(t, 3)
	h.play(t, 0)

	h.el.fire(media.EventEnded)
	assert.Eventually(t, func() bool { return h.c.Current().ID == "t1" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"t0"}, h.plays.calls())
	assert.Eventually(t, func() bool {
		h.lib.mu.Lock()
		defer h.lib.mu.Unlock()
		return len(h.lib.puts) == 1 && h.lib.puts[0].PlayCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMetadataUpdatesDuration(t *testing.T) {
	h := newHarness(t, 1)
	h.play(t, 0)
	h.el.mu.Lock()
	h.el.dur = 42
	h.el.mu.Unlock()
	h.el.fire(media.EventLoadedMetadata)
	assert.Equal(t, 42.0, h.c.Snapshot().Duration)
}

func TestTogglePlay(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.c.TogglePlay(h.ctx), "no track is a no-op")
	assert.False(t, h.c.IsPlaying())

	h.play(t, 0)
	require.NoError(t, h.c.TogglePlay(h.ctx))
	assert.False(t, h.c.IsPlaying())
	assert.True(t, h.el.Paused())
	require.NoError(t, h.c.TogglePlay(h.ctx))
	assert.True(t, h.c.IsPlaying())
	assert.False(t, h.el.Paused())
}

func TestVolumeAndMute(t *testing.T) {
	h := newHarness(t, 1)
	h.c.SetVolume(0.8)
	assert.True(t, h.c.ToggleMute())
	assert.Equal(t, 0.0, h.c.Volume())
	assert.False(t, h.c.ToggleMute())
	assert.Equal(t, 0.8, h.c.Volume())

	h.c.SetVolume(3)
	assert.Equal(t, 1.0, h.c.Volume())
}

func TestCyclePlaybackRate(t *testing.T) {
	h := newHarness(t, 1)
	var got []float64
	for i := 0; i < 5; i++ {
		got = append(got, h.c.CyclePlaybackRate())
	}
	assert.Equal(t, []float64{1.25, 1.5, 2, 0.5, 1}, got)
}

func TestCycleRepeatAndShuffle(t *testing.T) {
	h := newHarness(t, 1)
	assert.Equal(t, model.RepeatAll, h.c.CycleRepeat())
	assert.Equal(t, model.RepeatOne, h.c.CycleRepeat())
	assert.Equal(t, model.RepeatOff, h.c.CycleRepeat())
	assert.True(t, h.c.ToggleShuffle())
	assert.False(t, h.c.ToggleShuffle())
}

func TestShuffleAll(t *testing.T) {
	h := newHarness(t, 5)
	require.NoError(t, h.c.ShuffleAll(h.ctx))
	assert.True(t, h.c.Snapshot().Shuffle)
	assert.True(t, h.c.IsPlaying())
	assert.NotNil(t, h.c.Current())
}

func TestPlayByID(t *testing.T) {
	h := newHarness(t, 3)
	err := h.c.PlayByID(h.ctx, "nope", 0)
	assert.Equal(t, playerr.KindValidation, playerr.KindOf(err))

	require.NoError(t, h.c.PlayByID(h.ctx, "t2", 4))
	assert.Equal(t, "t2", h.c.Current().ID)
	assert.Equal(t, 4.0, h.c.Position())

	loads := h.el.loadCount()
	require.NoError(t, h.c.PlayByID(h.ctx, "t2", 6))
	assert.Equal(t, loads, h.el.loadCount(), "current track is only re-seeked")
	assert.Equal(t, 6.0, h.c.Position())
}

func TestEventsReachListeners(t *testing.T) {
	h := newHarness(t, 2)
	var mu sync.Mutex
	var got []EventType
	off := h.c.OnEvent(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})

	h.play(t, 0)
	h.c.Seek(3)
	h.c.Pause()
	off()
	h.c.Seek(1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventTrackChange, EventPlay, EventSeek, EventPause}, got)
}

func TestSleepTimerPausesPlayback(t *testing.T) {
	h := newHarness(t, 1)
	h.play(t, 0)

	h.c.SetSleepTimer(20 * time.Millisecond)
	assert.True(t, h.c.SleepTimerActive())
	assert.Eventually(t, func() bool { return !h.c.IsPlaying() }, time.Second, 5*time.Millisecond)
	assert.False(t, h.c.SleepTimerActive())
	assert.True(t, h.el.Paused())
}

func TestSleepTimerClearedByCloseAndZero(t *testing.T) {
	h := newHarness(t, 1)
	h.play(t, 0)

	h.c.SetSleepTimer(20 * time.Millisecond)
	h.c.SetSleepTimer(0)
	assert.False(t, h.c.SleepTimerActive())

	h.c.SetSleepTimer(20 * time.Millisecond)
	require.NoError(t, h.c.Close())
	time.Sleep(60 * time.Millisecond)
	assert.True(t, h.c.IsPlaying())
}
