package party

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"MTCPlayer/core/playerr"
	"MTCPlayer/core/transport"
	"MTCPlayer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu      sync.Mutex
	track   *model.MediaItem
	playing bool
	pos     float64
	seeks   []float64
	resumes int
	pauses  int
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) Current() *model.MediaItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.pauses++
	p.mu.Unlock()
}

func (p *fakePlayer) Resume(ctx context.Context) error {
	p.mu.Lock()
	p.playing = true
	p.resumes++
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Seek(t float64) {
	p.mu.Lock()
	p.pos = t
	p.seeks = append(p.seeks, t)
	p.mu.Unlock()
}

func (p *fakePlayer) PlayByID(ctx context.Context, id string, at float64) error {
	p.mu.Lock()
	p.track = &model.MediaItem{ID: id}
	p.playing = true
	p.pos = at
	p.mu.Unlock()
	return nil
}

func event(t *testing.T, typ model.PartyEventType, payload any) model.PartyEvent {
	t.Helper()
	ev := model.PartyEvent{Type: typ, SenderID: "user-host"}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		ev.Payload = raw
	}
	return ev
}

func TestFollowerSeekSnapsUnconditionally(t *testing.T) {
	p := &fakePlayer{pos: 3}
	f := NewFollower(p)
	require.NoError(t, f.Apply(context.Background(), event(t, model.PartySeek, model.PositionPayload{Time: 42})))
	assert.Equal(t, 42.0, p.Position())
}

func TestFollowerPlayWithinThresholdOnlyResumes(t *testing.T) {
	p := &fakePlayer{pos: 10.6}
	f := NewFollower(p)
	require.NoError(t, f.Apply(context.Background(), event(t, model.PartyPlay, model.PositionPayload{Time: 10})))
	assert.Empty(t, p.seeks)
	assert.Equal(t, 10.6, p.Position())
	assert.True(t, p.IsPlaying())
}

func TestFollowerPlayBeyondThresholdResyncs(t *testing.T) {
	for _, pos := range []float64{10 + DriftThreshold + 0.05, 10 - DriftThreshold - 0.05, 12} {
		p := &fakePlayer{pos: pos}
		f := NewFollower(p)
		require.NoError(t, f.Apply(context.Background(), event(t, model.PartyPlay, model.PositionPayload{Time: 10})))
		assert.Equal(t, []float64{10}, p.seeks, "from %.2f", pos)
		assert.True(t, p.IsPlaying())
	}
}

func TestFollowerPlayWhilePlayingIsNoop(t *testing.T) {
	p := &fakePlayer{pos: 50, playing: true}
	f := NewFollower(p)
	require.NoError(t, f.Apply(context.Background(), event(t, model.PartyPlay, model.PositionPayload{Time: 10})))
	assert.Empty(t, p.seeks)
	assert.Zero(t, p.resumes)
}

func TestFollowerPause(t *testing.T) {
	p := &fakePlayer{playing: true}
	f := NewFollower(p)
	require.NoError(t, f.Apply(context.Background(), event(t, model.PartyPause, model.PositionPayload{Time: 1})))
	assert.False(t, p.IsPlaying())

	require.NoError(t, f.Apply(context.Background(), event(t, model.PartyPause, nil)))
	assert.Equal(t, 1, p.pauses, "already paused")
}

func TestFollowerTrackChange(t *testing.T) {
	p := &fakePlayer{}
	f := NewFollower(p)
	require.NoError(t, f.Apply(context.Background(), event(t, model.PartyTrackChange, model.TrackPayload{TrackID: "t3", Time: 7})))
	require.NotNil(t, p.Current())
	assert.Equal(t, "t3", p.Current().ID)
	assert.Equal(t, 7.0, p.Position())
}

func TestFollowerSyncResponse(t *testing.T) {
	ctx := context.Background()

	p := &fakePlayer{track: &model.MediaItem{ID: "t1"}, pos: 20.2}
	f := NewFollower(p)
	require.NoError(t, f.Apply(ctx, event(t, model.PartySyncResponse, model.TrackPayload{TrackID: "t1", Time: 20, IsPlaying: true})))
	assert.Empty(t, p.seeks)
	assert.True(t, p.IsPlaying())

	require.NoError(t, f.Apply(ctx, event(t, model.PartySyncResponse, model.TrackPayload{TrackID: "t1", Time: 30, IsPlaying: false})))
	assert.Equal(t, []float64{30}, p.seeks)
	assert.False(t, p.IsPlaying())

	require.NoError(t, f.Apply(ctx, event(t, model.PartySyncResponse, model.TrackPayload{TrackID: "t2", Time: 5, IsPlaying: false})))
	assert.Equal(t, "t2", p.Current().ID)
	assert.Equal(t, 5.0, p.Position())
	assert.False(t, p.IsPlaying())
}

func TestFollowerDesyncErrors(t *testing.T) {
	f := NewFollower(&fakePlayer{})
	ctx := context.Background()

	err := f.Apply(ctx, model.PartyEvent{Type: model.PartySeek, Payload: []byte(`{"time":"x"}`)})
	assert.ErrorIs(t, err, playerr.ErrDesync)

	err = f.Apply(ctx, model.PartyEvent{Type: model.PartyPlay})
	assert.ErrorIs(t, err, playerr.ErrDesync)

	err = f.Apply(ctx, event(t, model.PartyTrackChange, model.TrackPayload{}))
	assert.ErrorIs(t, err, playerr.ErrDesync)

	err = f.Apply(ctx, model.PartyEvent{Type: "rewind"})
	assert.Equal(t, playerr.KindDesync, playerr.KindOf(err))

	assert.NoError(t, f.Apply(ctx, model.PartyEvent{Type: model.PartySyncRequest}))
}

type fakeSource struct {
	mu   sync.Mutex
	fns  map[int]func(transport.Event)
	next int
	snap model.PlaybackSnapshot
}

func newFakeSource() *fakeSource {
	return &fakeSource{fns: make(map[int]func(transport.Event))}
}

func (s *fakeSource) OnEvent(fn func(transport.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *fakeSource) Snapshot() model.PlaybackSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSource) emit(ev transport.Event) {
	s.mu.Lock()
	fns := make([]func(transport.Event), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func TestHostBridgeDrivesFollower(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	hostSession, guestSession := NewSession(relay), NewSession(relay)
	require.NoError(t, hostSession.CreateSession(ctx, "room", true, "Ana"))

	src := newFakeSource()
	src.snap = model.PlaybackSnapshot{Track: &model.MediaItem{ID: "t1"}, Position: 12, IsPlaying: true}
	off := NewHostBridge(src, hostSession).Start(ctx)
	defer off()

	require.NoError(t, guestSession.CreateSession(ctx, "room", false, "Bo"))
	p := &fakePlayer{}
	offFollower, err := NewFollower(p).Bind(ctx, guestSession)
	require.NoError(t, err)
	defer offFollower()

	// the sync request is answered with the host snapshot
	require.Eventually(t, func() bool {
		cur := p.Current()
		return cur != nil && cur.ID == "t1" && p.IsPlaying()
	}, wait, 5*time.Millisecond)
	assert.Equal(t, 12.0, p.Position())

	src.emit(transport.Event{Type: transport.EventSeek, Position: 42, Playing: true})
	require.Eventually(t, func() bool { return p.Position() == 42 }, wait, 5*time.Millisecond)

	src.emit(transport.Event{Type: transport.EventPause, Position: 42})
	require.Eventually(t, func() bool { return !p.IsPlaying() }, wait, 5*time.Millisecond)

	src.emit(transport.Event{Type: transport.EventTrackChange, Track: &model.MediaItem{ID: "t2"}, Playing: true})
	require.Eventually(t, func() bool {
		cur := p.Current()
		return cur != nil && cur.ID == "t2"
	}, wait, 5*time.Millisecond)
}

func TestHostBridgeSilentWhenFollower(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	host, guest := NewSession(relay), NewSession(relay)
	require.NoError(t, host.CreateSession(ctx, "room", true, "Ana"))
	require.NoError(t, guest.CreateSession(ctx, "room", false, "Bo"))

	var atHost eventLog
	host.OnEvent(atHost.add)

	src := newFakeSource()
	off := NewHostBridge(src, guest).Start(ctx)
	defer off()
	src.emit(transport.Event{Type: transport.EventPlay, Position: 1})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, atHost.all())
}

func TestSnapshotPayload(t *testing.T) {
	p := snapshotPayload(model.PlaybackSnapshot{})
	assert.Empty(t, p.TrackID)

	p = snapshotPayload(model.PlaybackSnapshot{Track: &model.MediaItem{ID: "a", Title: "T", Artist: "X"}, Position: 3, IsPlaying: true})
	assert.Equal(t, model.TrackPayload{TrackID: "a", Title: "T", Artist: "X", Time: 3, IsPlaying: true}, p)
}
