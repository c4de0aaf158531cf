package party

import (
	"context"
	"encoding/json"
	"math"

	"MTCPlayer/core/playerr"
	"MTCPlayer/core/transport"
	"MTCPlayer/logger"
	"MTCPlayer/model"
)

// DriftThreshold is how far, in seconds, a follower may be from the host
// position before a play event re-seeks it. A gap of 0.6 s still only
// resumes.
const DriftThreshold = 0.75

// Player is the transport surface a follower drives.
// transport.Controller implements it.
type Player interface {
	IsPlaying() bool
	Position() float64
	Current() *model.MediaItem
	Pause()
	Resume(ctx context.Context) error
	Seek(t float64)
	PlayByID(ctx context.Context, id string, at float64) error
}

// Follower mirrors host events onto the local player.
type Follower struct {
	player Player
}

func NewFollower(p Player) *Follower {
	return &Follower{player: p}
}

// Apply reconciles one host event. A malformed event is a desync error; the
// caller logs it and waits for the next event to self-correct.
func (f *Follower) Apply(ctx context.Context, ev model.PartyEvent) error {
	switch ev.Type {
	case model.PartyPlay:
		var p model.PositionPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if f.player.IsPlaying() {
			return nil
		}
		f.snapIfDrifted(p.Time)
		return f.player.Resume(ctx)

	case model.PartyPause:
		if f.player.IsPlaying() {
			f.player.Pause()
		}
		return nil

	case model.PartySeek:
		var p model.PositionPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		f.player.Seek(p.Time)
		return nil

	case model.PartyTrackChange:
		var p model.TrackPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if p.TrackID == "" {
			return playerr.New(playerr.KindDesync, "apply track_change", "missing track id", nil)
		}
		return f.player.PlayByID(ctx, p.TrackID, p.Time)

	case model.PartySyncResponse:
		var p model.TrackPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return f.reconcile(ctx, p)

	case model.PartySyncRequest:
		return nil
	}
	return playerr.New(playerr.KindDesync, "apply", "unknown event type "+string(ev.Type), nil)
}

func (f *Follower) reconcile(ctx context.Context, p model.TrackPayload) error {
	if p.TrackID == "" {
		// host has nothing loaded
		if f.player.IsPlaying() {
			f.player.Pause()
		}
		return nil
	}
	if cur := f.player.Current(); cur == nil || cur.ID != p.TrackID {
		if err := f.player.PlayByID(ctx, p.TrackID, p.Time); err != nil {
			return err
		}
	} else {
		f.snapIfDrifted(p.Time)
	}

	switch playing := f.player.IsPlaying(); {
	case p.IsPlaying && !playing:
		return f.player.Resume(ctx)
	case !p.IsPlaying && playing:
		f.player.Pause()
	}
	return nil
}

func (f *Follower) snapIfDrifted(host float64) {
	if math.Abs(f.player.Position()-host) > DriftThreshold {
		f.player.Seek(host)
	}
}

// Bind applies every event the session receives while it is a follower,
// and asks the host for its state. Desyncs are logged and dropped.
func (f *Follower) Bind(ctx context.Context, s *Session) (off func(), err error) {
	off = s.OnEvent(func(ev model.PartyEvent) {
		if st, ok := s.State(); !ok || st.IsHost {
			return
		}
		if err := f.Apply(ctx, ev); err != nil {
			logger.Warn("party follower apply failed",
				logger.String("type", string(ev.Type)),
				logger.String("sender", ev.SenderID),
				logger.ErrorField(err))
		}
	})
	if st, ok := s.State(); !ok || st.IsHost {
		return off, nil
	}
	if err := s.Broadcast(ctx, model.PartySyncRequest, nil); err != nil {
		return off, err
	}
	return off, nil
}

func decode(ev model.PartyEvent, v any) error {
	if len(ev.Payload) == 0 {
		return playerr.New(playerr.KindDesync, "apply "+string(ev.Type), "missing payload", nil)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return playerr.New(playerr.KindDesync, "apply "+string(ev.Type), "malformed payload", err)
	}
	return nil
}

// Source is what the host bridge reads from. transport.Controller
// implements it.
type Source interface {
	OnEvent(fn func(transport.Event)) (off func())
	Snapshot() model.PlaybackSnapshot
}

// HostBridge publishes local transport events to the party while the
// session is the host, and answers sync requests.
type HostBridge struct {
	src     Source
	session *Session
}

func NewHostBridge(src Source, s *Session) *HostBridge {
	return &HostBridge{src: src, session: s}
}

// Start subscribes to both sides; off undoes it.
func (h *HostBridge) Start(ctx context.Context) (off func()) {
	offEvents := h.src.OnEvent(func(ev transport.Event) {
		if !h.hosting() {
			return
		}
		if err := h.publish(ctx, ev); err != nil {
			logger.Warn("party broadcast failed", logger.String("type", string(ev.Type)), logger.ErrorField(err))
		}
	})
	offRequests := h.session.OnEvent(func(ev model.PartyEvent) {
		if ev.Type != model.PartySyncRequest || !h.hosting() {
			return
		}
		if err := h.session.Broadcast(ctx, model.PartySyncResponse, snapshotPayload(h.src.Snapshot())); err != nil {
			logger.Warn("party sync response failed", logger.String("to", ev.SenderID), logger.ErrorField(err))
		}
	})
	return func() {
		offEvents()
		offRequests()
	}
}

func (h *HostBridge) hosting() bool {
	st, ok := h.session.State()
	return ok && st.IsHost
}

func (h *HostBridge) publish(ctx context.Context, ev transport.Event) error {
	switch ev.Type {
	case transport.EventPlay:
		return h.session.Broadcast(ctx, model.PartyPlay, model.PositionPayload{Time: ev.Position})
	case transport.EventPause:
		return h.session.Broadcast(ctx, model.PartyPause, model.PositionPayload{Time: ev.Position})
	case transport.EventSeek:
		return h.session.Broadcast(ctx, model.PartySeek, model.PositionPayload{Time: ev.Position})
	case transport.EventTrackChange:
		if ev.Track == nil {
			return nil
		}
		return h.session.Broadcast(ctx, model.PartyTrackChange, model.TrackPayload{
			TrackID:   ev.Track.ID,
			Title:     ev.Track.Title,
			Artist:    ev.Track.Artist,
			Time:      ev.Position,
			IsPlaying: ev.Playing,
		})
	}
	return nil
}

func snapshotPayload(s model.PlaybackSnapshot) model.TrackPayload {
	p := model.TrackPayload{Time: s.Position, IsPlaying: s.IsPlaying}
	if s.Track != nil {
		p.TrackID = s.Track.ID
		p.Title = s.Track.Title
		p.Artist = s.Track.Artist
	}
	return p
}
