package party

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
	"MTCPlayer/model"

	"github.com/google/uuid"
)

// EventName is the broadcast event all player actions travel under.
const EventName = "player_action"

// Session is the local end of a party: INACTIVE until CreateSession,
// ACTIVE until LeaveSession.
type Session struct {
	rt     Realtime
	peerID string
	now    func() time.Time

	mu        sync.Mutex
	gen       uint64 // bumped on every create/leave; the read loop compares against it
	ch        Channel
	active    bool
	state     model.PartyState
	presences map[string]model.Presence

	lmu      sync.Mutex
	eventFns map[int]func(model.PartyEvent)
	stateFns map[int]func(model.PartyState)
	nextID   int
}

func NewSession(rt Realtime) *Session {
	return &Session{
		rt:       rt,
		peerID:   "user-" + uuid.NewString(),
		now:      time.Now,
		eventFns: make(map[int]func(model.PartyEvent)),
		stateFns: make(map[int]func(model.PartyState)),
	}
}

// GenerateRoomID derives a host room id from the user name.
func GenerateRoomID(userName string) string {
	name := strings.ToLower(strings.Join(strings.Fields(userName), ""))
	if name == "" {
		name = "party"
	}
	return fmt.Sprintf("%s-%d", name, rand.Intn(1000))
}

func (s *Session) PeerID() string {
	return s.peerID
}

// CreateSession joins roomID, leaving any previous session first.
func (s *Session) CreateSession(ctx context.Context, roomID string, isHost bool, userName string) error {
	if roomID == "" {
		return playerr.Validation("create session", "room id is required")
	}
	s.LeaveSession()

	ch, err := s.rt.Join(ctx, roomID, s.peerID)
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}

	state := model.PartyState{RoomID: roomID, IsHost: isHost, UserCount: 1}
	if isHost {
		state.HostName = userName
	}
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.ch = ch
	s.active = true
	s.state = state
	s.presences = make(map[string]model.Presence)
	s.mu.Unlock()

	go s.run(gen, ch)

	err = ch.Track(ctx, model.Presence{
		PeerID:   s.peerID,
		UserName: userName,
		IsHost:   isHost,
		OnlineAt: s.now().UnixMilli(),
	})
	if err != nil {
		s.LeaveSession()
		return fmt.Errorf("track presence: %w", err)
	}

	logger.Info("party session started",
		logger.String("room", roomID),
		logger.String("peer", s.peerID),
		logger.Bool("host", isHost))
	s.emitState(state)
	return nil
}

// LeaveSession unsubscribes and resets the state. It is a no-op when
// inactive.
func (s *Session) LeaveSession() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.gen++
	ch, room := s.ch, s.state.RoomID
	s.ch = nil
	s.active = false
	s.state = model.PartyState{}
	s.presences = nil
	s.mu.Unlock()

	if err := ch.Close(); err != nil {
		logger.Warn("close party channel failed", logger.String("room", room), logger.ErrorField(err))
	}
	logger.Info("party session left", logger.String("room", room))
	s.emitState(model.PartyState{})
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns the current party state; ok is false when inactive.
func (s *Session) State() (model.PartyState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.active
}

// Broadcast sends a player action to the other peers. Followers may only
// send sync requests; anything else from them, or from an inactive session,
// is silently dropped.
func (s *Session) Broadcast(ctx context.Context, typ model.PartyEventType, payload any) error {
	s.mu.Lock()
	ch, active, host := s.ch, s.active, s.state.IsHost
	s.mu.Unlock()
	if !active || (!host && typ.Mutating()) {
		return nil
	}

	ev := model.PartyEvent{
		Type:      typ,
		Timestamp: s.now().UnixMilli(),
		SenderID:  s.peerID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return playerr.New(playerr.KindValidation, "broadcast", "payload is not serializable", err)
		}
		ev.Payload = raw
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return playerr.New(playerr.KindValidation, "broadcast", "event is not serializable", err)
	}
	return ch.Send(ctx, EventName, data)
}

// OnEvent registers a listener for player actions from other peers.
// Listeners run on the session's read goroutine.
func (s *Session) OnEvent(fn func(model.PartyEvent)) (off func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.eventFns[id] = fn
	return func() {
		s.lmu.Lock()
		delete(s.eventFns, id)
		s.lmu.Unlock()
	}
}

// OnStateChange registers a listener for state changes. A zero state means
// the session was left.
func (s *Session) OnStateChange(fn func(model.PartyState)) (off func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.stateFns[id] = fn
	return func() {
		s.lmu.Lock()
		delete(s.stateFns, id)
		s.lmu.Unlock()
	}
}

func (s *Session) run(gen uint64, ch Channel) {
	for msg := range ch.Messages() {
		if !s.live(gen) {
			continue
		}
		switch msg.Kind {
		case model.RelayBroadcast:
			s.handleBroadcast(msg)
		case model.RelaySync, model.RelayJoin, model.RelayLeave:
			s.handlePresence(gen, msg)
		}
	}
}

func (s *Session) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.gen == gen
}

func (s *Session) handleBroadcast(msg Message) {
	if msg.Event != EventName || msg.Sender == s.peerID {
		return
	}
	var ev model.PartyEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logger.Warn("invalid party event", logger.String("sender", msg.Sender), logger.ErrorField(err))
		return
	}
	if ev.SenderID == s.peerID {
		return
	}

	s.lmu.Lock()
	fns := make([]func(model.PartyEvent), 0, len(s.eventFns))
	for _, fn := range s.eventFns {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) handlePresence(gen uint64, msg Message) {
	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		return
	}
	switch msg.Kind {
	case model.RelaySync:
		s.presences = make(map[string]model.Presence, len(msg.Presences))
		for _, p := range msg.Presences {
			s.presences[p.PeerID] = p
		}
	case model.RelayJoin:
		for _, p := range msg.Presences {
			s.presences[p.PeerID] = p
		}
	case model.RelayLeave:
		for _, p := range msg.Presences {
			delete(s.presences, p.PeerID)
		}
	}
	s.state.UserCount = max(1, len(s.presences))
	if !s.state.IsHost {
		s.state.HostName = ""
		for _, p := range s.presences {
			if p.IsHost {
				s.state.HostName = p.UserName
				break
			}
		}
	}
	state := s.state
	s.mu.Unlock()

	s.emitState(state)
}

func (s *Session) emitState(st model.PartyState) {
	s.lmu.Lock()
	fns := make([]func(model.PartyState), 0, len(s.stateFns))
	for _, fn := range s.stateFns {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
