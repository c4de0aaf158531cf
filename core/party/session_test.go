package party

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"MTCPlayer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = time.Second

type eventLog struct {
	mu     sync.Mutex
	events []model.PartyEvent
}

func (l *eventLog) add(ev model.PartyEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []model.PartyEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.PartyEvent(nil), l.events...)
}

func userCount(s *Session) int {
	st, _ := s.State()
	return st.UserCount
}

func TestSessionPresenceCount(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	host, guest := NewSession(relay), NewSession(relay)

	require.NoError(t, host.CreateSession(ctx, "room", true, "Ana"))
	st, ok := host.State()
	require.True(t, ok)
	assert.Equal(t, 1, st.UserCount)
	assert.Equal(t, "Ana", st.HostName)

	require.NoError(t, guest.CreateSession(ctx, "room", false, "Bo"))
	assert.Eventually(t, func() bool { return userCount(host) == 2 }, wait, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return userCount(guest) == 2 }, wait, 5*time.Millisecond)

	gst, _ := guest.State()
	assert.False(t, gst.IsHost)
	assert.Equal(t, "Ana", gst.HostName)

	guest.LeaveSession()
	assert.False(t, guest.Active())
	assert.Eventually(t, func() bool { return userCount(host) == 1 }, wait, 5*time.Millisecond)
}

func TestUserCountNeverBelowOne(t *testing.T) {
	s := NewSession(NewLocalRelay())
	require.NoError(t, s.CreateSession(context.Background(), "room", true, "Ana"))

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.handlePresence(gen, Message{Kind: model.RelaySync})
	assert.Equal(t, 1, userCount(s))
}

func TestFollowerCannotBroadcastMutatingEvents(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	host, guest := NewSession(relay), NewSession(relay)
	require.NoError(t, host.CreateSession(ctx, "room", true, "Ana"))
	require.NoError(t, guest.CreateSession(ctx, "room", false, "Bo"))

	var got eventLog
	host.OnEvent(got.add)

	for _, typ := range []model.PartyEventType{model.PartyPlay, model.PartyPause, model.PartySeek, model.PartyTrackChange} {
		require.NoError(t, guest.Broadcast(ctx, typ, model.PositionPayload{Time: 1}))
	}
	require.NoError(t, guest.Broadcast(ctx, model.PartySyncRequest, nil))

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, wait, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	events := got.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.PartySyncRequest, events[0].Type)
	assert.Equal(t, guest.PeerID(), events[0].SenderID)
}

func TestHostBroadcastReachesOthersOnly(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	host, guest := NewSession(relay), NewSession(relay)
	require.NoError(t, host.CreateSession(ctx, "room", true, "Ana"))
	require.NoError(t, guest.CreateSession(ctx, "room", false, "Bo"))

	var atHost, atGuest eventLog
	host.OnEvent(atHost.add)
	guest.OnEvent(atGuest.add)

	require.NoError(t, host.Broadcast(ctx, model.PartySeek, model.PositionPayload{Time: 42}))
	require.Eventually(t, func() bool { return len(atGuest.all()) == 1 }, wait, 5*time.Millisecond)

	ev := atGuest.all()[0]
	assert.Equal(t, model.PartySeek, ev.Type)
	var p model.PositionPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, 42.0, p.Time)
	assert.NotZero(t, ev.Timestamp)
	assert.Empty(t, atHost.all())
}

func TestOwnEventsAreIgnored(t *testing.T) {
	s := NewSession(NewLocalRelay())
	var got eventLog
	s.OnEvent(got.add)

	own, _ := json.Marshal(model.PartyEvent{Type: model.PartyPlay, SenderID: s.PeerID()})
	s.handleBroadcast(Message{Kind: model.RelayBroadcast, Event: EventName, Payload: own, Sender: "relay"})
	s.handleBroadcast(Message{Kind: model.RelayBroadcast, Event: EventName, Payload: own, Sender: s.PeerID()})

	other, _ := json.Marshal(model.PartyEvent{Type: model.PartyPlay, SenderID: "user-other"})
	s.handleBroadcast(Message{Kind: model.RelayBroadcast, Event: "chat", Payload: other, Sender: "user-other"})
	s.handleBroadcast(Message{Kind: model.RelayBroadcast, Event: EventName, Payload: []byte("{"), Sender: "user-other"})
	assert.Empty(t, got.all())

	s.handleBroadcast(Message{Kind: model.RelayBroadcast, Event: EventName, Payload: other, Sender: "user-other"})
	assert.Len(t, got.all(), 1)
}

func TestInactiveBroadcastIsNoop(t *testing.T) {
	s := NewSession(NewLocalRelay())
	assert.NoError(t, s.Broadcast(context.Background(), model.PartyPlay, nil))
	_, ok := s.State()
	assert.False(t, ok)
}

func TestCreateSessionLeavesPrevious(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	s := NewSession(relay)

	var states []model.PartyState
	var mu sync.Mutex
	s.OnStateChange(func(st model.PartyState) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	require.NoError(t, s.CreateSession(ctx, "one", true, "Ana"))
	require.NoError(t, s.CreateSession(ctx, "two", false, "Ana"))
	assert.Equal(t, 0, relay.Peers("one"))
	assert.Equal(t, 1, relay.Peers("two"))

	st, _ := s.State()
	assert.Equal(t, "two", st.RoomID)

	mu.Lock()
	defer mu.Unlock()
	var left bool
	for _, st := range states {
		if st.RoomID == "" {
			left = true
		}
	}
	assert.True(t, left, "leaving the first room is reported")
}

func TestCreateSessionRequiresRoom(t *testing.T) {
	err := NewSession(NewLocalRelay()).CreateSession(context.Background(), "", true, "Ana")
	assert.Error(t, err)
}

func TestPeerIDAndRoomID(t *testing.T) {
	s := NewSession(NewLocalRelay())
	assert.True(t, strings.HasPrefix(s.PeerID(), "user-"))
	assert.NotEqual(t, s.PeerID(), NewSession(nil).PeerID())

	id := GenerateRoomID("DJ Ana Maria")
	assert.True(t, strings.HasPrefix(id, "djanamaria-"), id)
	assert.True(t, strings.HasPrefix(GenerateRoomID("  "), "party-"))
}

func TestLocalRelayRejoinReplacesChannel(t *testing.T) {
	ctx := context.Background()
	relay := NewLocalRelay()
	first, err := relay.Join(ctx, "room", "p1")
	require.NoError(t, err)
	_, err = relay.Join(ctx, "room", "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, relay.Peers("room"))
	_, open := <-first.Messages()
	assert.False(t, open)
	assert.Error(t, first.Send(ctx, EventName, nil))
	assert.NoError(t, first.Close())
}
