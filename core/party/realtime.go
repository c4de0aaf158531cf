// Package party replicates one host's transport state to the followers in a
// room over a pub/sub relay.
package party

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
	"MTCPlayer/model"
)

// Message is what a channel delivers: a broadcast from another peer or a
// presence change.
type Message struct {
	Kind      model.RelayFrameType
	Event     string
	Payload   json.RawMessage
	Sender    string
	Presences []model.Presence // SYNC: everyone; JOIN/LEAVE: the peers concerned
}

// Channel is one peer's subscription to a room.
type Channel interface {
	// Track announces the local presence to the room.
	Track(ctx context.Context, p model.Presence) error
	// Send broadcasts to every other peer; the sender never receives its own
	// messages.
	Send(ctx context.Context, event string, payload json.RawMessage) error
	Messages() <-chan Message
	Close() error
}

// Realtime is a pub/sub relay with presence.
type Realtime interface {
	Join(ctx context.Context, room, peerID string) (Channel, error)
}

const channelBuffer = 256

// LocalRelay is an in-process Realtime, used for tests and single-process
// parties.
type LocalRelay struct {
	mu    sync.Mutex
	rooms map[string]map[string]*localChannel
}

func NewLocalRelay() *LocalRelay {
	return &LocalRelay{rooms: make(map[string]map[string]*localChannel)}
}

// Join subscribes peerID to room. A second join of the same peer replaces
// the first connection.
func (r *LocalRelay) Join(ctx context.Context, room, peerID string) (Channel, error) {
	if room == "" || peerID == "" {
		return nil, playerr.Validation("party join", "room and peer are required")
	}
	ch := &localChannel{relay: r, room: room, peer: peerID, msgs: make(chan Message, channelBuffer)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.rooms[room][peerID]; ok {
		r.removeLocked(old)
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*localChannel)
	}
	r.rooms[room][peerID] = ch
	return ch, nil
}

// Peers returns the number of channels subscribed to room.
func (r *LocalRelay) Peers(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

func (r *LocalRelay) removeLocked(ch *localChannel) {
	if ch.closed {
		return
	}
	ch.closed = true
	members := r.rooms[ch.room]
	if members[ch.peer] == ch {
		delete(members, ch.peer)
	}
	if len(members) == 0 {
		delete(r.rooms, ch.room)
	}
	close(ch.msgs)

	if ch.presence != nil {
		left := Message{Kind: model.RelayLeave, Presences: []model.Presence{*ch.presence}}
		for _, m := range members {
			r.deliverLocked(m, left)
		}
		r.syncLocked(ch.room)
	}
}

func (r *LocalRelay) syncLocked(room string) {
	members := r.rooms[room]
	list := make([]model.Presence, 0, len(members))
	for _, m := range members {
		if m.presence != nil {
			list = append(list, *m.presence)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PeerID < list[j].PeerID })
	for _, m := range members {
		r.deliverLocked(m, Message{Kind: model.RelaySync, Presences: list})
	}
}

func (r *LocalRelay) deliverLocked(ch *localChannel, msg Message) {
	select {
	case ch.msgs <- msg:
	default:
		logger.Warn("party channel buffer full, dropping message",
			logger.String("room", ch.room),
			logger.String("peer", ch.peer),
			logger.String("kind", string(msg.Kind)))
	}
}

type localChannel struct {
	relay *LocalRelay
	room  string
	peer  string
	msgs  chan Message

	// guarded by relay.mu
	presence *model.Presence
	closed   bool
}

func (c *localChannel) Track(ctx context.Context, p model.Presence) error {
	r := c.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return playerr.Connectivity("party track", "channel closed")
	}
	p.PeerID = c.peer
	c.presence = &p
	joined := Message{Kind: model.RelayJoin, Presences: []model.Presence{p}}
	for _, m := range r.rooms[c.room] {
		r.deliverLocked(m, joined)
	}
	r.syncLocked(c.room)
	return nil
}

func (c *localChannel) Send(ctx context.Context, event string, payload json.RawMessage) error {
	r := c.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return playerr.Connectivity("party send", "channel closed")
	}
	msg := Message{Kind: model.RelayBroadcast, Event: event, Payload: payload, Sender: c.peer}
	for peer, m := range r.rooms[c.room] {
		if peer != c.peer {
			r.deliverLocked(m, msg)
		}
	}
	return nil
}

func (c *localChannel) Messages() <-chan Message {
	return c.msgs
}

func (c *localChannel) Close() error {
	c.relay.mu.Lock()
	defer c.relay.mu.Unlock()
	c.relay.removeLocked(c)
	return nil
}
