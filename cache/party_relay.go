package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"MTCPlayer/core/party"
	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
	"MTCPlayer/model"

	"github.com/redis/go-redis/v9"
)

const heartbeatInterval = presenceTTL / 3

// PartyRelay is a party.Realtime over redis: frames travel on one pub/sub
// channel per room, presence lives in heartbeat keys.
type PartyRelay struct {
	client    *redis.Client
	keys      Keyspace
	presence  *PresenceStore
	heartbeat time.Duration
}

func NewPartyRelay(client *redis.Client, keys Keyspace) *PartyRelay {
	return &PartyRelay{
		client:    client,
		keys:      keys,
		presence:  NewPresenceStore(client, keys),
		heartbeat: heartbeatInterval,
	}
}

func (r *PartyRelay) Join(ctx context.Context, room, peerID string) (party.Channel, error) {
	if room == "" || peerID == "" {
		return nil, playerr.Validation("party join", "room and peer are required")
	}
	if r.client == nil {
		return nil, playerr.Connectivity("party join", "redis client not initialized")
	}

	pubsub := r.client.Subscribe(ctx, r.keys.key(partyChannelKey, room))
	// wait for the subscription so nothing published after Join is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, playerr.New(playerr.KindConnectivity, "party join", "subscribe failed", err)
	}

	hctx, cancel := context.WithCancel(context.Background())
	ch := &redisChannel{
		relay:  r,
		room:   room,
		peer:   peerID,
		pubsub: pubsub,
		msgs:   make(chan party.Message, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	go ch.heartbeatLoop(hctx)
	return ch, nil
}

type redisChannel struct {
	relay  *PartyRelay
	room   string
	peer   string
	pubsub *redis.PubSub
	msgs   chan party.Message
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	presence  *model.Presence
	closeOnce sync.Once
}

func (c *redisChannel) Track(ctx context.Context, p model.Presence) error {
	p.PeerID = c.peer
	if err := c.relay.presence.Heartbeat(ctx, c.room, p); err != nil {
		return playerr.New(playerr.KindConnectivity, "party track", "presence heartbeat failed", err)
	}
	c.mu.Lock()
	c.presence = &p
	c.mu.Unlock()

	if err := c.publish(ctx, model.RelayFrame{Type: model.RelayJoin, Presences: []model.Presence{p}}); err != nil {
		return err
	}
	return c.publishSync(ctx)
}

func (c *redisChannel) Send(ctx context.Context, event string, payload json.RawMessage) error {
	select {
	case <-c.done:
		return playerr.Connectivity("party send", "channel closed")
	default:
	}
	return c.publish(ctx, model.RelayFrame{Type: model.RelayBroadcast, Event: event, Payload: payload})
}

func (c *redisChannel) Messages() <-chan party.Message {
	return c.msgs
}

func (c *redisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()

		c.mu.Lock()
		p := c.presence
		c.presence = nil
		c.mu.Unlock()

		if p != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if rerr := c.relay.presence.Remove(ctx, c.room, c.peer); rerr != nil {
				logger.Warn("remove party presence failed", logger.String("room", c.room), logger.ErrorField(rerr))
			}
			if perr := c.publish(ctx, model.RelayFrame{Type: model.RelayLeave, Presences: []model.Presence{*p}}); perr == nil {
				c.publishSync(ctx)
			}
			cancel()
		}
		err = c.pubsub.Close()
	})
	return err
}

func (c *redisChannel) publish(ctx context.Context, f model.RelayFrame) error {
	f.Room, f.Peer = c.room, c.peer
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := c.relay.client.Publish(ctx, c.relay.keys.key(partyChannelKey, c.room), data).Err(); err != nil {
		return playerr.New(playerr.KindConnectivity, "party "+string(f.Type), "publish failed", err)
	}
	return nil
}

func (c *redisChannel) publishSync(ctx context.Context) error {
	list, err := c.relay.presence.Active(ctx, c.room)
	if err != nil {
		return playerr.New(playerr.KindConnectivity, "party sync", "read presence failed", err)
	}
	return c.publish(ctx, model.RelayFrame{Type: model.RelaySync, Presences: list})
}

func (c *redisChannel) readLoop() {
	defer close(c.msgs)
	for m := range c.pubsub.Channel() {
		var f model.RelayFrame
		if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
			logger.Warn("invalid relay frame", logger.String("room", c.room), logger.ErrorField(err))
			continue
		}
		if f.Type == model.RelayBroadcast && f.Peer == c.peer {
			continue
		}
		select {
		case c.msgs <- party.FrameMessage(f):
		default:
			logger.Warn("party channel buffer full, dropping message",
				logger.String("room", c.room),
				logger.String("peer", c.peer))
		}
	}
}

func (c *redisChannel) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.relay.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			p := c.presence
			c.mu.Unlock()
			if p == nil {
				continue
			}
			if err := c.relay.presence.Heartbeat(ctx, c.room, *p); err != nil {
				logger.Warn("party heartbeat failed", logger.String("room", c.room), logger.ErrorField(err))
			}
		}
	}
}
