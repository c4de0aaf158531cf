package party

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
	"MTCPlayer/model"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
)

// WSRealtime joins rooms on a websocket relay (see the relay command).
type WSRealtime struct {
	URL    string // ws://host:port/ws/party
	Token  string // invite token, when the relay requires one
	Dialer *websocket.Dialer
}

func NewWSRealtime(rawURL, token string) *WSRealtime {
	return &WSRealtime{URL: rawURL, Token: token, Dialer: websocket.DefaultDialer}
}

func (w *WSRealtime) Join(ctx context.Context, room, peerID string) (Channel, error) {
	if room == "" || peerID == "" {
		return nil, playerr.Validation("party join", "room and peer are required")
	}
	u, err := url.Parse(w.URL)
	if err != nil {
		return nil, playerr.New(playerr.KindValidation, "party join", "invalid relay url", err)
	}
	q := u.Query()
	q.Set("room", room)
	q.Set("peer", peerID)
	if w.Token != "" {
		q.Set("token", w.Token)
	}
	u.RawQuery = q.Encode()

	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, playerr.New(playerr.KindConnectivity, "party join", "dial relay failed", err)
	}

	ch := &wsChannel{conn: conn, room: room, peer: peerID, msgs: make(chan Message, channelBuffer)}
	go ch.readLoop()
	return ch, nil
}

type wsChannel struct {
	conn *websocket.Conn
	room string
	peer string
	msgs chan Message

	wmu       sync.Mutex
	closeOnce sync.Once
}

func (c *wsChannel) Track(ctx context.Context, p model.Presence) error {
	p.PeerID = c.peer
	return c.write(ctx, model.RelayFrame{Type: model.RelayTrack, Presences: []model.Presence{p}})
}

func (c *wsChannel) Send(ctx context.Context, event string, payload json.RawMessage) error {
	return c.write(ctx, model.RelayFrame{Type: model.RelayBroadcast, Event: event, Payload: payload})
}

func (c *wsChannel) write(ctx context.Context, f model.RelayFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return playerr.New(playerr.KindConnectivity, "party "+string(f.Type), "relay write failed", err)
	}
	return nil
}

func (c *wsChannel) Messages() <-chan Message {
	return c.msgs
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) readLoop() {
	defer close(c.msgs)

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("party relay read error",
					logger.String("room", c.room),
					logger.String("peer", c.peer),
					logger.ErrorField(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		// the relay batches queued frames separated by newlines
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var f model.RelayFrame
			if err := json.Unmarshal(line, &f); err != nil {
				logger.Warn("invalid relay frame", logger.String("room", c.room), logger.ErrorField(err))
				continue
			}
			c.deliver(FrameMessage(f))
		}
	}
}

func (c *wsChannel) deliver(msg Message) {
	select {
	case c.msgs <- msg:
	default:
		logger.Warn("party channel buffer full, dropping message",
			logger.String("room", c.room),
			logger.String("peer", c.peer),
			logger.String("kind", string(msg.Kind)))
	}
}

// FrameMessage converts a relay frame into a channel message.
func FrameMessage(f model.RelayFrame) Message {
	return Message{
		Kind:      f.Type,
		Event:     f.Event,
		Payload:   f.Payload,
		Sender:    f.Peer,
		Presences: f.Presences,
	}
}
