package model

import "encoding/json"

// PartyEventType 派对事件类型
type PartyEventType string

const (
	PartyPlay         PartyEventType = "play"
	PartyPause        PartyEventType = "pause"
	PartySeek         PartyEventType = "seek"
	PartyTrackChange  PartyEventType = "track_change"
	PartySyncRequest  PartyEventType = "sync_request"
	PartySyncResponse PartyEventType = "sync_response"
)

// Mutating reports whether the event changes transport state, i.e. may only
// be sent by the host.
func (t PartyEventType) Mutating() bool {
	return t != PartySyncRequest
}

// PartyEvent is broadcast on the party channel under the "player_action" event.
type PartyEvent struct {
	Type      PartyEventType  `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix ms
	SenderID  string          `json:"senderId"`
}

// PositionPayload carries a host position for play/pause/seek.
type PositionPayload struct {
	Time float64 `json:"time"`
}

// TrackPayload carries a host track change or a sync response.
type TrackPayload struct {
	TrackID   string  `json:"trackId"`
	Title     string  `json:"title,omitempty"`
	Artist    string  `json:"artist,omitempty"`
	Time      float64 `json:"time"`
	IsPlaying bool    `json:"isPlaying"`
}

// PartyState 派对状态
type PartyState struct {
	RoomID    string `json:"roomId"`
	IsHost    bool   `json:"isHost"`
	UserCount int    `json:"userCount"`
	HostName  string `json:"hostName,omitempty"`
}

// Presence is what each peer tracks on the party channel.
type Presence struct {
	PeerID   string `json:"peerId"`
	UserName string `json:"userName"`
	IsHost   bool   `json:"isHost"`
	OnlineAt int64  `json:"onlineAt"` // unix ms
}

// PlaybackSnapshot is a read-only copy of the transport session.
type PlaybackSnapshot struct {
	Track        *MediaItem `json:"track,omitempty"`
	IsPlaying    bool       `json:"isPlaying"`
	Position     float64    `json:"position"`
	Duration     float64    `json:"duration"`
	Shuffle      bool       `json:"shuffle"`
	Repeat       RepeatMode `json:"repeat"`
	Volume       float64    `json:"volume"`
	PlaybackRate float64    `json:"playbackRate"`
}

// RelayFrameType 中继帧类型
type RelayFrameType string

const (
	RelayTrack     RelayFrameType = "track"     // peer -> relay: announce presence
	RelayBroadcast RelayFrameType = "broadcast" // both ways: an event for the other peers
	RelaySync      RelayFrameType = "sync"      // relay -> peer: full presence list
	RelayJoin      RelayFrameType = "join"
	RelayLeave     RelayFrameType = "leave"
)

// RelayFrame is the wire format between party peers and a relay (websocket
// or redis).
type RelayFrame struct {
	Type      RelayFrameType  `json:"type"`
	Room      string          `json:"room,omitempty"`
	Peer      string          `json:"peer,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Presences []Presence      `json:"presences,omitempty"`
}
