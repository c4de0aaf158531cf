package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"MTCPlayer/core/auth"
	"MTCPlayer/core/party"
	"MTCPlayer/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// MediaLinker hands out temporary URLs for stored media objects.
type MediaLinker interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

// PartyHandler 派对中继 HTTP 处理器
type PartyHandler struct {
	hub       *Hub
	secret    []byte
	inviteTTL time.Duration
	media     MediaLinker
	upgrader  websocket.Upgrader
}

// NewPartyHandler 创建处理器。secret 为空时不校验邀请 token
func NewPartyHandler(hub *Hub, secret []byte, media MediaLinker) *PartyHandler {
	return &PartyHandler{
		hub:       hub,
		secret:    secret,
		inviteTTL: auth.DefaultInviteTTL,
		media:     media,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket joins a peer to a room: /party?room=&peer=&token=
func (h *PartyHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room, peer, token := q.Get("room"), q.Get("peer"), q.Get("token")
	if room == "" || peer == "" {
		http.Error(w, "room and peer are required", http.StatusBadRequest)
		return
	}
	if len(h.secret) > 0 {
		if err := auth.VerifyRoom(h.secret, token, room); err != nil {
			logger.Warn("party join rejected", logger.String("room", room), logger.ErrorField(err))
			http.Error(w, "invalid invite token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		Room: room,
		Peer: peer,
	}
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(r.Context())
}

// InviteResponse 邀请响应
type InviteResponse struct {
	Room  string `json:"room"`
	Token string `json:"token,omitempty"`
	URL   string `json:"url"`
}

// HandleInvite issues a signed invite for the room.
func (h *PartyHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	resp := InviteResponse{Room: room}
	if len(h.secret) > 0 {
		token, err := auth.GenerateToken(h.secret, room, h.inviteTTL)
		if err != nil {
			logger.Error("生成邀请失败", logger.String("room", room), logger.ErrorField(err))
			http.Error(w, "failed to issue invite", http.StatusInternalServerError)
			return
		}
		resp.Token = token
	}
	resp.URL = party.InviteURL(room, resp.Token)

	writeJSON(w, http.StatusOK, resp)
}

// HandlePeers reports the announced peers of a room.
func (h *PartyHandler) HandlePeers(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":  room,
		"peers": h.hub.PeerCount(room),
	})
}

// HandleMedia redirects to a presigned URL of a stored object.
func (h *PartyHandler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		http.Error(w, "media storage not configured", http.StatusServiceUnavailable)
		return
	}
	key := strings.TrimPrefix(mux.Vars(r)["key"], "/")
	if key == "" {
		http.Error(w, "object key is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	u, err := h.media.PresignedURL(ctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, "storage timeout", http.StatusGatewayTimeout)
			return
		}
		logger.Warn("presign media failed", logger.String("key", key), logger.ErrorField(err))
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response failed", logger.ErrorField(err))
	}
}
