package party

import (
	"net/url"
	"strings"

	"MTCPlayer/core/playerr"
)

// InviteScheme is the deep link scheme of party invitations.
const InviteScheme = "mtc-player"

// Invite is a parsed invitation link.
type Invite struct {
	RoomID string
	Token  string // signed by the relay, may be empty
}

// ParseInviteURL extracts the room from mtc-player://party/ROOM or
// https://host/party/ROOM?token=...
func ParseInviteURL(raw string) (Invite, error) {
	_, rest, ok := strings.Cut(raw, "/party/")
	if !ok {
		return Invite{}, playerr.Validation("parse invite", "not a party link")
	}
	room, _, _ := strings.Cut(rest, "?")
	room, _, _ = strings.Cut(room, "#")
	room, _, _ = strings.Cut(room, "/")
	if room == "" {
		return Invite{}, playerr.Validation("parse invite", "missing room id")
	}
	if r, err := url.PathUnescape(room); err == nil {
		room = r
	}

	inv := Invite{RoomID: room}
	if u, err := url.Parse(raw); err == nil {
		inv.Token = u.Query().Get("token")
	}
	return inv, nil
}

// InviteURL builds the deep link for room.
func InviteURL(room, token string) string {
	u := url.URL{Scheme: InviteScheme, Host: "party", Path: "/" + room}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

// WebInviteURL builds the https fallback of the deep link, base being the
// site root.
func WebInviteURL(base, room, token string) string {
	u := strings.TrimRight(base, "/") + "/party/" + url.PathEscape(room)
	if token != "" {
		u += "?" + url.Values{"token": {token}}.Encode()
	}
	return u
}
