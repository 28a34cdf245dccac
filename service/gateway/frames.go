package gateway

import (
	"encoding/json"
	"fmt"

	decode "DPanel/tools/decode"
)

// Client -> gateway frame types.
const (
	FrameAuth        = "auth"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
)

// Gateway -> client frame types.
const (
	FrameConnected     = "connected"
	FrameAuthenticated = "authenticated"
	FrameSubscribed    = "subscribed"
	FrameUnsubscribed  = "unsubscribed"
	FrameError         = "error"
	FrameEvent         = "event"
)

// ClientFrame is one parsed inbound frame: the discriminator plus the
// raw field map, decoded per-type by the handlers.
type ClientFrame struct {
	Type   string
	Fields map[string]any
}

func ParseClientFrame(raw []byte) (*ClientFrame, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	typ, ok := m["type"].(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}
	return &ClientFrame{Type: typ, Fields: m}, nil
}

type AuthPayload struct {
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"`
}

type GuildPayload struct {
	GuildID string `json:"guildId"`
}

func (f *ClientFrame) AuthPayload() (*AuthPayload, error) {
	return decode.DecodeMap[AuthPayload](f.Fields)
}

func (f *ClientFrame) GuildPayload() (*GuildPayload, error) {
	return decode.DecodeMap[GuildPayload](f.Fields)
}

// DomainEvent is a bot-originated event: parsed only far enough to
// route (type + guildId), forwarded byte-for-byte via Raw.
type DomainEvent struct {
	Type    string
	GuildID string
	Raw     json.RawMessage
}

func ParseDomainEvent(data []byte) (*DomainEvent, error) {
	var probe struct {
		Type    string `json:"type"`
		GuildID string `json:"guildId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("unmarshal event failed: %w", err)
	}
	if probe.Type == "" {
		return nil, fmt.Errorf("event missing type")
	}
	if probe.GuildID == "" {
		return nil, fmt.Errorf("event missing guildId")
	}
	return &DomainEvent{
		Type:    probe.Type,
		GuildID: probe.GuildID,
		Raw:     json.RawMessage(append([]byte(nil), data...)),
	}, nil
}

// OutboundCommand is the sibling publisher's payload. ID is a fresh
// token per call, for external correlation only.
type OutboundCommand struct {
	Type      string `json:"type"`
	GuildID   string `json:"guildId"`
	UserID    string `json:"userId,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

type serverFrame struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId,omitempty"`
	GuildID string          `json:"guildId,omitempty"`
	Message string          `json:"message,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
}

func marshalFrame(f serverFrame) []byte {
	// serverFrame has no unmarshalable fields
	raw, _ := json.Marshal(f)
	return raw
}

func BuildConnected() []byte {
	return marshalFrame(serverFrame{Type: FrameConnected})
}

func BuildAuthenticated(userID string) []byte {
	return marshalFrame(serverFrame{Type: FrameAuthenticated, UserID: userID})
}

func BuildSubscribed(guildID string) []byte {
	return marshalFrame(serverFrame{Type: FrameSubscribed, GuildID: guildID})
}

func BuildUnsubscribed(guildID string) []byte {
	return marshalFrame(serverFrame{Type: FrameUnsubscribed, GuildID: guildID})
}

func BuildError(message string) []byte {
	return marshalFrame(serverFrame{Type: FrameError, Message: message})
}

func BuildPing() []byte {
	return marshalFrame(serverFrame{Type: FramePing})
}

func BuildPong() []byte {
	return marshalFrame(serverFrame{Type: FramePong})
}

func BuildEventFrame(ev *DomainEvent) []byte {
	return marshalFrame(serverFrame{Type: FrameEvent, Event: ev.Raw})
}
