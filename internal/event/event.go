// Package event defines the WebSocket wire protocol: the closed set of
// client-to-server events, the server-to-client payloads, and the JSON frame
// codec. Every inbound frame decodes to exactly one ClientEvent variant so the
// connection state machine can dispatch exhaustively.
package event

import (
	"encoding/json"
	"fmt"
)

// Name identifies a wire event.
type Name string

// Client-to-server events. The connect event has no frame: it is the
// transport open itself.
const (
	Join           Name = "join"
	Logout         Name = "logout"
	PrivateMessage Name = "private_message"
	Typing         Name = "typing"
	GetUserList    Name = "get_user_list"
)

// Server-to-client events.
const (
	RequestLogin   Name = "request_login"
	AutoLogin      Name = "auto_login"
	UserJoined     Name = "user_joined"
	UserLeft       Name = "user_left"
	UserList       Name = "user_list"
	ReceiveMessage Name = "receive_message"
	TypingSignal   Name = "typing"
	System         Name = "system"
	LogoutOK       Name = "logout_ok"
)

// Frame is the JSON envelope for every wire event.
type Frame struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is the closed set of events a client may send. Exactly one
// concrete type implements it per wire event.
type ClientEvent interface {
	isClientEvent()
}

// JoinEvent asks the server to re-establish identity from the persisted session.
type JoinEvent struct{}

// LogoutEvent releases the connection's identity and clears the session name.
type LogoutEvent struct{}

// PrivateMessageEvent carries a point-to-point text message.
type PrivateMessageEvent struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// TypingEvent carries a fire-and-forget typing signal.
type TypingEvent struct {
	To       string `json:"to"`
	IsTyping bool   `json:"is_typing"`
}

// GetUserListEvent requests the current roster.
type GetUserListEvent struct{}

func (JoinEvent) isClientEvent()           {}
func (LogoutEvent) isClientEvent()         {}
func (PrivateMessageEvent) isClientEvent() {}
func (TypingEvent) isClientEvent()         {}
func (GetUserListEvent) isClientEvent()    {}

// ErrUnknownEvent is returned by Decode for events outside the closed set.
type ErrUnknownEvent struct {
	Event Name
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event %q", string(e.Event))
}

// Decode parses a raw frame into its typed client event.
// Missing or null data decodes to the variant's zero value; extra fields are
// ignored, matching the tolerant reading of the original protocol.
func Decode(raw []byte) (ClientEvent, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch frame.Event {
	case Join:
		return JoinEvent{}, nil
	case Logout:
		return LogoutEvent{}, nil
	case PrivateMessage:
		var ev PrivateMessageEvent
		if err := unmarshalData(frame.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case Typing:
		var ev TypingEvent
		if err := unmarshalData(frame.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case GetUserList:
		return GetUserListEvent{}, nil
	default:
		return nil, &ErrUnknownEvent{Event: frame.Event}
	}
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed event data: %w", err)
	}
	return nil
}

// Server-to-client payloads.

// UsernamePayload carries a single username (auto_login, user_joined, user_left).
type UsernamePayload struct {
	Username string `json:"username"`
}

// UserListPayload carries the sorted roster.
type UserListPayload struct {
	Users []string `json:"users"`
}

// MessagePayload is a routed private message with its authoritative timestamp.
type MessagePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
	Time string `json:"time"` // wall clock, HH:MM
}

// TypingPayload is a typing signal as seen by the recipient.
type TypingPayload struct {
	From     string `json:"from"`
	IsTyping bool   `json:"is_typing"`
}

// SystemPayload is a non-fatal informational notice.
type SystemPayload struct {
	Text string `json:"text"`
}

// Encode marshals a server event into its wire frame.
func Encode(name Name, payload interface{}) ([]byte, error) {
	frame := Frame{Event: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

// MustEncode marshals a server event and panics on failure. It is intended for
// payload types defined in this package, which cannot fail to marshal.
func MustEncode(name Name, payload interface{}) []byte {
	data, err := Encode(name, payload)
	if err != nil {
		panic(err)
	}
	return data
}
