// Package wire defines the event socket frame shared by the meeting client and the relay.
package wire

import (
	"encoding/json"
	"errors"
)

type Event string

// Events understood by both sides of the socket.
const (
	EventConnect    Event = "connect"
	EventError      Event = "error"
	EventDisconnect Event = "disconnect"

	EventRoomConfig         Event = "room:config"
	EventRoomSetPassword    Event = "room:set-password"
	EventRoomLogin          Event = "room:login"
	EventRoomUpdatePassword Event = "room:update-password"
	EventUserJoinRoom       Event = "user:join-room"

	EventChatListMessage Event = "chat:list-message"
	EventChatMsg         Event = "chat:msg"

	EventPeerMsg           Event = "peer:msg"
	EventParticipantMsg    Event = "participant:msg"
	EventPeerConnected     Event = "peer:connected"
	EventPeerDisconnecting Event = "peer:disconnecting"
)

// QueryRoomName is the URL query parameter carrying the room name on socket open.
const QueryRoomName = "roomName"

// BroadcastDST addresses a participant message to every member of the room.
const BroadcastDST = "all"

var ErrEmptyEvent = errors.New("frame has neither event nor ack")

// Frame is a single websocket text message.
// A frame with ID set expects an acknowledgement, which is a frame with Ack equal to that ID.
type Frame struct {
	Event Event           `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    uint64          `json:"id,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

func (f *Frame) IsAck() bool {
	return f.Event == "" && f.Ack != 0
}

func (f *Frame) Validate() error {
	if f.Event == "" && f.Ack == 0 {
		return ErrEmptyEvent
	}
	return nil
}

// NewFrame marshals data into a frame for event.
func NewFrame(event Event, data any) (Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// NewAck builds an acknowledgement for request id.
func NewAck(id uint64, data any) (Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Ack: id, Data: raw}, nil
}

func marshalData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
