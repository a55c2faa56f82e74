package model

import (
	"maps"
	"slices"

	"github.com/adwski/meeting-room/wire"
)

const defaultWireTXSize = 32

type Room struct {
	ID           string                 `json:"room_id"`
	PasswordHash []byte                 `json:"-"`
	Participants map[string]Participant `json:"participants"`
	Messages     []wire.ChatMessage     `json:"-"`
}

func (r *Room) HasPassword() bool {
	return len(r.PasswordHash) > 0
}

// Clone returns a deep copy safe to use outside the store lock.
func (r *Room) Clone() *Room {
	return &Room{
		ID:           r.ID,
		PasswordHash: slices.Clone(r.PasswordHash),
		Participants: maps.Clone(r.Participants),
		Messages:     slices.Clone(r.Messages),
	}
}

type Participant struct {
	ID       string `json:"id"`
	UserName string `json:"userName,omitempty"`
	Logged   bool   `json:"logged"`
	Joined   bool   `json:"joined"`
}

// Inbound is a frame received from an endpoint; SRC is assigned by the server from the websocket session.
type Inbound struct {
	SRC   string
	Frame wire.Frame
}

type Wire struct {
	RX chan Inbound
	TX chan wire.Frame
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Inbound),
		TX: make(chan wire.Frame, defaultWireTXSize),
	}
}
