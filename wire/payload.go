package wire

import "encoding/json"

type ConnectData struct {
	SID string `json:"sid"`
}

type RoomConfig struct {
	HasPassword bool `json:"hasPassword"`
}

type RoomPassword struct {
	Password string `json:"password"`
}

// LoginData is the body of a room:login request.
type LoginData struct {
	From string       `json:"from"`
	Data RoomPassword `json:"data"`
}

// OutgoingChatMessage is what a client emits on chat:msg.
// Local bookkeeping fields (dateCreated, me, status) never leave the client.
type OutgoingChatMessage struct {
	Text          string `json:"text"`
	UserName      string `json:"userName,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
}

// ChatMessage is a message as stored and relayed by the server.
type ChatMessage struct {
	UniqueID      string `json:"uniqueId,omitempty"`
	DateCreated   string `json:"date_created,omitempty"`
	Text          string `json:"text"`
	UserName      string `json:"userName,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
}

// MessageAck is the relay's acknowledgement of a chat:msg.
type MessageAck struct {
	UniqueID    string `json:"uniqueId"`
	DateCreated string `json:"date_created"`
}

// PeerMessage carries WebRTC signaling between two participants.
type PeerMessage struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Peer message types.
const (
	PeerMessageOffer     = "offer"
	PeerMessageAnswer    = "answer"
	PeerMessageCandidate = "candidate"
)

// ParticipantMessage carries participant control data, usually device settings.
type ParticipantMessage struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Type     string          `json:"type"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

const ParticipantMessageSettingDevices = "setting-devices"

// PeerLifecycle is sent on peer:connected and peer:disconnecting.
type PeerLifecycle struct {
	ParticipantID string `json:"participantId"`
	UserName      string `json:"userName,omitempty"`
}
