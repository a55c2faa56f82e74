package store

import "github.com/adwski/meeting-room/client/action"

// State is the whole client state. Top level JSON keys are the persisted branch names.
type State struct {
	Router       RouterState       `json:"router"`
	Auth         AuthState         `json:"auth"`
	User         UserState         `json:"user"`
	Room         RoomState         `json:"room"`
	Chat         ChatState         `json:"chat"`
	Participants ParticipantsState `json:"participants"`
}

type RouterState struct {
	Pathname string `json:"pathname"`
}

type AuthState struct {
	Token string `json:"token,omitempty"`
}

type UserState struct {
	ParticipantID string `json:"participantId,omitempty"`
	UserName      string `json:"userName,omitempty"`
}

type RoomState struct {
	RoomName     string `json:"roomName,omitempty"`
	HasPassword  bool   `json:"hasPassword"`
	Password     string `json:"password,omitempty"`
	IsLogged     bool   `json:"isLogged"`
	MessageError string `json:"messageError,omitempty"`
	Joined       bool   `json:"joined"`
	Connected    bool   `json:"connected"`
	SocketID     string `json:"socketId,omitempty"`
}

// CanJoin reports whether the room may be joined without further login.
func (r RoomState) CanJoin() bool {
	return !r.HasPassword || r.IsLogged
}

type ChatState struct {
	Messages []action.ChatMessage `json:"messages"`
}

type Participant struct {
	ID       string                `json:"id"`
	UserName string                `json:"userName,omitempty"`
	Settings action.DeviceSettings `json:"settings"`
	Tracks   []action.TrackInfo    `json:"tracks,omitempty"`
}

type ParticipantsState struct {
	LocalParticipantID string                  `json:"localParticipantId,omitempty"`
	Constraints        action.MediaConstraints `json:"constraints"`
	LocalStream        *action.Stream          `json:"localStream,omitempty"`
	LocalSettings      action.DeviceSettings   `json:"localSettings"`
	Remote             map[string]Participant  `json:"remote,omitempty"`
}

// InitialState returns an empty state.
func InitialState() State {
	return State{
		Participants: ParticipantsState{
			Remote: make(map[string]Participant),
		},
	}
}
