package store

import (
	"maps"

	"github.com/adwski/meeting-room/client/action"
)

// ActionRehydrate replaces the state with a persisted snapshot.
var ActionRehydrate = action.MakeActionsType("persist")("REHYDRATE")

// RootReducer applies every branch reducer in turn.
func RootReducer(s State, a action.Action) State {
	if a.Type == ActionRehydrate {
		return rehydrate(s, a)
	}
	s = reduceRouter(s, a)
	s = reduceAuth(s, a)
	s = reduceUser(s, a)
	s = reduceRoom(s, a)
	s = reduceChat(s, a)
	s = reduceParticipants(s, a)
	return s
}

// PayloadAs extracts a typed payload given either by value or by pointer.
func PayloadAs[T any](a action.Action) (T, bool) {
	switch p := a.Payload.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

func rehydrate(s State, a action.Action) State {
	restored, ok := PayloadAs[State](a)
	if !ok {
		return s
	}
	// connection bound data never survives a restart
	restored.Room.Connected = false
	restored.Room.SocketID = ""
	restored.Room.Joined = false
	restored.Participants.Remote = make(map[string]Participant)
	restored.Participants.LocalStream = nil
	// the auth branch is not persisted, keep the live one
	restored.Auth = s.Auth
	return restored
}

func reduceRouter(s State, a action.Action) State {
	if a.Type == action.RouterLocationChange {
		if p, ok := PayloadAs[action.LocationChangePayload](a); ok {
			s.Router.Pathname = p.Pathname
		}
	}
	return s
}

func reduceAuth(s State, a action.Action) State {
	if a.Type == action.AuthSetToken {
		if p, ok := PayloadAs[action.TokenPayload](a); ok {
			s.Auth.Token = p.Token
		}
	}
	return s
}

func reduceUser(s State, a action.Action) State {
	if a.Type == action.UserInitLocalUser {
		if p, ok := PayloadAs[action.InitLocalUserPayload](a); ok {
			s.User.ParticipantID = p.ParticipantID
			if p.UserName != "" {
				s.User.UserName = p.UserName
			}
		}
	}
	return s
}

func reduceRoom(s State, a action.Action) State {
	switch a.Type {
	case action.RoomConnectSocket:
		if p, ok := PayloadAs[action.ConnectSocketPayload](a); ok && p.RoomName != "" {
			s.Room.RoomName = p.RoomName
		}
		s.Room.MessageError = ""
	case action.RoomSocketConnected:
		s.Room.Connected = true
		if p, ok := PayloadAs[action.SocketConnectedPayload](a); ok {
			s.Room.SocketID = p.SocketID
		}
	case action.RoomConfig:
		if p, ok := PayloadAs[action.RoomConfigPayload](a); ok {
			s.Room.HasPassword = p.HasPassword
		}
	case action.RoomSetPassword, action.RoomUpdatePassword:
		if p, ok := PayloadAs[action.PasswordPayload](a); ok {
			s.Room.Password = p.Password
			if a.Type == action.RoomUpdatePassword {
				s.Room.HasPassword = p.Password != ""
			}
		}
	case action.RoomLoginSuccess:
		s.Room.IsLogged = true
		s.Room.MessageError = ""
	case action.RoomLoginFail:
		s.Room.IsLogged = false
		if p, ok := PayloadAs[action.LoginFailPayload](a); ok {
			s.Room.MessageError = p.MessageError
		}
	case action.RoomJoin:
		s.Room.Joined = true
		if p, ok := PayloadAs[action.JoinRoomPayload](a); ok && p.RoomName != "" {
			s.Room.RoomName = p.RoomName
		}
	case action.RoomLeave:
		s.Room.Joined = false
		s.Room.Connected = false
		s.Room.SocketID = ""
		s.Room.IsLogged = false
	}
	return s
}

func reduceChat(s State, a action.Action) State {
	switch a.Type {
	case action.ChatSendMessage:
		if msg, ok := PayloadAs[action.ChatMessage](a); ok {
			msg.Me = true
			if msg.Status == "" {
				msg.Status = action.MessageStatusPending
			}
			s.Chat.Messages = appendMessage(s.Chat.Messages, msg)
		}
	case action.ChatReceiveMessage:
		if msg, ok := PayloadAs[action.ChatMessage](a); ok {
			s.Chat.Messages = appendMessage(s.Chat.Messages, msg)
		}
	case action.ChatMessageSuccess:
		p, ok := PayloadAs[action.MessageSuccessPayload](a)
		if !ok {
			break
		}
		// acks come back in emission order, so the oldest pending message is the acked one
		for i, msg := range s.Chat.Messages {
			if msg.Me && msg.Status == action.MessageStatusPending {
				msgs := make([]action.ChatMessage, len(s.Chat.Messages))
				copy(msgs, s.Chat.Messages)
				msgs[i].UniqueID = p.UniqueID
				msgs[i].DateCreated = p.DateCreated
				msgs[i].Status = action.MessageStatusSuccess
				s.Chat.Messages = msgs
				break
			}
		}
	case action.ChatListMessages:
		if p, ok := PayloadAs[action.ListMessagesPayload](a); ok {
			msgs := make([]action.ChatMessage, 0, len(p.ListMessages))
			for _, msg := range p.ListMessages {
				msg.Status = action.MessageStatusSuccess
				msg.Me = msg.ParticipantID != "" && msg.ParticipantID == s.User.ParticipantID
				msgs = append(msgs, msg)
			}
			s.Chat.Messages = msgs
		}
	}
	return s
}

func appendMessage(msgs []action.ChatMessage, msg action.ChatMessage) []action.ChatMessage {
	out := make([]action.ChatMessage, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg)
}

func reduceParticipants(s State, a action.Action) State {
	p := &s.Participants
	switch a.Type {
	case action.UserInitLocalUser:
		if pl, ok := PayloadAs[action.InitLocalUserPayload](a); ok {
			p.LocalParticipantID = pl.ParticipantID
		}
	case action.ParticipantsGetUserMedia:
		if pl, ok := PayloadAs[action.GetUserMediaPayload](a); ok {
			p.Constraints = pl.Constraints
		}
	case action.ParticipantsSetStream:
		if pl, ok := PayloadAs[action.SetStreamPayload](a); ok {
			stream := pl.Stream
			p.LocalStream = &stream
			p.LocalSettings.Audio, p.LocalSettings.Video = false, false
			for _, tr := range stream.Tracks {
				switch tr.Kind {
				case "audio":
					p.LocalSettings.Audio = true
				case "video":
					p.LocalSettings.Video = true
				}
			}
		}
	case action.ParticipantsSetLocalSettingDevices, action.ParticipantsSetLocalSettingSharingScreen:
		if pl, ok := PayloadAs[action.LocalSettingPayload](a); ok {
			p.LocalSettings = pl.Settings
		}
	case action.ParticipantsCloseShareScreen:
		p.LocalSettings.SharingScreen = false
	case action.ParticipantsAdd:
		if pl, ok := PayloadAs[action.ParticipantPayload](a); ok {
			remote := cloneRemote(p.Remote)
			part := remote[pl.ParticipantID]
			part.ID = pl.ParticipantID
			if pl.UserName != "" {
				part.UserName = pl.UserName
			}
			remote[pl.ParticipantID] = part
			p.Remote = remote
		}
	case action.ParticipantsRemove:
		if pl, ok := PayloadAs[action.ParticipantPayload](a); ok {
			remote := cloneRemote(p.Remote)
			delete(remote, pl.ParticipantID)
			p.Remote = remote
		}
	case action.ParticipantsUpdateSettings:
		if pl, ok := PayloadAs[action.ParticipantSettingsPayload](a); ok {
			remote := cloneRemote(p.Remote)
			part := remote[pl.ParticipantID]
			part.ID = pl.ParticipantID
			part.Settings = pl.Settings
			remote[pl.ParticipantID] = part
			p.Remote = remote
		}
	case action.ParticipantsAddRemoteTrack:
		if pl, ok := PayloadAs[action.RemoteTrackPayload](a); ok {
			remote := cloneRemote(p.Remote)
			part := remote[pl.ParticipantID]
			part.ID = pl.ParticipantID
			part.Tracks = append(append([]action.TrackInfo(nil), part.Tracks...), pl.Track)
			remote[pl.ParticipantID] = part
			p.Remote = remote
		}
	case action.RoomLeave:
		p.Remote = make(map[string]Participant)
		p.LocalStream = nil
		p.LocalSettings = action.DeviceSettings{}
	}
	return s
}

func cloneRemote(m map[string]Participant) map[string]Participant {
	if m == nil {
		return make(map[string]Participant)
	}
	return maps.Clone(m)
}
