package room

import (
	"encoding/json"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/wire"
)

func (m *Middleware) inboundTable() map[wire.Event]inboundHandler {
	return map[wire.Event]inboundHandler{
		wire.EventConnect: func(api store.API, sock Socket, _ json.RawMessage) {
			m.svc.Connect(api, sock.ID())
		},
		wire.EventError: func(_ store.API, _ Socket, data json.RawMessage) {
			var msg string
			if err := json.Unmarshal(data, &msg); err != nil {
				msg = string(data)
			}
			m.logger.Error().Str("error", msg).Msg("socket error")
		},
		wire.EventDisconnect: func(_ store.API, sock Socket, _ json.RawMessage) {
			m.logger.Warn().Str("sid", sock.ID()).Msg("socket disconnected")
		},
		wire.EventRoomConfig: func(api store.API, _ Socket, data json.RawMessage) {
			cfg, ok := decode[wire.RoomConfig](m, wire.EventRoomConfig, data)
			if !ok {
				return
			}
			api.Dispatch(action.New(action.RoomConfig, action.RoomConfigPayload{
				HasPassword: cfg.HasPassword,
			}))
		},
		wire.EventRoomSetPassword: func(api store.API, _ Socket, data json.RawMessage) {
			pw, ok := decode[wire.RoomPassword](m, wire.EventRoomSetPassword, data)
			if !ok {
				return
			}
			api.Dispatch(action.New(action.RoomSetPassword, action.PasswordPayload{
				Password: pw.Password,
			}))
		},
		wire.EventChatListMessage: func(api store.API, _ Socket, data json.RawMessage) {
			list, ok := decode[[]wire.ChatMessage](m, wire.EventChatListMessage, data)
			if !ok {
				return
			}
			msgs := make([]action.ChatMessage, 0, len(list))
			for _, msg := range list {
				msgs = append(msgs, chatMessageFromWire(msg))
			}
			api.Dispatch(action.New(action.ChatListMessages, action.ListMessagesPayload{
				ListMessages: msgs,
			}))
		},
		wire.EventChatMsg: func(api store.API, _ Socket, data json.RawMessage) {
			msg, ok := decode[wire.ChatMessage](m, wire.EventChatMsg, data)
			if !ok {
				return
			}
			received := chatMessageFromWire(msg)
			received.Status = action.MessageStatusSuccess
			received.Me = false
			api.Dispatch(action.New(action.ChatReceiveMessage, received))
		},
		wire.EventPeerMsg: func(api store.API, _ Socket, data json.RawMessage) {
			m.svc.HandlePeerMsg(api, data)
		},
		wire.EventParticipantMsg: func(api store.API, _ Socket, data json.RawMessage) {
			m.svc.HandleParticipantMsg(api, data)
		},
		wire.EventPeerConnected: func(api store.API, _ Socket, data json.RawMessage) {
			m.svc.HandlePeerConnected(api, data)
		},
		wire.EventPeerDisconnecting: func(api store.API, _ Socket, data json.RawMessage) {
			m.svc.HandlePeerDisconnecting(api, data)
		},
	}
}

func chatMessageFromWire(msg wire.ChatMessage) action.ChatMessage {
	return action.ChatMessage{
		UniqueID:      msg.UniqueID,
		DateCreated:   msg.DateCreated,
		Text:          msg.Text,
		UserName:      msg.UserName,
		ParticipantID: msg.ParticipantID,
	}
}
