package room

import (
	"context"
	"encoding/json"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/wire"
)

func (m *Middleware) outboundTable() map[action.Type]outboundHandler {
	settings := m.emitLocalSettings
	return map[action.Type]outboundHandler{
		action.ChatSendMessage:                          m.sendMessage,
		action.RoomLogin:                                m.login,
		action.RoomSendUpdatePassword:                   m.updatePassword,
		action.RoomJoin:                                 m.join,
		action.RoomLeave:                                m.leave,
		action.ParticipantsSocketMsg:                    m.relay(wire.EventParticipantMsg),
		action.RoomSocketMsg:                            m.relay(wire.EventPeerMsg),
		action.ParticipantsSetLocalSettingDevices:       settings,
		action.ParticipantsSetLocalSettingSharingScreen: settings,

		action.ParticipantsGetUserMedia: func(_ context.Context, api store.API, _ Socket, a action.Action) func() {
			p, _ := store.PayloadAs[action.GetUserMediaPayload](a)
			m.svc.GetUserMedia(api, p.Constraints)
			return nil
		},
		action.ParticipantsGetShareScreen: func(_ context.Context, api store.API, _ Socket, _ action.Action) func() {
			m.svc.GetShareScreen(api)
			return nil
		},
		action.ParticipantsSetStream: func(_ context.Context, api store.API, _ Socket, a action.Action) func() {
			p, ok := store.PayloadAs[action.SetStreamPayload](a)
			if !ok {
				m.logger.Error().Msg("set stream without stream")
				return nil
			}
			m.svc.SetStream(api, p.Stream)
			return nil
		},
		action.ParticipantsCloseShareScreen: func(_ context.Context, api store.API, _ Socket, _ action.Action) func() {
			m.svc.CloseShareScreen(api)
			return nil
		},
	}
}

func (m *Middleware) sendMessage(ctx context.Context, api store.API, sock Socket, a action.Action) func() {
	msg, ok := store.PayloadAs[action.ChatMessage](a)
	if !ok {
		m.logger.Error().Msg("send message without message")
		return nil
	}
	f := sock.Request(ctx, wire.EventChatMsg, wire.OutgoingChatMessage{
		Text:          msg.Text,
		UserName:      msg.UserName,
		ParticipantID: msg.ParticipantID,
	})
	return awaitAck(ctx, m, wire.EventChatMsg, f, func(ack wire.MessageAck) {
		api.Dispatch(action.New(action.ChatMessageSuccess, action.MessageSuccessPayload{
			UniqueID:    ack.UniqueID,
			DateCreated: ack.DateCreated,
		}))
	})
}

func (m *Middleware) login(ctx context.Context, api store.API, sock Socket, a action.Action) func() {
	pw, _ := store.PayloadAs[action.PasswordPayload](a)
	f := sock.Request(ctx, wire.EventRoomLogin, wire.LoginData{
		From: sock.ID(),
		Data: wire.RoomPassword{Password: pw.Password},
	})
	return awaitAck(ctx, m, wire.EventRoomLogin, f, func(isLogged bool) {
		if isLogged {
			api.Dispatch(action.New(action.RoomLoginSuccess, nil))
			return
		}
		api.Dispatch(action.New(action.RoomLoginFail, action.LoginFailPayload{
			MessageError: MessagePasswordIncorrect,
		}))
	})
}

func (m *Middleware) updatePassword(ctx context.Context, api store.API, sock Socket, a action.Action) func() {
	pw, _ := store.PayloadAs[action.PasswordPayload](a)
	f := sock.Request(ctx, wire.EventRoomUpdatePassword, wire.RoomPassword{Password: pw.Password})
	return awaitAck(ctx, m, wire.EventRoomUpdatePassword, f, func(password string) {
		api.Dispatch(action.New(action.RoomUpdatePassword, action.PasswordPayload{
			Password: password,
		}))
	})
}

func (m *Middleware) join(_ context.Context, api store.API, sock Socket, a action.Action) func() {
	p, _ := store.PayloadAs[action.JoinRoomPayload](a)
	roomName := p.RoomName
	if roomName == "" {
		roomName = api.GetState().Room.RoomName
	}
	m.emit(sock, wire.EventUserJoinRoom, roomName)
	return nil
}

func (m *Middleware) leave(_ context.Context, _ store.API, _ Socket, _ action.Action) func() {
	m.conn.Close()
	return nil
}

// relay emits the opaque signaling body of a SOCKET_MSG action on event.
func (m *Middleware) relay(event wire.Event) outboundHandler {
	return func(_ context.Context, _ store.API, sock Socket, a action.Action) func() {
		p, ok := store.PayloadAs[action.SocketMsgPayload](a)
		if !ok {
			m.logger.Error().Str("type", string(a.Type)).Msg("socket message without data")
			return nil
		}
		m.emit(sock, event, p.Data)
		return nil
	}
}

func (m *Middleware) emitLocalSettings(_ context.Context, _ store.API, sock Socket, a action.Action) func() {
	p, ok := store.PayloadAs[action.LocalSettingPayload](a)
	if !ok {
		m.logger.Error().Str("type", string(a.Type)).Msg("local settings without payload")
		return nil
	}
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		m.logger.Error().Err(err).Msg("cannot marshal settings")
		return nil
	}
	m.emit(sock, wire.EventParticipantMsg, wire.ParticipantMessage{
		From:     p.ParticipantID,
		To:       wire.BroadcastDST,
		Type:     wire.ParticipantMessageSettingDevices,
		Settings: settings,
	})
	return nil
}

func (m *Middleware) emit(sock Socket, event wire.Event, data any) {
	if err := sock.Emit(event, data); err != nil {
		m.logger.Error().Err(err).Str("event", string(event)).Msg("emit failed")
	}
}
