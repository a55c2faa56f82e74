// Package room bridges the client store and the relay socket: socket events become store
// actions and selected store actions become socket emissions.
package room

import (
	"context"
	"encoding/json"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/socket"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

// MessagePasswordIncorrect is reported when the relay rejects a room login.
const MessagePasswordIncorrect = "Password incorrect"

type (
	// Service performs the media and peer connection work the middleware delegates.
	Service interface {
		Connect(api store.API, socketID string)
		HandlePeerMsg(api store.API, data json.RawMessage)
		HandleParticipantMsg(api store.API, data json.RawMessage)
		HandlePeerConnected(api store.API, data json.RawMessage)
		HandlePeerDisconnecting(api store.API, data json.RawMessage)
		GetUserMedia(api store.API, constraints action.MediaConstraints)
		GetShareScreen(api store.API)
		SetStream(api store.API, stream action.Stream)
		CloseShareScreen(api store.API)
	}

	Config struct {
		Logger     *zerolog.Logger
		Service    Service
		Connection *Connection
	}

	inboundHandler func(api store.API, sock Socket, data json.RawMessage)

	// outboundHandler reacts to an action while a socket exists.
	// The returned continuation, if any, runs on its own goroutine after the action is reduced.
	outboundHandler func(ctx context.Context, api store.API, sock Socket, a action.Action) func()

	Middleware struct {
		logger   zerolog.Logger
		svc      Service
		conn     *Connection
		inbound  map[wire.Event]inboundHandler
		outbound map[action.Type]outboundHandler
	}
)

func New(cfg Config) *Middleware {
	m := &Middleware{
		logger: cfg.Logger.With().Str("component", "room-middleware").Logger(),
		svc:    cfg.Service,
		conn:   cfg.Connection,
	}
	m.inbound = m.inboundTable()
	m.outbound = m.outboundTable()
	return m
}

// Handle is the store middleware.
func (m *Middleware) Handle(api store.API) func(next store.Dispatch) store.Dispatch {
	return func(next store.Dispatch) store.Dispatch {
		return func(a action.Action) {
			if a.Type == action.RoomConnectSocket {
				m.open(api, a)
			}

			var after func()
			if h, ok := m.outbound[a.Type]; ok {
				sock, ctx := m.conn.Socket()
				if sock == nil {
					m.missingSocket(a)
				} else {
					after = h(ctx, api, sock, a)
				}
			}

			next(a)

			if after != nil {
				go after()
			}
		}
	}
}

// Connection returns the connection owned by the middleware.
func (m *Middleware) Connection() *Connection {
	return m.conn
}

func (m *Middleware) open(api store.API, a action.Action) {
	roomName := ""
	if p, ok := store.PayloadAs[action.ConnectSocketPayload](a); ok {
		roomName = p.RoomName
	}
	if roomName == "" {
		state := api.GetState()
		if roomName = store.RoomNameFromPath(state.Router.Pathname); roomName == "" {
			roomName = state.Room.RoomName
		}
	}
	if roomName == "" {
		m.logger.Error().Msg("cannot connect socket, room name is unknown")
		return
	}

	m.conn.Open(roomName, func(_ context.Context, sock Socket) {
		for event, h := range m.inbound {
			h := h
			sock.On(event, func(data json.RawMessage) {
				h(api, sock, data)
			})
		}
	}, nil)
}

func (m *Middleware) missingSocket(a action.Action) {
	m.logger.Error().Str("type", string(a.Type)).Msg("socket hasn't been created yet")
	if e := m.logger.Trace(); e.Enabled() {
		e.Str("action", spew.Sdump(a)).Msg("action without socket")
	}
}

// awaitAck decodes the ack of f into T and passes it to fn. Rejections are logged only.
func awaitAck[T any](ctx context.Context, m *Middleware, event wire.Event, f *socket.Future, fn func(T)) func() {
	return func() {
		v, err := socket.AwaitAs[T](ctx, f)
		if err != nil {
			m.logger.Error().Err(err).Str("event", string(event)).Msg("no acknowledgement")
			return
		}
		fn(v)
	}
}

func decode[T any](m *Middleware, event wire.Event, data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		m.logger.Error().Err(err).Str("event", string(event)).Msg("malformed event data")
		return v, false
	}
	return v, true
}
