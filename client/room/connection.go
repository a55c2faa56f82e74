package room

import (
	"context"
	"net/url"
	"sync"

	"github.com/adwski/meeting-room/client/socket"
	"github.com/adwski/meeting-room/wire"
	"github.com/rs/zerolog"
)

type (
	// Socket is the event socket driven by the middleware.
	Socket interface {
		ID() string
		On(wire.Event, socket.Handler)
		Connect(context.Context) error
		Emit(wire.Event, any) error
		Request(context.Context, wire.Event, any) *socket.Future
		Disconnect() error
	}

	// Dialer creates an unconnected socket for url with query parameters.
	Dialer func(url string, query url.Values) Socket

	// Connection owns at most one socket at a time.
	Connection struct {
		logger zerolog.Logger
		dial   Dialer
		url    string

		mx     *sync.Mutex
		sock   Socket
		ctx    context.Context
		cancel context.CancelFunc
	}
)

// NewSocketDialer returns a Dialer producing websocket event sockets.
func NewSocketDialer(logger *zerolog.Logger) Dialer {
	return func(u string, query url.Values) Socket {
		return socket.New(socket.Config{
			Logger: logger,
			URL:    u,
			Query:  query,
		})
	}
}

func NewConnection(logger *zerolog.Logger, socketURL string, dial Dialer) *Connection {
	return &Connection{
		logger: logger.With().Str("component", "room-connection").Logger(),
		dial:   dial,
		url:    socketURL,
		mx:     &sync.Mutex{},
	}
}

// Open replaces the current socket with a new one for roomName.
// register is called before the socket starts connecting, so no event is missed.
// Dialing happens in the background; a failure is reported to onErr.
func (c *Connection) Open(roomName string, register func(context.Context, Socket), onErr func(error)) Socket {
	c.mx.Lock()
	c.closeLocked()

	sock := c.dial(c.url, url.Values{wire.QueryRoomName: []string{roomName}})
	ctx, cancel := context.WithCancel(context.Background())
	c.sock, c.ctx, c.cancel = sock, ctx, cancel
	c.mx.Unlock()

	register(ctx, sock)
	c.logger.Debug().Str("roomName", roomName).Msg("socket created")

	go func() {
		if err := sock.Connect(ctx); err != nil {
			c.logger.Error().Err(err).Str("roomName", roomName).Msg("socket connect failed")
			if onErr != nil {
				onErr(err)
			}
		}
	}()
	return sock
}

// Socket returns the current socket and its lifetime context, or nil if there is none.
func (c *Connection) Socket() (Socket, context.Context) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.sock, c.ctx
}

// Close disconnects the current socket. It reports whether there was one.
func (c *Connection) Close() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() bool {
	if c.sock == nil {
		return false
	}
	if err := c.sock.Disconnect(); err != nil {
		c.logger.Error().Err(err).Msg("socket disconnect failed")
	}
	c.cancel()
	c.sock, c.ctx, c.cancel = nil, nil, nil
	c.logger.Debug().Msg("socket closed")
	return true
}
