// Package socket is an event socket client: named events with JSON data and optional
// acknowledgements, multiplexed over a single websocket.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/adwski/meeting-room/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	defaultHandshakeTimeout         = 5 * time.Second
	defaultReadBufferSize           = 10000
	defaultWriteBufferSize          = 10000
	defaultMaxMessageSize           = 9000
	defaultWriteDeadline            = 5 * time.Second
	defaultCloseWriteDeadline       = 2 * time.Second
	defaultTXQueueSize              = 64
	defaultReadDeadlineAfterMessage = 15 * time.Second
)

var (
	ErrDisconnected     = errors.New("socket is disconnected")
	ErrAlreadyConnected = errors.New("socket is already connected")
	ErrEmptyAck         = errors.New("empty acknowledgement")
	ErrDial             = errors.New("unable to dial socket")
)

type (
	// Handler receives event data. Handlers run on the socket's receive goroutine in arrival order.
	Handler func(data json.RawMessage)

	Config struct {
		Logger *zerolog.Logger
		URL    string
		Query  url.Values
		Header http.Header
		Dialer *websocket.Dialer
	}

	Socket struct {
		logger zerolog.Logger
		url    string
		header http.Header
		dialer *websocket.Dialer

		id        *atomic.String
		started   *atomic.Bool
		connected *atomic.Bool
		seq       *atomic.Uint64

		hmx      *sync.RWMutex
		handlers map[wire.Event][]Handler

		pmx     *sync.Mutex
		pending map[uint64]*Future

		tx     chan wire.Frame
		ctx    context.Context
		cancel context.CancelFunc
		done   chan struct{}
	}
)

func New(cfg Config) *Socket {
	u := cfg.URL
	if len(cfg.Query) > 0 {
		if parsed, err := url.Parse(cfg.URL); err == nil {
			q := parsed.Query()
			for k, vs := range cfg.Query {
				for _, v := range vs {
					q.Add(k, v)
				}
			}
			parsed.RawQuery = q.Encode()
			u = parsed.String()
		}
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
			ReadBufferSize:   defaultReadBufferSize,
			WriteBufferSize:  defaultWriteBufferSize,
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		logger:    cfg.Logger.With().Str("component", "socket").Logger(),
		url:       u,
		header:    cfg.Header,
		dialer:    dialer,
		id:        atomic.NewString(""),
		started:   atomic.NewBool(false),
		connected: atomic.NewBool(false),
		seq:       atomic.NewUint64(0),
		hmx:       &sync.RWMutex{},
		handlers:  make(map[wire.Event][]Handler),
		pmx:       &sync.Mutex{},
		pending:   make(map[uint64]*Future),
		tx:        make(chan wire.Frame, defaultTXQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the id assigned by the relay during the connect handshake.
func (s *Socket) ID() string {
	return s.id.Load()
}

func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Done is closed once the socket has fully shut down.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// On registers a handler for event.
func (s *Socket) On(event wire.Event, h Handler) {
	s.hmx.Lock()
	defer s.hmx.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// Connect dials the relay and starts the socket goroutines.
// The connect event fires asynchronously once the relay assigns an id.
func (s *Socket) Connect(ctx context.Context) error {
	if !s.started.CAS(false, true) {
		return ErrAlreadyConnected
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.cancel()
		s.rejectPending()
		close(s.done)
		return errors.Join(ErrDial, err)
	}
	s.logger.Debug().Str("url", s.url).Msg("socket dialed")

	go s.run(conn)
	return nil
}

// Emit sends event without waiting for an acknowledgement.
func (s *Socket) Emit(event wire.Event, data any) error {
	frame, err := wire.NewFrame(event, data)
	if err != nil {
		return err
	}
	return s.enqueue(frame)
}

// Request sends event and returns a future resolved by the relay's acknowledgement.
func (s *Socket) Request(ctx context.Context, event wire.Event, data any) *Future {
	frame, err := wire.NewFrame(event, data)
	if err != nil {
		return Rejected(err)
	}
	frame.ID = s.seq.Inc()

	f := newFuture()
	s.pmx.Lock()
	s.pending[frame.ID] = f
	s.pmx.Unlock()

	if err = s.enqueue(frame); err != nil {
		s.settle(frame.ID, nil, err)
		return f
	}
	go func() {
		select {
		case <-ctx.Done():
			s.settle(frame.ID, nil, ctx.Err())
		case <-f.Done():
		}
	}()
	return f
}

// Disconnect starts closing the socket and returns immediately; Done reports completion.
// Repeated calls are no-ops.
func (s *Socket) Disconnect() error {
	s.cancel()
	return nil
}

// enqueue queues frame for the sender. Frames queued before Connect are sent once the
// socket is dialed and are dropped if the dial fails.
func (s *Socket) enqueue(frame wire.Frame) error {
	if s.ctx.Err() != nil {
		return ErrDisconnected
	}
	select {
	case <-s.ctx.Done():
		return ErrDisconnected
	case s.tx <- frame:
		return nil
	}
}

// rejectPending fails every unsettled request and drops queued frames.
// It must run after s.ctx is cancelled so no new frame can be queued.
func (s *Socket) rejectPending() {
	s.pmx.Lock()
	pending := s.pending
	s.pending = make(map[uint64]*Future)
	s.pmx.Unlock()
	for _, f := range pending {
		f.resolve(nil, ErrDisconnected)
	}
	for {
		select {
		case <-s.tx:
		default:
			return
		}
	}
}

func (s *Socket) settle(id uint64, data json.RawMessage, err error) {
	s.pmx.Lock()
	f, ok := s.pending[id]
	delete(s.pending, id)
	s.pmx.Unlock()
	if ok {
		f.resolve(data, err)
	}
}

func (s *Socket) run(conn *websocket.Conn) {
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		s.receiver(wg, conn)
		s.cancel()
	}()
	go func() {
		s.sender(wg, conn)
		s.cancel()
	}()
	wg.Wait()

	s.connected.Store(false)
	s.rejectPending()

	s.fire(wire.EventDisconnect, nil)
	s.logger.Debug().Str("sid", s.ID()).Msg("socket stopped")
	close(s.done)
}

func (s *Socket) fire(event wire.Event, data json.RawMessage) {
	s.hmx.RLock()
	handlers := append([]Handler(nil), s.handlers[event]...)
	s.hmx.RUnlock()

	if len(handlers) == 0 {
		s.logger.Trace().Str("event", string(event)).Msg("no handlers for event")
		return
	}
	for _, h := range handlers {
		h(data)
	}
}

func (s *Socket) fireError(err error) {
	b, _ := json.Marshal(err.Error())
	s.fire(wire.EventError, b)
}

func (s *Socket) sender(wg *sync.WaitGroup, conn *websocket.Conn) {
	defer func() {
		closer(conn, &s.logger)
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-s.ctx.Done():
			break SendLoop
		case frame := <-s.tx:
			b, err := json.Marshal(&frame)
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to marshal outgoing frame")
				if frame.ID != 0 {
					s.settle(frame.ID, nil, err)
				}
				continue
			}
			if err = conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
				s.logger.Error().Err(err).Msg("failed to set websocket write deadline")
				s.fireError(err)
				break SendLoop
			}
			if err = conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.logger.Error().Err(err).Msg("failed to write outgoing frame")
				s.fireError(err)
				break SendLoop
			}
			s.logger.Trace().Str("event", string(frame.Event)).Uint64("id", frame.ID).Msg("frame sent")
		}
	}
}

func (s *Socket) receiver(wg *sync.WaitGroup, conn *websocket.Conn) {
	defer wg.Done()

	conn.SetReadLimit(defaultMaxMessageSize)
	extendDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(defaultReadDeadlineAfterMessage))
	}
	conn.SetPingHandler(func(data string) error {
		s.logger.Trace().Msg("got ping")
		if err := extendDeadline(); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(defaultWriteDeadline))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	if err := extendDeadline(); err != nil {
		s.logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			switch {
			case s.ctx.Err() != nil:
				s.logger.Debug().Msg("receiver stopped by disconnect")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.logger.Warn().Err(err).Msg("connection closed by relay")
			default:
				s.logger.Error().Err(err).Msg("unexpected error during receive")
				s.fireError(err)
			}
			return
		}
		if err = extendDeadline(); err != nil {
			s.logger.Error().Err(err).Msg("failed to set websocket read deadline")
			return
		}

		var frame wire.Frame
		if err = json.Unmarshal(msg, &frame); err != nil {
			s.logger.Error().Err(err).Msg("failed to unmarshal incoming frame")
			continue
		}
		if err = frame.Validate(); err != nil {
			s.logger.Error().Err(err).Msg("invalid incoming frame")
			continue
		}
		s.handleFrame(&frame)
	}
}

func (s *Socket) handleFrame(frame *wire.Frame) {
	if frame.IsAck() {
		s.settle(frame.Ack, frame.Data, nil)
		return
	}
	if frame.Event == wire.EventConnect {
		var cd wire.ConnectData
		if err := json.Unmarshal(frame.Data, &cd); err != nil {
			s.logger.Error().Err(err).Msg("malformed connect frame")
			return
		}
		s.id.Store(cd.SID)
		s.connected.Store(true)
		s.logger.Debug().Str("sid", cd.SID).Msg("socket connected")
	}
	if frame.ID != 0 {
		s.logger.Debug().Str("event", string(frame.Event)).Msg("relay requested ack, not supported")
	}
	s.fire(frame.Event, frame.Data)
}

func closer(conn *websocket.Conn, logger *zerolog.Logger) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(defaultCloseWriteDeadline))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logger.Debug().Err(err).Msg("failed to send close message")
	}
	if err = conn.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close websocket connection")
	}
}
