// Package meeting assembles a headless meeting participant: the store with the room
// middleware, the signaling service and state persistence.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/room"
	"github.com/adwski/meeting-room/client/signaling"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/client/store/persist"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultStepTimeout = 10 * time.Second

var (
	ErrLoginFailed = errors.New("room login failed")
	ErrStepTimeout = errors.New("room did not respond in time")
	ErrNotJoined   = errors.New("not joined")
)

type (
	Config struct {
		Logger     *zerolog.Logger
		SocketURL  string
		Room       string
		UserName   string
		Password   string
		ICEServers []string

		// Media is requested after joining; nil joins without local media.
		Media  *action.MediaConstraints
		Source signaling.MediaSource

		Storage    persist.Storage
		PersistKey string

		// Dialer overrides the websocket socket dialer.
		Dialer      room.Dialer
		StepTimeout time.Duration
	}

	Meeting struct {
		logger    zerolog.Logger
		cfg       Config
		store     *store.Store
		svc       *signaling.Service
		mw        *room.Middleware
		persistor *persist.Persistor

		wmx     *sync.Mutex
		waiters map[int]*waiter
		nextW   int
	}

	waiter struct {
		id    int
		types []action.Type
		ch    chan action.Action
	}
)

func New(cfg Config) *Meeting {
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = room.NewSocketDialer(cfg.Logger)
	}
	m := &Meeting{
		logger:  cfg.Logger.With().Str("component", "meeting").Str("room", cfg.Room).Logger(),
		cfg:     cfg,
		wmx:     &sync.Mutex{},
		waiters: make(map[int]*waiter),
	}
	m.svc = signaling.NewService(signaling.Config{
		Logger:     cfg.Logger,
		ICEServers: cfg.ICEServers,
		Source:     cfg.Source,
		UserName:   cfg.UserName,
	})
	m.mw = room.New(room.Config{
		Logger:     cfg.Logger,
		Service:    m.svc,
		Connection: room.NewConnection(cfg.Logger, cfg.SocketURL, dial),
	})
	m.store = store.New(store.Config{
		Logger:      cfg.Logger,
		Middlewares: []store.Middleware{m.observe, m.mw.Handle},
	})
	if cfg.Storage != nil {
		m.persistor = persist.New(persist.Config{
			Logger:  cfg.Logger,
			Storage: cfg.Storage,
			Source:  m.store,
			Key:     cfg.PersistKey,
		})
	}
	return m
}

func (m *Meeting) Store() *store.Store {
	return m.store
}

// Run restores the persisted state, joins the room and keeps the session until ctx is done.
// ready, if not nil, is called once the room is joined.
func (m *Meeting) Run(ctx context.Context, ready func()) error {
	if m.persistor != nil {
		if err := m.persistor.Rehydrate(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("persisted state ignored")
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if m.persistor != nil {
		eg.Go(func() error {
			return m.persistor.Run(egCtx)
		})
	}
	eg.Go(func() error {
		defer m.Leave()
		if err := m.Join(egCtx); err != nil {
			return err
		}
		if ready != nil {
			ready()
		}
		<-egCtx.Done()
		return nil
	})
	return eg.Wait()
}

// Join opens the room socket, logs in when the room is protected, joins the call
// and requests local media.
func (m *Meeting) Join(ctx context.Context) error {
	configured := m.expect(action.RoomConfig)
	m.store.Dispatch(action.New(action.RouterLocationChange, action.LocationChangePayload{
		Pathname: "/meeting/" + m.cfg.Room,
	}))
	m.store.Dispatch(action.New(action.RoomConnectSocket, action.ConnectSocketPayload{RoomName: m.cfg.Room}))
	if _, err := m.await(ctx, configured); err != nil {
		return err
	}

	if !m.store.GetState().Room.CanJoin() {
		logged := m.expect(action.RoomLoginSuccess, action.RoomLoginFail)
		m.store.Dispatch(action.New(action.RoomLogin, action.PasswordPayload{Password: m.cfg.Password}))
		a, err := m.await(ctx, logged)
		if err != nil {
			return err
		}
		if a.Type == action.RoomLoginFail {
			p, _ := store.PayloadAs[action.LoginFailPayload](a)
			return fmt.Errorf("%w: %s", ErrLoginFailed, p.MessageError)
		}
	}

	m.store.Dispatch(action.New(action.RoomJoin, action.JoinRoomPayload{RoomName: m.cfg.Room}))
	m.logger.Info().Msg("joined")

	if m.cfg.Media != nil {
		m.store.Dispatch(action.New(action.ParticipantsGetUserMedia, action.GetUserMediaPayload{
			Constraints: *m.cfg.Media,
		}))
	}
	return nil
}

// Send posts a chat message and waits for the relay to acknowledge it.
func (m *Meeting) Send(ctx context.Context, text string) error {
	state := m.store.GetState()
	if !state.Room.Joined {
		return ErrNotJoined
	}
	acked := m.expect(action.ChatMessageSuccess)
	m.store.Dispatch(action.New(action.ChatSendMessage, action.ChatMessage{
		Text:          text,
		UserName:      state.User.UserName,
		ParticipantID: state.User.ParticipantID,
		Status:        action.MessageStatusPending,
	}))
	_, err := m.await(ctx, acked)
	return err
}

// UpdatePassword changes the room password; an empty password removes it.
func (m *Meeting) UpdatePassword(ctx context.Context, password string) error {
	updated := m.expect(action.RoomUpdatePassword)
	m.store.Dispatch(action.New(action.RoomSendUpdatePassword, action.PasswordPayload{Password: password}))
	_, err := m.await(ctx, updated)
	return err
}

// ShareScreen toggles the screen share track.
func (m *Meeting) ShareScreen(on bool) {
	if on {
		m.store.Dispatch(action.New(action.ParticipantsGetShareScreen, nil))
		return
	}
	m.store.Dispatch(action.New(action.ParticipantsCloseShareScreen, nil))
}

// Leave closes the room socket and every peer connection.
func (m *Meeting) Leave() {
	m.store.Dispatch(action.New(action.RoomLeave, nil))
	if err := m.svc.Close(); err != nil {
		m.logger.Error().Err(err).Msg("failed to close peer connections")
	}
}

// observe feeds reduced actions to pending waiters.
func (m *Meeting) observe(_ store.API) func(next store.Dispatch) store.Dispatch {
	return func(next store.Dispatch) store.Dispatch {
		return func(a action.Action) {
			next(a)
			m.notify(a)
		}
	}
}

func (m *Meeting) notify(a action.Action) {
	m.wmx.Lock()
	defer m.wmx.Unlock()
	for id, w := range m.waiters {
		if slices.Contains(w.types, a.Type) {
			w.ch <- a
			delete(m.waiters, id)
		}
	}
}

// expect registers interest in the next action of any of types. It must be called
// before the dispatch that leads to it.
func (m *Meeting) expect(types ...action.Type) *waiter {
	m.wmx.Lock()
	defer m.wmx.Unlock()
	m.nextW++
	w := &waiter{id: m.nextW, types: types, ch: make(chan action.Action, 1)}
	m.waiters[w.id] = w
	return w
}

func (m *Meeting) await(ctx context.Context, w *waiter) (action.Action, error) {
	timer := time.NewTimer(m.cfg.StepTimeout)
	defer timer.Stop()
	select {
	case a := <-w.ch:
		return a, nil
	case <-ctx.Done():
		m.drop(w)
		return action.Action{}, ctx.Err()
	case <-timer.C:
		m.drop(w)
		return action.Action{}, fmt.Errorf("%w: waiting for %v", ErrStepTimeout, w.types)
	}
}

func (m *Meeting) drop(w *waiter) {
	m.wmx.Lock()
	delete(m.waiters, w.id)
	m.wmx.Unlock()
}
