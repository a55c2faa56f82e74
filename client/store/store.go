// Package store is a unidirectional state container: actions pass through a middleware
// chain and are reduced into a new State.
package store

import (
	"sync"

	"github.com/adwski/meeting-room/client/action"
	"github.com/rs/zerolog"
)

type (
	Dispatch func(action.Action)

	Reducer func(State, action.Action) State

	// API is what middlewares and thunks see of the store.
	API interface {
		Dispatch(action.Action)
		GetState() State
	}

	Middleware func(API) func(next Dispatch) Dispatch

	Thunk func(API) error

	Config struct {
		Logger      *zerolog.Logger
		Reducer     Reducer
		Initial     *State
		Middlewares []Middleware
	}

	Store struct {
		logger   zerolog.Logger
		reducer  Reducer
		dispatch Dispatch

		mx    *sync.Mutex
		state State

		subMx   *sync.Mutex
		subs    map[int]func(State)
		nextSub int
	}
)

func New(cfg Config) *Store {
	s := &Store{
		logger:  cfg.Logger.With().Str("component", "store").Logger(),
		reducer: cfg.Reducer,
		mx:      &sync.Mutex{},
		subMx:   &sync.Mutex{},
		subs:    make(map[int]func(State)),
	}
	if s.reducer == nil {
		s.reducer = RootReducer
	}
	if cfg.Initial != nil {
		s.state = *cfg.Initial
	} else {
		s.state = InitialState()
	}

	// middlewares wrap the reducer, first middleware sees the action first
	dispatch := s.reduce
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		dispatch = cfg.Middlewares[i](s)(dispatch)
	}
	s.dispatch = dispatch
	return s
}

func (s *Store) Dispatch(a action.Action) {
	s.dispatch(a)
}

func (s *Store) GetState() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// Thunk runs fn against the store.
func (s *Store) Thunk(fn Thunk) error {
	return fn(s)
}

// Subscribe registers fn to be called with the new state after every reduced action.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMx.Lock()
	defer s.subMx.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMx.Lock()
		delete(s.subs, id)
		s.subMx.Unlock()
	}
}

func (s *Store) reduce(a action.Action) {
	s.mx.Lock()
	s.state = s.reducer(s.state, a)
	state := s.state
	s.mx.Unlock()

	s.logger.Trace().Str("type", string(a.Type)).Msg("action reduced")

	s.subMx.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMx.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
