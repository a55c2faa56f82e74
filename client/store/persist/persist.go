// Package persist snapshots the client state into a storage backend and restores it on start.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/store"
	"github.com/rs/zerolog"
)

const (
	metaKey = "_persist"
	version = 1

	defaultFinalFlushTimeout = 3 * time.Second
)

var (
	ErrVersionMismatch = errors.New("persisted state version mismatch")
	ErrDecode          = errors.New("cannot decode persisted state")
)

// DefaultBlacklist lists branches which are never persisted.
var DefaultBlacklist = []string{"auth"}

type (
	Source interface {
		Dispatch(action.Action)
		GetState() store.State
		Subscribe(func(store.State)) func()
	}

	Config struct {
		Logger    *zerolog.Logger
		Storage   Storage
		Source    Source
		Key       string
		Blacklist []string
	}

	Persistor struct {
		logger    zerolog.Logger
		storage   Storage
		src       Source
		key       string
		blacklist []string
		dirty     chan struct{}
	}

	meta struct {
		Version int `json:"version"`
	}
)

func New(cfg Config) *Persistor {
	bl := cfg.Blacklist
	if bl == nil {
		bl = DefaultBlacklist
	}
	return &Persistor{
		logger:    cfg.Logger.With().Str("component", "persistor").Str("key", cfg.Key).Logger(),
		storage:   cfg.Storage,
		src:       cfg.Source,
		key:       cfg.Key,
		blacklist: bl,
		dirty:     make(chan struct{}, 1),
	}
}

// Rehydrate loads the snapshot, if any, and dispatches it into the store.
func (p *Persistor) Rehydrate(ctx context.Context) error {
	b, err := p.storage.Get(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		p.logger.Debug().Msg("nothing to rehydrate")
		return nil
	}
	if err != nil {
		return err
	}
	state, err := p.decode(b)
	if err != nil {
		return err
	}
	p.src.Dispatch(action.New(store.ActionRehydrate, state))
	p.logger.Debug().Msg("state rehydrated")
	return nil
}

// Run writes snapshots on state changes until ctx is done, then makes a final flush.
func (p *Persistor) Run(ctx context.Context) error {
	unsubscribe := p.src.Subscribe(func(store.State) {
		select {
		case p.dirty <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			fCtx, cancel := context.WithTimeout(context.Background(), defaultFinalFlushTimeout)
			defer cancel()
			return p.Flush(fCtx)
		case <-p.dirty:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to persist state")
			}
		}
	}
}

// Flush writes the current state.
func (p *Persistor) Flush(ctx context.Context) error {
	b, err := p.encode(p.src.GetState())
	if err != nil {
		return err
	}
	if err = p.storage.Set(ctx, p.key, b); err != nil {
		return fmt.Errorf("cannot write snapshot: %w", err)
	}
	p.logger.Trace().Int("size", len(b)).Msg("state persisted")
	return nil
}

// Purge removes the snapshot.
func (p *Persistor) Purge(ctx context.Context) error {
	return p.storage.Remove(ctx, p.key)
}

func (p *Persistor) encode(state store.State) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var branches map[string]json.RawMessage
	if err = json.Unmarshal(b, &branches); err != nil {
		return nil, err
	}
	for name := range branches {
		if slices.Contains(p.blacklist, name) {
			delete(branches, name)
		}
	}
	if branches[metaKey], err = json.Marshal(meta{Version: version}); err != nil {
		return nil, err
	}
	return json.Marshal(branches)
}

func (p *Persistor) decode(b []byte) (store.State, error) {
	state := store.InitialState()

	var branches map[string]json.RawMessage
	if err := json.Unmarshal(b, &branches); err != nil {
		return state, errors.Join(ErrDecode, err)
	}
	var m meta
	if err := json.Unmarshal(branches[metaKey], &m); err != nil || m.Version != version {
		return state, ErrVersionMismatch
	}
	delete(branches, metaKey)
	for _, name := range p.blacklist {
		delete(branches, name)
	}

	clean, err := json.Marshal(branches)
	if err != nil {
		return state, err
	}
	if err = json.Unmarshal(clean, &state); err != nil {
		return state, errors.Join(ErrDecode, err)
	}
	return state, nil
}
