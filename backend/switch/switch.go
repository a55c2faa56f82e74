package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/meeting-room/backend/model"
	"github.com/adwski/meeting-room/wire"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

// Switch delivers frames to the endpoints of a room instance.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]map[string]model.Wire),
	}
}

func (sw *Switch) Disconnect(instance, endpoint string) error {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("instance", instance).
			Str("endpoint", endpoint).
			Msg("endpoint disconnected")
	}()

	inst, ok := sw.fwd[instance]
	if ok {
		delete(inst, endpoint)
		if len(inst) == 0 {
			delete(sw.fwd, instance)
		}
	}
	return nil
}

func (sw *Switch) Connect(instance string, endpoint string, w model.Wire) error {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("instance", instance).
			Str("endpoint", endpoint).
			Msg("endpoint connected")
	}()

	inst, ok := sw.fwd[instance]
	if !ok {
		inst = make(map[string]model.Wire)
	}
	inst[endpoint] = w
	sw.fwd[instance] = inst
	return nil
}

// Send delivers frame to a single endpoint.
func (sw *Switch) Send(ctx context.Context, frame wire.Frame, instance, dst string) bool {
	logger := sw.logger.With().
		Str("instance", instance).
		Str("event", string(frame.Event)).
		Str("dst", dst).Logger()

	sw.mx.RLock()
	w, ok := sw.fwd[instance][dst]
	sw.mx.RUnlock()

	if !ok {
		logger.Debug().Msg("cannot forward, dst not found")
		return false
	}
	sent, _ := send(ctx, frame, w.TX, &logger)
	return sent
}

// Broadcast delivers frame to every endpoint of the instance except src and those rejected by accept.
func (sw *Switch) Broadcast(ctx context.Context, frame wire.Frame, instance, src string, accept func(endpoint string) bool) bool {
	logger := sw.logger.With().
		Str("instance", instance).
		Str("event", string(frame.Event)).
		Str("src", src).Logger()

	sw.mx.RLock()
	targets := make(map[string]model.Wire, len(sw.fwd[instance]))
	for dst, w := range sw.fwd[instance] {
		if dst != src && (accept == nil || accept(dst)) {
			targets[dst] = w
		}
	}
	sw.mx.RUnlock()

	var sent bool
	for _, w := range targets {
		frameSent, canceled := send(ctx, frame, w.TX, &logger)
		if canceled {
			break
		}
		if frameSent {
			sent = true
		}
	}
	if !sent {
		logger.Debug().Msg("broadcast did not reach anyone")
	}
	return sent
}

func send(ctx context.Context, frame wire.Frame, tx chan<- wire.Frame, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case tx <- frame:
		logger.Trace().Msg("frame is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
