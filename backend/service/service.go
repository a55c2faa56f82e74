package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adwski/meeting-room/backend/model"
	"github.com/adwski/meeting-room/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultWelcomeTimeout = 2 * time.Second
)

var (
	ErrJoin         = errors.New("unable to join room")
	ErrGet          = errors.New("unable to get room")
	ErrConnect      = errors.New("unable to connect")
	ErrDisconnect   = errors.New("unable to disconnect")
	ErrWelcome      = errors.New("unable to send welcome frames")
	ErrNotLogged    = errors.New("login is required")
	ErrBadPayload   = errors.New("malformed frame payload")
	ErrUnknownEvent = errors.New("unknown event")
)

type (
	RoomStore interface {
		CreateOrJoinRoom(roomID string, userID string) (*model.Room, error)
		LeaveRoom(roomID string, userID string) (model.Participant, error)
		GetRoom(roomID string) (*model.Room, error)
		ListRooms() []*model.Room
		SetPasswordHash(roomID string, hash []byte) error
		UpdateParticipant(roomID, userID string, fn func(*model.Participant)) (model.Participant, error)
		AppendMessage(roomID string, msg wire.ChatMessage) error
	}

	Switch interface {
		Connect(roomID string, userID string, w model.Wire) error
		Disconnect(roomID string, userID string) error
		Send(ctx context.Context, frame wire.Frame, roomID, dst string) bool
		Broadcast(ctx context.Context, frame wire.Frame, roomID, src string, accept func(string) bool) bool
	}

	Service struct {
		store      RoomStore
		sw         Switch
		logger     zerolog.Logger
		bcryptCost int
		now        func() time.Time
	}

	Config struct {
		RoomStore  RoomStore
		Switch     Switch
		Logger     *zerolog.Logger
		BcryptCost int
	}

	// RoomInfo is the public summary of a room.
	RoomInfo struct {
		ID           string `json:"room_id"`
		HasPassword  bool   `json:"hasPassword"`
		Participants int    `json:"participants"`
		Joined       int    `json:"joined"`
		Messages     int    `json:"messages"`
	}

	session struct {
		roomID string
		sid    string
		w      model.Wire
		logger zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:      cfg.RoomStore,
		sw:         cfg.Switch,
		logger:     cfg.Logger.With().Str("component", "service").Logger(),
		bcryptCost: cost,
		now:        time.Now,
	}
}

// CreateSignalingSession registers the socket sid in the room, greets it and
// starts serving frames arriving on w.RX until ctx is done or RX is closed.
func (svc *Service) CreateSignalingSession(ctx context.Context, roomID, sid string, w model.Wire) error {
	room, err := svc.store.CreateOrJoinRoom(roomID, sid)
	if err != nil {
		return errors.Join(ErrJoin, err)
	}
	if err = svc.sw.Connect(roomID, sid, w); err != nil {
		_, _ = svc.store.LeaveRoom(roomID, sid)
		return errors.Join(ErrConnect, err)
	}

	s := &session{
		roomID: roomID,
		sid:    sid,
		w:      w,
		logger: svc.logger.With().Str("roomID", roomID).Str("sid", sid).Logger(),
	}
	if err = svc.welcome(ctx, s, room); err != nil {
		_ = svc.sw.Disconnect(roomID, sid)
		_, _ = svc.store.LeaveRoom(roomID, sid)
		return errors.Join(ErrWelcome, err)
	}
	s.logger.Debug().Msg("signaling session connected")

	go svc.serveSession(ctx, s)
	return nil
}

// DeleteSignalingSession removes sid from the room and tells the remaining
// members when it had joined the call.
func (svc *Service) DeleteSignalingSession(ctx context.Context, roomID, sid string) error {
	err := svc.sw.Disconnect(roomID, sid)
	if err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	p, err := svc.store.LeaveRoom(roomID, sid)
	if err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	svc.logger.Debug().
		Str("sid", sid).
		Str("roomID", roomID).
		Msg("signaling session deleted")

	if p.Joined {
		frame, _ := wire.NewFrame(wire.EventPeerDisconnecting, wire.PeerLifecycle{
			ParticipantID: sid,
			UserName:      p.UserName,
		})
		svc.sw.Broadcast(ctx, frame, roomID, sid, nil)
	}
	return nil
}

// RoomInfo returns the summary of a room.
func (svc *Service) RoomInfo(roomID string) (*RoomInfo, error) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return roomInfo(room), nil
}

// Rooms returns summaries of all active rooms.
func (svc *Service) Rooms() []*RoomInfo {
	rooms := svc.store.ListRooms()
	infos := make([]*RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, roomInfo(room))
	}
	return infos
}

func roomInfo(room *model.Room) *RoomInfo {
	info := &RoomInfo{
		ID:           room.ID,
		HasPassword:  room.HasPassword(),
		Participants: len(room.Participants),
		Messages:     len(room.Messages),
	}
	for _, p := range room.Participants {
		if p.Joined {
			info.Joined++
		}
	}
	return info
}

// welcome sends the connect handshake, room config and chat history, in this order.
func (svc *Service) welcome(ctx context.Context, s *session, room *model.Room) error {
	history := room.Messages
	if history == nil {
		history = []wire.ChatMessage{}
	}
	frames := make([]wire.Frame, 0, 3)
	for _, ev := range []struct {
		event wire.Event
		data  any
	}{
		{wire.EventConnect, wire.ConnectData{SID: s.sid}},
		{wire.EventRoomConfig, wire.RoomConfig{HasPassword: room.HasPassword()}},
		{wire.EventChatListMessage, history},
	} {
		frame, err := wire.NewFrame(ev.event, ev.data)
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}

	wCtx, cancel := context.WithTimeout(ctx, defaultWelcomeTimeout)
	defer cancel()
	for _, frame := range frames {
		if !svc.sw.Send(wCtx, frame, s.roomID, s.sid) {
			return fmt.Errorf("%s was not delivered", frame.Event)
		}
	}
	return nil
}

func (svc *Service) serveSession(ctx context.Context, s *session) {
	defer s.logger.Debug().Msg("session loop stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-s.w.RX:
			if !ok {
				return
			}
			if err := svc.handle(ctx, s, in.Frame); err != nil {
				s.logger.Warn().Err(err).Str("event", string(in.Frame.Event)).Msg("frame rejected")
			}
		}
	}
}

func (svc *Service) handle(ctx context.Context, s *session, frame wire.Frame) error {
	switch frame.Event {
	case wire.EventRoomLogin:
		return svc.login(ctx, s, frame)
	case wire.EventRoomUpdatePassword:
		return svc.updatePassword(ctx, s, frame)
	case wire.EventUserJoinRoom:
		return svc.joinRoom(ctx, s, frame)
	case wire.EventChatMsg:
		return svc.chatMessage(ctx, s, frame)
	case wire.EventPeerMsg:
		return svc.routePeer(ctx, s, frame)
	case wire.EventParticipantMsg:
		return svc.routeParticipant(ctx, s, frame)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

func (svc *Service) login(ctx context.Context, s *session, frame wire.Frame) error {
	var req wire.LoginData
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return errors.Join(ErrBadPayload, err)
	}
	room, err := svc.store.GetRoom(s.roomID)
	if err != nil {
		return errors.Join(ErrGet, err)
	}

	ok := !room.HasPassword() ||
		bcrypt.CompareHashAndPassword(room.PasswordHash, []byte(req.Data.Password)) == nil
	if ok {
		if _, err = svc.store.UpdateParticipant(s.roomID, s.sid, func(p *model.Participant) {
			p.Logged = true
		}); err != nil {
			return err
		}
	}
	s.logger.Debug().Bool("success", ok).Msg("login attempt")
	return svc.ack(ctx, s, frame, ok)
}

func (svc *Service) updatePassword(ctx context.Context, s *session, frame wire.Frame) error {
	var req wire.RoomPassword
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return errors.Join(ErrBadPayload, err)
	}
	if err := svc.requireLogin(s); err != nil {
		return err
	}

	var hash []byte
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), svc.bcryptCost)
		if err != nil {
			return err
		}
		hash = h
	}
	if err := svc.store.SetPasswordHash(s.roomID, hash); err != nil {
		return err
	}
	// Current members receive the new password below, so they stay logged in.
	room, err := svc.store.GetRoom(s.roomID)
	if err != nil {
		return errors.Join(ErrGet, err)
	}
	for id := range room.Participants {
		if _, err = svc.store.UpdateParticipant(s.roomID, id, func(p *model.Participant) {
			p.Logged = true
		}); err != nil {
			s.logger.Debug().Err(err).Str("participant", id).Msg("participant left before login update")
		}
	}
	if err := svc.ack(ctx, s, frame, req.Password); err != nil {
		return err
	}

	cfg, _ := wire.NewFrame(wire.EventRoomConfig, wire.RoomConfig{HasPassword: hash != nil})
	svc.sw.Broadcast(ctx, cfg, s.roomID, s.sid, nil)
	pwd, _ := wire.NewFrame(wire.EventRoomSetPassword, req)
	svc.sw.Broadcast(ctx, pwd, s.roomID, s.sid, nil)
	return nil
}

func (svc *Service) joinRoom(ctx context.Context, s *session, frame wire.Frame) error {
	if err := svc.requireLogin(s); err != nil {
		return err
	}
	p, err := svc.store.UpdateParticipant(s.roomID, s.sid, func(p *model.Participant) {
		p.Joined = true
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Msg("participant joined the call")

	joined, err := svc.joinedMembers(s.roomID)
	if err != nil {
		return err
	}
	out, _ := wire.NewFrame(wire.EventPeerConnected, wire.PeerLifecycle{
		ParticipantID: s.sid,
		UserName:      p.UserName,
	})
	svc.sw.Broadcast(ctx, out, s.roomID, s.sid, func(dst string) bool {
		_, ok := joined[dst]
		return ok
	})
	if frame.ID != 0 {
		return svc.ack(ctx, s, frame, true)
	}
	return nil
}

func (svc *Service) chatMessage(ctx context.Context, s *session, frame wire.Frame) error {
	var in wire.OutgoingChatMessage
	if err := json.Unmarshal(frame.Data, &in); err != nil {
		return errors.Join(ErrBadPayload, err)
	}
	if err := svc.requireLogin(s); err != nil {
		return err
	}

	msg := wire.ChatMessage{
		UniqueID:      uuid.NewString(),
		DateCreated:   svc.now().UTC().Format(time.RFC3339),
		Text:          in.Text,
		UserName:      in.UserName,
		ParticipantID: in.ParticipantID,
	}
	if msg.ParticipantID == "" {
		msg.ParticipantID = s.sid
	}
	if in.UserName != "" {
		if _, err := svc.store.UpdateParticipant(s.roomID, s.sid, func(p *model.Participant) {
			p.UserName = in.UserName
		}); err != nil {
			s.logger.Debug().Err(err).Msg("cannot record user name")
		}
	}
	if err := svc.store.AppendMessage(s.roomID, msg); err != nil {
		return err
	}
	if err := svc.ack(ctx, s, frame, wire.MessageAck{
		UniqueID:    msg.UniqueID,
		DateCreated: msg.DateCreated,
	}); err != nil {
		return err
	}
	out, _ := wire.NewFrame(wire.EventChatMsg, msg)
	svc.sw.Broadcast(ctx, out, s.roomID, s.sid, nil)
	return nil
}

func (svc *Service) routePeer(ctx context.Context, s *session, frame wire.Frame) error {
	var msg wire.PeerMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		return errors.Join(ErrBadPayload, err)
	}
	msg.From = s.sid
	out, err := wire.NewFrame(wire.EventPeerMsg, msg)
	if err != nil {
		return err
	}
	svc.route(ctx, s, out, msg.To)
	return nil
}

func (svc *Service) routeParticipant(ctx context.Context, s *session, frame wire.Frame) error {
	var msg wire.ParticipantMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		return errors.Join(ErrBadPayload, err)
	}
	msg.From = s.sid
	out, err := wire.NewFrame(wire.EventParticipantMsg, msg)
	if err != nil {
		return err
	}
	svc.route(ctx, s, out, msg.To)
	return nil
}

func (svc *Service) route(ctx context.Context, s *session, frame wire.Frame, to string) {
	if to == "" || to == wire.BroadcastDST {
		svc.sw.Broadcast(ctx, frame, s.roomID, s.sid, nil)
		return
	}
	svc.sw.Send(ctx, frame, s.roomID, to)
}

func (svc *Service) requireLogin(s *session) error {
	room, err := svc.store.GetRoom(s.roomID)
	if err != nil {
		return errors.Join(ErrGet, err)
	}
	if room.HasPassword() && !room.Participants[s.sid].Logged {
		return ErrNotLogged
	}
	return nil
}

func (svc *Service) joinedMembers(roomID string) (map[string]struct{}, error) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	joined := make(map[string]struct{}, len(room.Participants))
	for id, p := range room.Participants {
		if p.Joined {
			joined[id] = struct{}{}
		}
	}
	return joined, nil
}

func (svc *Service) ack(ctx context.Context, s *session, frame wire.Frame, data any) error {
	if frame.ID == 0 {
		return nil
	}
	out, err := wire.NewAck(frame.ID, data)
	if err != nil {
		return err
	}
	if !svc.sw.Send(ctx, out, s.roomID, s.sid) {
		s.logger.Warn().Uint64("id", frame.ID).Msg("ack was not delivered")
	}
	return nil
}
