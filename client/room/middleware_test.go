package room

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/socket"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emission struct {
	event wire.Event
	data  json.RawMessage
	ack   bool
}

type fakeSocket struct {
	mx          sync.Mutex
	id          string
	query       url.Values
	handlers    map[wire.Event][]socket.Handler
	emitted     []emission
	acks        map[wire.Event]json.RawMessage
	connects    int
	disconnects int
}

func (f *fakeSocket) ID() string { return f.id }

func (f *fakeSocket) On(event wire.Event, h socket.Handler) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
}

func (f *fakeSocket) Connect(context.Context) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.connects++
	return nil
}

func (f *fakeSocket) record(event wire.Event, data any, ack bool) {
	b, _ := json.Marshal(data)
	f.mx.Lock()
	defer f.mx.Unlock()
	f.emitted = append(f.emitted, emission{event: event, data: b, ack: ack})
}

func (f *fakeSocket) Emit(event wire.Event, data any) error {
	f.record(event, data, false)
	return nil
}

func (f *fakeSocket) Request(_ context.Context, event wire.Event, data any) *socket.Future {
	f.record(event, data, true)
	f.mx.Lock()
	ack, ok := f.acks[event]
	f.mx.Unlock()
	if !ok {
		return socket.Rejected(errors.New("no ack"))
	}
	return socket.Resolved(ack)
}

func (f *fakeSocket) Disconnect() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSocket) fire(event wire.Event, data string) {
	f.mx.Lock()
	hs := append([]socket.Handler(nil), f.handlers[event]...)
	f.mx.Unlock()
	for _, h := range hs {
		h(json.RawMessage(data))
	}
}

func (f *fakeSocket) emissions() []emission {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]emission(nil), f.emitted...)
}

type fakeService struct {
	mx    sync.Mutex
	calls []string
	sid   string
	data  []json.RawMessage
}

func (s *fakeService) call(name string, data json.RawMessage) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.calls = append(s.calls, name)
	if data != nil {
		s.data = append(s.data, data)
	}
}

func (s *fakeService) Connect(_ store.API, sid string) {
	s.mx.Lock()
	s.sid = sid
	s.mx.Unlock()
	s.call("connect", nil)
}
func (s *fakeService) HandlePeerMsg(_ store.API, d json.RawMessage) { s.call("peer-msg", d) }
func (s *fakeService) HandleParticipantMsg(_ store.API, d json.RawMessage) {
	s.call("participant-msg", d)
}
func (s *fakeService) HandlePeerConnected(_ store.API, d json.RawMessage) { s.call("peer-connected", d) }
func (s *fakeService) HandlePeerDisconnecting(_ store.API, d json.RawMessage) {
	s.call("peer-disconnecting", d)
}
func (s *fakeService) GetUserMedia(store.API, action.MediaConstraints) { s.call("get-user-media", nil) }
func (s *fakeService) GetShareScreen(store.API)                        { s.call("get-share-screen", nil) }
func (s *fakeService) SetStream(store.API, action.Stream)              { s.call("set-stream", nil) }
func (s *fakeService) CloseShareScreen(store.API)                      { s.call("close-share-screen", nil) }

func (s *fakeService) Calls() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.calls...)
}

type harness struct {
	store   *store.Store
	svc     *fakeService
	mx      sync.Mutex
	sockets []*fakeSocket
	seen    []action.Action
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	h := &harness{svc: &fakeService{}}
	dial := func(_ string, q url.Values) Socket {
		s := &fakeSocket{
			id:       "sid-1",
			query:    q,
			handlers: make(map[wire.Event][]socket.Handler),
			acks:     make(map[wire.Event]json.RawMessage),
		}
		h.mx.Lock()
		h.sockets = append(h.sockets, s)
		h.mx.Unlock()
		return s
	}
	mw := New(Config{
		Logger:     &logger,
		Service:    h.svc,
		Connection: NewConnection(&logger, "ws://relay/socket", dial),
	})
	recorder := func(store.API) func(store.Dispatch) store.Dispatch {
		return func(next store.Dispatch) store.Dispatch {
			return func(a action.Action) {
				h.mx.Lock()
				h.seen = append(h.seen, a)
				h.mx.Unlock()
				next(a)
			}
		}
	}
	h.store = store.New(store.Config{
		Logger:      &logger,
		Middlewares: []store.Middleware{mw.Handle, recorder},
	})
	return h
}

func (h *harness) connect(t *testing.T) *fakeSocket {
	t.Helper()
	h.store.Dispatch(action.New(action.RouterLocationChange, action.LocationChangePayload{Pathname: "/meeting/r1"}))
	h.store.Dispatch(action.New(action.RoomConnectSocket, nil))
	h.mx.Lock()
	defer h.mx.Unlock()
	require.NotEmpty(t, h.sockets)
	return h.sockets[len(h.sockets)-1]
}

func (h *harness) socketCount() int {
	h.mx.Lock()
	defer h.mx.Unlock()
	return len(h.sockets)
}

func (h *harness) actions(t action.Type) []action.Action {
	h.mx.Lock()
	defer h.mx.Unlock()
	var out []action.Action
	for _, a := range h.seen {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func (h *harness) waitAction(t *testing.T, typ action.Type) action.Action {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.actions(typ)) > 0 }, time.Second, 5*time.Millisecond)
	return h.actions(typ)[0]
}

func TestActionsForwardedWithoutSocket(t *testing.T) {
	h := newHarness(t)
	types := []action.Type{
		action.ChatSendMessage, action.RoomLogin, action.RoomSendUpdatePassword, action.RoomJoin,
		action.RoomLeave, action.ParticipantsSocketMsg, action.RoomSocketMsg,
		action.ParticipantsGetUserMedia, action.ParticipantsGetShareScreen, action.ParticipantsSetStream,
		action.ParticipantsCloseShareScreen, action.ParticipantsSetLocalSettingDevices,
		action.ParticipantsSetLocalSettingSharingScreen,
	}
	for _, typ := range types {
		require.NotPanics(t, func() { h.store.Dispatch(action.New(typ, nil)) })
		assert.Len(t, h.actions(typ), 1, string(typ))
	}
	assert.Empty(t, h.svc.Calls())
	assert.Zero(t, h.socketCount())
}

func TestConnectSocketCreatesOneSocket(t *testing.T) {
	h := newHarness(t)
	first := h.connect(t)
	assert.Equal(t, 1, h.socketCount())
	assert.Equal(t, "r1", first.query.Get(wire.QueryRoomName))
	assert.Eventually(t, func() bool {
		first.mx.Lock()
		defer first.mx.Unlock()
		return first.connects == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, h.actions(action.RoomConnectSocket), 1)

	second := h.connect(t)
	assert.Equal(t, 2, h.socketCount())
	assert.NotSame(t, first, second)
	first.mx.Lock()
	assert.Equal(t, 1, first.disconnects)
	first.mx.Unlock()
}

func TestConnectSocketPayloadRoomName(t *testing.T) {
	h := newHarness(t)
	h.store.Dispatch(action.New(action.RoomConnectSocket, action.ConnectSocketPayload{RoomName: "explicit"}))
	require.Equal(t, 1, h.socketCount())
	assert.Equal(t, "explicit", h.sockets[0].query.Get(wire.QueryRoomName))
	assert.Equal(t, "explicit", h.store.GetState().Room.RoomName)
}

func TestConnectSocketWithoutRoomName(t *testing.T) {
	h := newHarness(t)
	h.store.Dispatch(action.New(action.RoomConnectSocket, nil))
	assert.Zero(t, h.socketCount())
	assert.Len(t, h.actions(action.RoomConnectSocket), 1)
}

func TestInboundChatMsg(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	sock.fire(wire.EventChatMsg, `{"text":"hi"}`)

	got := h.waitAction(t, action.ChatReceiveMessage)
	assert.Equal(t, action.ChatMessage{Text: "hi", Status: action.MessageStatusSuccess, Me: false}, got.Payload)
	b, err := json.Marshal(got.Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi","status":"success","me":false}`, string(b))
}

func TestInboundRoomEvents(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	sock.fire(wire.EventRoomConfig, `{"hasPassword":true}`)
	sock.fire(wire.EventRoomSetPassword, `{"password":"secret"}`)
	sock.fire(wire.EventChatListMessage, `[{"uniqueId":"1","date_created":"2020","text":"old"}]`)
	sock.fire(wire.EventRoomConfig, `not json`)

	assert.Equal(t, action.RoomConfigPayload{HasPassword: true}, h.waitAction(t, action.RoomConfig).Payload)
	assert.Len(t, h.actions(action.RoomConfig), 1)
	assert.Equal(t, action.PasswordPayload{Password: "secret"}, h.waitAction(t, action.RoomSetPassword).Payload)
	assert.Equal(t, action.ListMessagesPayload{ListMessages: []action.ChatMessage{
		{UniqueID: "1", DateCreated: "2020", Text: "old"},
	}}, h.waitAction(t, action.ChatListMessages).Payload)

	st := h.store.GetState()
	assert.True(t, st.Room.HasPassword)
	assert.Equal(t, "secret", st.Room.Password)
	require.Len(t, st.Chat.Messages, 1)
	assert.Equal(t, action.MessageStatusSuccess, st.Chat.Messages[0].Status)
}

func TestInboundDelegatedToService(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	sock.fire(wire.EventConnect, `{"sid":"sid-1"}`)
	sock.fire(wire.EventPeerMsg, `{"type":"offer"}`)
	sock.fire(wire.EventParticipantMsg, `{"type":"setting-devices"}`)
	sock.fire(wire.EventPeerConnected, `{"participantId":"p2"}`)
	sock.fire(wire.EventPeerDisconnecting, `{"participantId":"p2"}`)
	sock.fire(wire.EventError, `"boom"`)

	assert.Equal(t, []string{
		"connect", "peer-msg", "participant-msg", "peer-connected", "peer-disconnecting",
	}, h.svc.Calls())
	assert.Equal(t, "sid-1", h.svc.sid)
	assert.JSONEq(t, `{"type":"offer"}`, string(h.svc.data[0]))
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)
	sock.acks[wire.EventChatMsg] = json.RawMessage(`{"uniqueId":"1","date_created":"2020"}`)

	h.store.Dispatch(action.New(action.ChatSendMessage, action.ChatMessage{
		Text: "hi", DateCreated: "x", Me: true, Status: action.MessageStatusPending,
	}))

	em := sock.emissions()
	require.Len(t, em, 1)
	assert.Equal(t, wire.EventChatMsg, em[0].event)
	assert.True(t, em[0].ack)
	assert.JSONEq(t, `{"text":"hi"}`, string(em[0].data))

	got := h.waitAction(t, action.ChatMessageSuccess)
	assert.Equal(t, action.MessageSuccessPayload{UniqueID: "1", DateCreated: "2020"}, got.Payload)

	require.Eventually(t, func() bool {
		msgs := h.store.GetState().Chat.Messages
		return len(msgs) == 1 && msgs[0].Status == action.MessageStatusSuccess
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1", h.store.GetState().Chat.Messages[0].UniqueID)
}

func TestSendMessageRejectedAck(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.store.Dispatch(action.New(action.ChatSendMessage, action.ChatMessage{Text: "hi"}))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.actions(action.ChatMessageSuccess))
	assert.Len(t, h.actions(action.ChatSendMessage), 1)
}

func TestLoginRoom(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		h := newHarness(t)
		sock := h.connect(t)
		sock.acks[wire.EventRoomLogin] = json.RawMessage(`false`)

		h.store.Dispatch(action.New(action.RoomLogin, action.PasswordPayload{Password: "wrong"}))

		em := sock.emissions()
		require.Len(t, em, 1)
		assert.JSONEq(t, `{"from":"sid-1","data":{"password":"wrong"}}`, string(em[0].data))

		got := h.waitAction(t, action.RoomLoginFail)
		assert.Equal(t, action.LoginFailPayload{MessageError: "Password incorrect"}, got.Payload)
		assert.Empty(t, h.actions(action.RoomLoginSuccess))
	})
	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		sock := h.connect(t)
		sock.acks[wire.EventRoomLogin] = json.RawMessage(`true`)

		h.store.Dispatch(action.New(action.RoomLogin, action.PasswordPayload{Password: "right"}))

		got := h.waitAction(t, action.RoomLoginSuccess)
		assert.Nil(t, got.Payload)
		assert.Empty(t, h.actions(action.RoomLoginFail))
	})
}

func TestUpdatePassword(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)
	sock.acks[wire.EventRoomUpdatePassword] = json.RawMessage(`"secret"`)

	h.store.Dispatch(action.New(action.RoomSendUpdatePassword, action.PasswordPayload{Password: "secret"}))

	assert.JSONEq(t, `{"password":"secret"}`, string(sock.emissions()[0].data))
	got := h.waitAction(t, action.RoomUpdatePassword)
	assert.Equal(t, action.PasswordPayload{Password: "secret"}, got.Payload)
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	h.store.Dispatch(action.New(action.RoomJoin, nil))
	h.store.Dispatch(action.New(action.RoomJoin, action.JoinRoomPayload{RoomName: "other"}))

	em := sock.emissions()
	require.Len(t, em, 2)
	assert.Equal(t, wire.EventUserJoinRoom, em[0].event)
	assert.JSONEq(t, `"r1"`, string(em[0].data))
	assert.JSONEq(t, `"other"`, string(em[1].data))
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness(t)
	require.NotPanics(t, func() { h.store.Dispatch(action.New(action.RoomLeave, nil)) })

	sock := h.connect(t)
	h.store.Dispatch(action.New(action.RoomLeave, nil))
	h.store.Dispatch(action.New(action.RoomLeave, nil))

	sock.mx.Lock()
	assert.Equal(t, 1, sock.disconnects)
	sock.mx.Unlock()
	assert.Len(t, h.actions(action.RoomLeave), 3)
	assert.False(t, h.store.GetState().Room.Connected)
}

func TestSocketMsgRouting(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	h.store.Dispatch(action.New(action.ParticipantsSocketMsg, action.SocketMsgPayload{Data: map[string]string{"type": "p"}}))
	h.store.Dispatch(action.New(action.RoomSocketMsg, action.SocketMsgPayload{Data: wire.PeerMessage{
		From: "a", To: "b", Type: wire.PeerMessageOffer, SDP: "v=0",
	}}))

	em := sock.emissions()
	require.Len(t, em, 2)
	assert.Equal(t, wire.EventParticipantMsg, em[0].event)
	assert.JSONEq(t, `{"type":"p"}`, string(em[0].data))
	assert.Equal(t, wire.EventPeerMsg, em[1].event)
	assert.JSONEq(t, `{"from":"a","to":"b","type":"offer","sdp":"v=0"}`, string(em[1].data))
}

func TestLocalSettingsBroadcast(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	for _, typ := range []action.Type{
		action.ParticipantsSetLocalSettingDevices, action.ParticipantsSetLocalSettingSharingScreen,
	} {
		h.store.Dispatch(action.New(typ, action.LocalSettingPayload{
			ParticipantID: "me",
			Settings:      action.DeviceSettings{Audio: true, SharingScreen: true},
		}))
	}

	em := sock.emissions()
	require.Len(t, em, 2)
	for _, e := range em {
		assert.Equal(t, wire.EventParticipantMsg, e.event)
		assert.JSONEq(t, `{"from":"me","to":"all","type":"setting-devices",
			"settings":{"audio":true,"video":false,"sharingScreen":true}}`, string(e.data))
	}
}

func TestMediaActionsDelegated(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.store.Dispatch(action.New(action.ParticipantsGetUserMedia, action.GetUserMediaPayload{
		Constraints: action.MediaConstraints{Audio: true},
	}))
	h.store.Dispatch(action.New(action.ParticipantsGetShareScreen, nil))
	h.store.Dispatch(action.New(action.ParticipantsSetStream, action.SetStreamPayload{Stream: action.Stream{ID: "s"}}))
	h.store.Dispatch(action.New(action.ParticipantsCloseShareScreen, nil))

	assert.Equal(t, []string{
		"get-user-media", "get-share-screen", "set-stream", "close-share-screen",
	}, h.svc.Calls())
}

func TestChatUnknownFieldsDropped(t *testing.T) {
	h := newHarness(t)
	sock := h.connect(t)

	sock.fire(wire.EventChatMsg, `{"uniqueId":"u1","date_created":"2020","text":"hi","userName":"ann","reaction":"+1"}`)
	got := h.waitAction(t, action.ChatReceiveMessage)
	b, err := json.Marshal(got.Payload)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"uniqueId":"u1","dateCreated":"2020","text":"hi","userName":"ann","status":"success","me":false}`,
		string(b))

	h.store.Dispatch(action.New(action.ChatSendMessage, action.ChatMessage{
		UniqueID: "local-1", DateCreated: "x", Me: true, Status: action.MessageStatusPending,
		Text: "yo", UserName: "bob", ParticipantID: "p1",
	}))
	em := sock.emissions()
	require.Len(t, em, 1)
	assert.JSONEq(t, `{"text":"yo","userName":"bob","participantId":"p1"}`, string(em[0].data))
}
