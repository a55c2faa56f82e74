package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/store"
	"github.com/adwski/meeting-room/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a store.API that reduces actions and remembers them.
type recorder struct {
	st *store.Store
	mx sync.Mutex
	as []action.Action
}

func newRecorder() *recorder {
	logger := zerolog.Nop()
	return &recorder{st: store.New(store.Config{Logger: &logger})}
}

func (r *recorder) Dispatch(a action.Action) {
	r.mx.Lock()
	r.as = append(r.as, a)
	r.mx.Unlock()
	r.st.Dispatch(a)
}

func (r *recorder) GetState() store.State {
	return r.st.GetState()
}

func (r *recorder) peerMessages(typ string) []wire.PeerMessage {
	r.mx.Lock()
	defer r.mx.Unlock()
	var out []wire.PeerMessage
	for _, a := range r.as {
		if a.Type != action.RoomSocketMsg {
			continue
		}
		if msg, ok := a.Payload.(action.SocketMsgPayload).Data.(wire.PeerMessage); ok && msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

func (r *recorder) waitPeerMessage(t *testing.T, typ string) wire.PeerMessage {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.peerMessages(typ)) > 0 }, 5*time.Second, 10*time.Millisecond)
	return r.peerMessages(typ)[0]
}

func newTestService(t *testing.T, sid string) (*Service, *recorder) {
	t.Helper()
	logger := zerolog.Nop()
	svc := NewService(Config{Logger: &logger, UserName: sid + "-name"})
	t.Cleanup(func() { _ = svc.Close() })
	rec := newRecorder()
	svc.Connect(rec, sid)
	return svc, rec
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestConnect(t *testing.T) {
	_, rec := newTestService(t, "a")
	st := rec.GetState()
	assert.Equal(t, "a", st.User.ParticipantID)
	assert.Equal(t, "a-name", st.User.UserName)
	assert.Equal(t, "a", st.Room.SocketID)
	assert.True(t, st.Room.Connected)
}

func TestOfferAnswerExchange(t *testing.T) {
	a, recA := newTestService(t, "a")
	b, recB := newTestService(t, "b")

	a.HandlePeerConnected(recA, raw(t, wire.PeerLifecycle{ParticipantID: "b", UserName: "bob"}))
	assert.Contains(t, recA.GetState().Participants.Remote, "b")
	assert.Equal(t, "bob", recA.GetState().Participants.Remote["b"].UserName)

	offer := recA.waitPeerMessage(t, wire.PeerMessageOffer)
	assert.Equal(t, "a", offer.From)
	assert.Equal(t, "b", offer.To)
	assert.NotEmpty(t, offer.SDP)

	b.HandlePeerMsg(recB, raw(t, offer))
	assert.Equal(t, []string{"a"}, b.Peers())
	assert.Contains(t, recB.GetState().Participants.Remote, "a")

	answer := recB.waitPeerMessage(t, wire.PeerMessageAnswer)
	assert.Equal(t, "b", answer.From)
	assert.Equal(t, "a", answer.To)

	a.HandlePeerMsg(recA, raw(t, answer))
	p, ok := a.existing("b")
	require.True(t, ok)
	assert.NotNil(t, p.pc.RemoteDescription())

	for _, c := range recA.peerMessages(wire.PeerMessageCandidate) {
		b.HandlePeerMsg(recB, raw(t, c))
	}
}

func TestPeerMessageForSomeoneElse(t *testing.T) {
	b, recB := newTestService(t, "b")
	b.HandlePeerMsg(recB, raw(t, wire.PeerMessage{From: "a", To: "c", Type: wire.PeerMessageOffer, SDP: "x"}))
	assert.Empty(t, b.Peers())
}

func TestCandidateBeforeRemoteDescriptionIsQueued(t *testing.T) {
	a, recA := newTestService(t, "a")
	a.HandlePeerConnected(recA, raw(t, wire.PeerLifecycle{ParticipantID: "b"}))

	a.HandlePeerMsg(recA, raw(t, wire.PeerMessage{
		From:      "b",
		To:        "a",
		Type:      wire.PeerMessageCandidate,
		Candidate: json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host","sdpMid":"0"}`),
	}))
	p, ok := a.existing("b")
	require.True(t, ok)
	p.mx.Lock()
	assert.Len(t, p.candidates, 1)
	p.mx.Unlock()
}

func TestUnknownPeerAnswerIgnored(t *testing.T) {
	a, recA := newTestService(t, "a")
	require.NotPanics(t, func() {
		a.HandlePeerMsg(recA, raw(t, wire.PeerMessage{From: "zz", To: "a", Type: wire.PeerMessageAnswer}))
		a.HandlePeerMsg(recA, json.RawMessage(`garbage`))
	})
	assert.Empty(t, a.Peers())
}

func TestPeerDisconnecting(t *testing.T) {
	a, recA := newTestService(t, "a")
	a.HandlePeerConnected(recA, raw(t, wire.PeerLifecycle{ParticipantID: "b"}))
	require.Equal(t, []string{"b"}, a.Peers())

	a.HandlePeerDisconnecting(recA, raw(t, wire.PeerLifecycle{ParticipantID: "b"}))
	assert.Empty(t, a.Peers())
	assert.NotContains(t, recA.GetState().Participants.Remote, "b")
}

func TestPeerConnectedSelfIgnored(t *testing.T) {
	a, recA := newTestService(t, "a")
	a.HandlePeerConnected(recA, raw(t, wire.PeerLifecycle{ParticipantID: "a"}))
	assert.Empty(t, a.Peers())
}

func TestParticipantSettings(t *testing.T) {
	a, recA := newTestService(t, "a")
	a.HandleParticipantMsg(recA, raw(t, wire.ParticipantMessage{
		From:     "b",
		To:       wire.BroadcastDST,
		Type:     wire.ParticipantMessageSettingDevices,
		Settings: json.RawMessage(`{"audio":true,"video":false,"sharingScreen":true}`),
	}))
	a.HandleParticipantMsg(recA, raw(t, wire.ParticipantMessage{
		From: "a", Type: wire.ParticipantMessageSettingDevices, Settings: json.RawMessage(`{"video":true}`),
	}))

	remote := recA.GetState().Participants.Remote
	require.Contains(t, remote, "b")
	assert.Equal(t, action.DeviceSettings{Audio: true, SharingScreen: true}, remote["b"].Settings)
	assert.NotContains(t, remote, "a")
}

func TestUserMediaAndScreenShare(t *testing.T) {
	a, recA := newTestService(t, "a")
	a.HandlePeerConnected(recA, raw(t, wire.PeerLifecycle{ParticipantID: "b"}))
	offers := len(recA.peerMessages(wire.PeerMessageOffer))

	a.GetUserMedia(recA, action.MediaConstraints{Audio: true, Video: true})
	st := recA.GetState().Participants
	require.NotNil(t, st.LocalStream)
	assert.Len(t, st.LocalStream.Tracks, 2)
	assert.True(t, st.LocalSettings.Audio)
	assert.True(t, st.LocalSettings.Video)

	// the room middleware would route SET_STREAM back to the service
	a.SetStream(recA, *st.LocalStream)
	p, _ := a.existing("b")
	p.mx.Lock()
	assert.Len(t, p.senders, 2)
	p.mx.Unlock()
	assert.Greater(t, len(recA.peerMessages(wire.PeerMessageOffer)), offers)

	a.GetShareScreen(recA)
	assert.True(t, recA.GetState().Participants.LocalSettings.SharingScreen)
	p.mx.Lock()
	assert.Len(t, p.senders, 3)
	p.mx.Unlock()

	a.CloseShareScreen(recA)
	assert.False(t, recA.GetState().Participants.LocalSettings.SharingScreen)
	p.mx.Lock()
	assert.Len(t, p.senders, 2)
	p.mx.Unlock()
}

func TestGetUserMediaNothingRequested(t *testing.T) {
	a, recA := newTestService(t, "a")
	a.GetUserMedia(recA, action.MediaConstraints{})
	assert.Nil(t, recA.GetState().Participants.LocalStream)

	a.SetStream(recA, action.Stream{ID: "unknown"})
	assert.Empty(t, a.Peers())
}
