package meeting

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/meeting-room/backend/server/websocket"
	"github.com/adwski/meeting-room/backend/service"
	"github.com/adwski/meeting-room/backend/storage/memory"
	_switch "github.com/adwski/meeting-room/backend/switch"
	"github.com/adwski/meeting-room/client/action"
	"github.com/adwski/meeting-room/client/store/persist"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func startRelay(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore:  memory.NewMemStore(memory.Config{}),
		Switch:     _switch.NewSwitch(&logger),
		Logger:     &logger,
		BcryptCost: bcrypt.MinCost,
	})
	ts := httptest.NewServer(websocket.NewServer(websocket.Config{
		Logger:           &logger,
		SignalingService: svc,
	}).Handler)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket"
}

func newParticipant(t *testing.T, url, name, password string, storage persist.Storage) *Meeting {
	t.Helper()
	logger := zerolog.Nop()
	m := New(Config{
		Logger:      &logger,
		SocketURL:   url,
		Room:        "standup",
		UserName:    name,
		Password:    password,
		Storage:     storage,
		PersistKey:  "meeting-" + name,
		StepTimeout: 3 * time.Second,
	})
	t.Cleanup(m.Leave)
	return m
}

func TestJoinAndChat(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := newParticipant(t, url, "alice", "", nil)
	bob := newParticipant(t, url, "bob", "", nil)
	require.NoError(t, alice.Join(ctx))
	require.NoError(t, bob.Join(ctx))

	aliceState := alice.Store().GetState()
	assert.True(t, aliceState.Room.Joined)
	assert.NotEmpty(t, aliceState.User.ParticipantID)

	require.NoError(t, alice.Send(ctx, "hello bob"))

	msgs := alice.Store().GetState().Chat.Messages
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Me)
	assert.Equal(t, action.MessageStatusSuccess, msgs[0].Status)
	assert.NotEmpty(t, msgs[0].UniqueID)

	assert.Eventually(t, func() bool {
		got := bob.Store().GetState().Chat.Messages
		return len(got) == 1 && got[0].Text == "hello bob" && !got[0].Me
	}, 3*time.Second, 20*time.Millisecond)

	bobID := bob.Store().GetState().User.ParticipantID
	assert.Eventually(t, func() bool {
		_, ok := alice.Store().GetState().Participants.Remote[bobID]
		return ok
	}, 3*time.Second, 20*time.Millisecond, "alice sees bob after bob joined")
}

func TestPasswordProtectedRoom(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	owner := newParticipant(t, url, "owner", "", nil)
	require.NoError(t, owner.Join(ctx))
	require.NoError(t, owner.UpdatePassword(ctx, "s3cret"))
	assert.True(t, owner.Store().GetState().Room.HasPassword)

	intruder := newParticipant(t, url, "intruder", "guess", nil)
	err := intruder.Join(ctx)
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.False(t, intruder.Store().GetState().Room.Joined)
	assert.NotEmpty(t, intruder.Store().GetState().Room.MessageError)

	guest := newParticipant(t, url, "guest", "s3cret", nil)
	require.NoError(t, guest.Join(ctx))
	assert.True(t, guest.Store().GetState().Room.IsLogged)
}

func TestSendBeforeJoin(t *testing.T) {
	m := newParticipant(t, "ws://127.0.0.1:1/socket", "nobody", "", nil)
	assert.ErrorIs(t, m.Send(context.Background(), "hi"), ErrNotJoined)
}

func TestJoinTimeout(t *testing.T) {
	logger := zerolog.Nop()
	m := New(Config{
		Logger:      &logger,
		SocketURL:   "ws://127.0.0.1:1/socket",
		Room:        "standup",
		StepTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(m.Leave)
	assert.ErrorIs(t, m.Join(context.Background()), ErrStepTimeout)
}

func TestRunPersistsState(t *testing.T) {
	url := startRelay(t)
	storage := persist.NewMemStorage()
	m := newParticipant(t, url, "carol", "", storage)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- m.Run(ctx, func() { close(ready) })
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("meeting did not join")
	}
	sendCtx, sendCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer sendCancel()
	require.NoError(t, m.Send(sendCtx, "persist me"))

	cancel()
	require.NoError(t, <-errc)

	b, err := storage.Get(context.Background(), "meeting-carol")
	require.NoError(t, err)
	assert.Contains(t, string(b), "persist me")
	assert.NotContains(t, string(b), `"auth"`)
}
