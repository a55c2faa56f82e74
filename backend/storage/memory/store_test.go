package memory

import (
	"fmt"
	"testing"

	"github.com/adwski/meeting-room/backend/model"
	"github.com/adwski/meeting-room/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrJoinRoom(t *testing.T) {
	ms := NewMemStore(Config{MaxParticipants: 2})

	room, err := ms.CreateOrJoinRoom("r1", "u1")
	require.NoError(t, err)
	assert.Len(t, room.Participants, 1)

	_, err = ms.CreateOrJoinRoom("r1", "u2")
	require.NoError(t, err)

	_, err = ms.CreateOrJoinRoom("r1", "u3")
	assert.ErrorIs(t, err, ErrRoomIsFull)

	room, err = ms.CreateOrJoinRoom("r1", "u1")
	require.NoError(t, err, "rejoin of a member is allowed in a full room")
	assert.Len(t, room.Participants, 2)
}

func TestRoomSnapshotsAreCopies(t *testing.T) {
	ms := NewMemStore(Config{})
	room, err := ms.CreateOrJoinRoom("r1", "u1")
	require.NoError(t, err)

	room.Participants["intruder"] = model.Participant{ID: "intruder"}
	got, err := ms.GetRoom("r1")
	require.NoError(t, err)
	assert.NotContains(t, got.Participants, "intruder")
}

func TestLeaveRoom(t *testing.T) {
	ms := NewMemStore(Config{})
	_, _ = ms.CreateOrJoinRoom("r1", "u1")
	_, _ = ms.CreateOrJoinRoom("r1", "u2")
	_, err := ms.UpdateParticipant("r1", "u1", func(p *model.Participant) { p.Joined = true })
	require.NoError(t, err)

	p, err := ms.LeaveRoom("r1", "u1")
	require.NoError(t, err)
	assert.True(t, p.Joined)

	_, err = ms.LeaveRoom("r1", "u1")
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = ms.LeaveRoom("r1", "u2")
	require.NoError(t, err)
	_, err = ms.GetRoom("r1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, ms.ListRooms())
}

func TestPasswordHash(t *testing.T) {
	ms := NewMemStore(Config{})
	assert.ErrorIs(t, ms.SetPasswordHash("nope", []byte("x")), ErrRoomNotFound)

	_, _ = ms.CreateOrJoinRoom("r1", "u1")
	require.NoError(t, ms.SetPasswordHash("r1", []byte("hash")))
	room, _ := ms.GetRoom("r1")
	assert.True(t, room.HasPassword())

	require.NoError(t, ms.SetPasswordHash("r1", nil))
	room, _ = ms.GetRoom("r1")
	assert.False(t, room.HasPassword())
}

func TestAppendMessageHistoryBound(t *testing.T) {
	ms := NewMemStore(Config{HistorySize: 3})
	assert.ErrorIs(t, ms.AppendMessage("nope", wire.ChatMessage{}), ErrRoomNotFound)

	_, _ = ms.CreateOrJoinRoom("r1", "u1")
	for i := 0; i < 5; i++ {
		require.NoError(t, ms.AppendMessage("r1", wire.ChatMessage{UniqueID: fmt.Sprint(i)}))
	}
	room, _ := ms.GetRoom("r1")
	require.Len(t, room.Messages, 3)
	assert.Equal(t, "2", room.Messages[0].UniqueID)
	assert.Equal(t, "4", room.Messages[2].UniqueID)
}

func TestUpdateParticipantMissing(t *testing.T) {
	ms := NewMemStore(Config{})
	_, err := ms.UpdateParticipant("r1", "u1", func(*model.Participant) {})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, _ = ms.CreateOrJoinRoom("r1", "u1")
	_, err = ms.UpdateParticipant("r1", "u2", func(*model.Participant) {})
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}
