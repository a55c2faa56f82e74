package memory

import (
	"errors"
	"sync"

	"github.com/adwski/meeting-room/backend/model"
	"github.com/adwski/meeting-room/wire"
)

const (
	defaultMaxParticipants = 8
	defaultHistorySize     = 100
)

var (
	ErrRoomIsFull          = errors.New("room is full")
	ErrRoomNotFound        = errors.New("room is not found")
	ErrParticipantNotFound = errors.New("participant is not found")
)

type Config struct {
	MaxParticipants int
	HistorySize     int
}

type MemStore struct {
	mx              *sync.Mutex
	db              map[string]*model.Room
	maxParticipants int
	historySize     int
}

func NewMemStore(cfg Config) *MemStore {
	ms := &MemStore{
		mx:              &sync.Mutex{},
		db:              make(map[string]*model.Room),
		maxParticipants: cfg.MaxParticipants,
		historySize:     cfg.HistorySize,
	}
	if ms.maxParticipants <= 0 {
		ms.maxParticipants = defaultMaxParticipants
	}
	if ms.historySize <= 0 {
		ms.historySize = defaultHistorySize
	}
	return ms
}

// CreateOrJoinRoom adds the user to the room, creating the room when it does not exist.
func (ms *MemStore) CreateOrJoinRoom(roomID string, userID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		room = &model.Room{
			ID: roomID,
			Participants: map[string]model.Participant{
				userID: {ID: userID},
			},
		}
		ms.db[roomID] = room
		return room.Clone(), nil
	}

	if len(room.Participants) >= ms.maxParticipants {
		if _, ok := room.Participants[userID]; !ok {
			return nil, ErrRoomIsFull
		}
	}

	if _, ok := room.Participants[userID]; !ok {
		room.Participants[userID] = model.Participant{ID: userID}
	}
	return room.Clone(), nil
}

// LeaveRoom removes the user and returns the removed participant. Empty rooms are dropped.
func (ms *MemStore) LeaveRoom(roomID string, userID string) (model.Participant, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return model.Participant{}, ErrRoomNotFound
	}
	p, ok := room.Participants[userID]
	if !ok {
		return model.Participant{}, ErrParticipantNotFound
	}
	delete(room.Participants, userID)
	if len(room.Participants) == 0 {
		delete(ms.db, roomID)
	}
	return p, nil
}

func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (ms *MemStore) ListRooms() []*model.Room {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	rooms := make([]*model.Room, 0, len(ms.db))
	for _, room := range ms.db {
		rooms = append(rooms, room.Clone())
	}
	return rooms
}

func (ms *MemStore) SetPasswordHash(roomID string, hash []byte) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.PasswordHash = hash
	return nil
}

// UpdateParticipant applies fn to the participant and returns the result.
func (ms *MemStore) UpdateParticipant(roomID, userID string, fn func(*model.Participant)) (model.Participant, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return model.Participant{}, ErrRoomNotFound
	}
	p, ok := room.Participants[userID]
	if !ok {
		return model.Participant{}, ErrParticipantNotFound
	}
	fn(&p)
	room.Participants[userID] = p
	return p, nil
}

// AppendMessage stores msg, dropping the oldest messages beyond the history size.
func (ms *MemStore) AppendMessage(roomID string, msg wire.ChatMessage) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.Messages = append(room.Messages, msg)
	if over := len(room.Messages) - ms.historySize; over > 0 {
		room.Messages = append([]wire.ChatMessage(nil), room.Messages[over:]...)
	}
	return nil
}
