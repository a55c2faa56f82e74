package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adwski/meeting-room/backend/service"
	"github.com/adwski/meeting-room/backend/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRooms map[string]*service.RoomInfo

func (s stubRooms) RoomInfo(roomID string) (*service.RoomInfo, error) {
	info, ok := s[roomID]
	if !ok {
		return nil, memory.ErrRoomNotFound
	}
	return info, nil
}

func (s stubRooms) Rooms() []*service.RoomInfo {
	out := make([]*service.RoomInfo, 0, len(s))
	for _, info := range s {
		out = append(out, info)
	}
	return out
}

func newTestHandler() http.Handler {
	logger := zerolog.Nop()
	return NewServer(Config{
		Logger: &logger,
		RoomService: stubRooms{
			"r1": {ID: "r1", HasPassword: true, Participants: 2, Joined: 1},
		},
	}).Handler
}

func TestGetRoom(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name string
		path string
		code int
	}{
		{name: "existing room", path: "/api/room/r1", code: http.StatusOK},
		{name: "missing room", path: "/api/room/r2", code: http.StatusNotFound},
		{name: "healthz", path: "/healthz", code: http.StatusOK},
		{name: "list", path: "/api/room", code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestGetRoomBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/room/r1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data service.RoomInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, service.RoomInfo{ID: "r1", HasPassword: true, Participants: 2, Joined: 1}, resp.Data)
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/room/r1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
