package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdm/xizach/internal/auth"
	"github.com/quangdm/xizach/internal/game"
	"github.com/quangdm/xizach/internal/models"
)

type stubAccounts struct{}

func (stubAccounts) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id, Username: "tester", Balance: 1000, IsActive: true}, nil
}

func (stubAccounts) ApplyRoundResult(ctx context.Context, rec models.HistoryRecord) (int64, error) {
	return 0, nil
}

func (stubAccounts) Transfer(ctx context.Context, from, to uuid.UUID, amount int64) error {
	return nil
}

func (stubAccounts) SetCurrentRoom(ctx context.Context, id uuid.UUID, roomID string) error {
	return nil
}

func newTestRoomServer() *RoomServer {
	return &RoomServer{Rooms: game.NewRoomStore(), Sessions: game.NewSessionRegistry(), Accounts: stubAccounts{}}
}

func authCookie(t *testing.T) string {
	t.Helper()
	auth.Init()
	token, err := auth.CreateJWT(uuid.New().String())
	require.NoError(t, err)
	return "auth_token=" + token
}

func TestCreateRoomHandler(t *testing.T) {
	rs := newTestRoomServer()
	cookie := authCookie(t)

	body := `{"roomName":"bàn 1","gameType":"xizach","betAmount":100,"drawTime":20}`
	req := httptest.NewRequest(http.MethodPost, "/room/create", strings.NewReader(body))
	req.Header.Set("Cookie", cookie)
	w := httptest.NewRecorder()

	rs.CreateRoomHandler(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var snap game.RoomSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.RoomID, 8)
	assert.Equal(t, "bàn 1", snap.RoomName)
	assert.Equal(t, int64(100), snap.BetAmount)
	assert.Equal(t, "waiting", snap.GameState.Status)

	_, ok := rs.Rooms.Get(snap.RoomID)
	assert.True(t, ok, "room must be registered in the store")
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	rs := newTestRoomServer()
	req := httptest.NewRequest(http.MethodPost, "/room/create", strings.NewReader(`{"betAmount":100}`))
	w := httptest.NewRecorder()

	rs.CreateRoomHandler(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateRoomRejectsNonPositiveBet(t *testing.T) {
	rs := newTestRoomServer()
	req := httptest.NewRequest(http.MethodPost, "/room/create", strings.NewReader(`{"betAmount":0}`))
	req.Header.Set("Cookie", authCookie(t))
	w := httptest.NewRecorder()

	rs.CreateRoomHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRoomsOnlyShowsJoinableRooms(t *testing.T) {
	rs := newTestRoomServer()
	hostID := uuid.New()

	open := game.NewRoom("AAAA1111", "open", "xizach", hostID, game.Settings{BetAmount: 50, DrawTime: 30})
	rs.Rooms.Add(open)

	locked := game.NewRoom("BBBB2222", "locked", "xizach", hostID, game.Settings{BetAmount: 50, DrawTime: 30, Password: "s"})
	rs.Rooms.Add(locked)

	req := httptest.NewRequest(http.MethodGet, "/room/list", nil)
	w := httptest.NewRecorder()
	rs.ListRoomsHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)

	byID := map[string]map[string]interface{}{}
	for _, entry := range out {
		byID[entry["roomId"].(string)] = entry
	}
	assert.Equal(t, false, byID["AAAA1111"]["hasPassword"])
	assert.Equal(t, true, byID["BBBB2222"]["hasPassword"])
}

func TestListRoomsFiltersByGameType(t *testing.T) {
	rs := newTestRoomServer()
	hostID := uuid.New()
	rs.Rooms.Add(game.NewRoom("CCCC3333", "xì zách", "xizach", hostID, game.Settings{BetAmount: 50, DrawTime: 30}))
	rs.Rooms.Add(game.NewRoom("DDDD4444", "tiến lên", "tienlen", hostID, game.Settings{BetAmount: 50, DrawTime: 30}))

	req := httptest.NewRequest(http.MethodGet, "/room/list?gameType=tienlen", nil)
	w := httptest.NewRecorder()
	rs.ListRoomsHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "DDDD4444", out[0]["roomId"])

	// No filter returns both.
	req = httptest.NewRequest(http.MethodGet, "/room/list", nil)
	w = httptest.NewRecorder()
	rs.ListRoomsHandler(w, req)
	out = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out, 2)
}
