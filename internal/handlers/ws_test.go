// internal/handlers/ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durakhq/durak/internal/engine"
	"github.com/durakhq/durak/internal/room"
	"github.com/durakhq/durak/internal/session"
)

func newTestServer(t *testing.T) (*GameServer, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gs := NewGameServer(
		room.NewManager(room.NewMemoryStore(), logger),
		session.NewManager(session.DefaultReconnectWindow),
		logger,
	)
	ts := httptest.NewServer(GameWSHandler(gs))
	t.Cleanup(ts.Close)
	return gs, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, ts.URL, &websocket.DialOptions{
		Subprotocols: []string{"durak"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func writeMsg(t *testing.T, c *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func readMsg(t *testing.T, c *websocket.Conn) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// hello performs the handshake and returns the issued identity.
func hello(t *testing.T, c *websocket.Conn, nickname, token string) ServerMessage {
	t.Helper()
	writeMsg(t, c, ClientMessage{Type: "hello", Nickname: nickname, SessionToken: token})
	msg := readMsg(t, c)
	require.Equal(t, "session", msg.Type)
	require.NotEmpty(t, msg.SessionToken)
	require.NotEmpty(t, msg.PlayerID)
	return msg
}

func TestHandshakeRejectsNonHello(t *testing.T) {
	_, ts := newTestServer(t)
	c := dialWS(t, ts)

	writeMsg(t, c, ClientMessage{Type: "ping"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Error(t, err, "server closes the socket on a bad handshake")
}

func TestCreateJoinStartAndEndTurn(t *testing.T) {
	_, ts := newTestServer(t)

	c1 := dialWS(t, ts)
	s1 := hello(t, c1, "alice", "")

	writeMsg(t, c1, ClientMessage{Type: "create_room", Name: "table"})
	created := readMsg(t, c1)
	require.Equal(t, "room_created", created.Type)
	require.NotEmpty(t, created.RoomID)

	st := readMsg(t, c1)
	require.Equal(t, "state", st.Type)
	assert.False(t, st.State.Started)
	assert.Len(t, st.State.Players, 1)

	c2 := dialWS(t, ts)
	s2 := hello(t, c2, "bob", "")

	writeMsg(t, c2, ClientMessage{Type: "join_room", RoomID: created.RoomID})
	st1 := readMsg(t, c1)
	st2 := readMsg(t, c2)
	assert.Len(t, st1.State.Players, 2)
	assert.Len(t, st2.State.Players, 2)

	// Only the host may start.
	writeMsg(t, c2, ClientMessage{Type: "start_game"})
	errMsg := readMsg(t, c2)
	require.Equal(t, "error", errMsg.Type)
	assert.Equal(t, room.ErrNotHost.Error(), errMsg.Message)

	writeMsg(t, c1, ClientMessage{Type: "start_game"})
	st1 = readMsg(t, c1)
	st2 = readMsg(t, c2)
	require.True(t, st1.State.Started)
	assert.Len(t, st1.State.Hand, engine.InitialHandSize)
	assert.Len(t, st2.State.Hand, engine.InitialHandSize)

	// Work out who attacks over this deal.
	attackerID := st1.State.State.Turn.AttackerID
	attackerConn, defenderConn := c1, c2
	defenderID := s2.PlayerID
	if attackerID == s2.PlayerID {
		attackerConn, defenderConn = c2, c1
		defenderID = s1.PlayerID
	}

	// Out-of-turn traffic is rejected before it reaches the engine.
	writeMsg(t, defenderConn, ClientMessage{Type: "play_attack"})
	errMsg = readMsg(t, defenderConn)
	require.Equal(t, "error", errMsg.Type)
	assert.Equal(t, "not your turn to attack", errMsg.Message)

	// An attacker passing with an empty table just rotates the turn.
	writeMsg(t, attackerConn, ClientMessage{Type: "end_turn"})
	st1 = readMsg(t, c1)
	st2 = readMsg(t, c2)
	assert.Equal(t, engine.PhaseAttacking, st1.State.State.Phase)
	assert.Equal(t, defenderID, st1.State.State.Turn.AttackerID)
	assert.Equal(t, st1.State.State.Turn, st2.State.State.Turn)
}

func TestReconnectResumesSeat(t *testing.T) {
	gs, ts := newTestServer(t)

	c1 := dialWS(t, ts)
	s1 := hello(t, c1, "alice", "")

	writeMsg(t, c1, ClientMessage{Type: "create_room", Name: "sticky"})
	created := readMsg(t, c1)
	require.Equal(t, "room_created", created.Type)
	_ = readMsg(t, c1) // initial state

	// Drop the socket without leaving; the seat must survive.
	require.NoError(t, c1.Close(websocket.StatusGoingAway, "tab closed"))
	roomID, ok := gs.Rooms.RoomOf(s1.PlayerID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		r, ok := gs.Rooms.GetRoom(roomID)
		if !ok {
			return false
		}
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return len(r.Seats) == 1 && !r.Seats[0].Connected
	}, 5*time.Second, 10*time.Millisecond, "disconnect should mark the seat offline, not free it")

	// Reconnect with the session token: same player, same seat.
	c2 := dialWS(t, ts)
	resumed := hello(t, c2, "", s1.SessionToken)
	assert.Equal(t, s1.PlayerID, resumed.PlayerID)

	st := readMsg(t, c2)
	require.Equal(t, "state", st.Type)
	require.Len(t, st.State.Players, 1)
	assert.True(t, st.State.Players[0].IsConnected)
}

// TestReapDeletesAbandonedStartedRoom walks a started room through the
// path where every player's session expires: the room must be removed
// from the manager instead of lingering with no one able to return.
func TestReapDeletesAbandonedStartedRoom(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	gs := NewGameServer(
		room.NewManager(room.NewMemoryStore(), logger),
		session.NewManager(time.Nanosecond),
		logger,
	)

	ctx := context.Background()
	r, err := gs.Rooms.CreateRoom(ctx, "doomed", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, gs.Rooms.JoinRoom(ctx, r.ID, "p2", "bob"))
	require.NoError(t, gs.Rooms.StartGame(ctx, r.ID, "p1"))

	gs.Sessions.Create("p1", "alice", "sock-1")
	gs.Sessions.Create("p2", "bob", "sock-2")

	// p1 drops and expires while p2 is still seated and connected.
	gs.Sessions.Disconnect("sock-1")
	time.Sleep(time.Millisecond)
	gs.reapOnce(ctx)
	_, ok := gs.Rooms.GetRoom(r.ID)
	assert.True(t, ok, "a room with a connected player survives the reap")

	// p2 drops too, the way a socket close does, and then expires.
	gs.Sessions.Disconnect("sock-2")
	require.NoError(t, gs.Rooms.MarkDisconnected(ctx, r.ID, "p2"))
	time.Sleep(time.Millisecond)
	gs.reapOnce(ctx)
	_, ok = gs.Rooms.GetRoom(r.ID)
	assert.False(t, ok, "a started room nobody can return to is deleted")
}

func TestListRoomsHandler(t *testing.T) {
	gs, _ := newTestServer(t)

	_, err := gs.Rooms.CreateRoom(context.Background(), "visible", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ListRoomsHandler(gs)(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rooms []room.RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 1)
	assert.Equal(t, "visible", body.Rooms[0].Name)

	rec = httptest.NewRecorder()
	ListRoomsHandler(gs)(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
