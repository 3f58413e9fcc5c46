// internal/room/manager_test.go
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durakhq/durak/internal/engine"
)

func testManager() *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(NewMemoryStore(), logger)
}

func TestRoomLobbyLifecycle(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, err := m.CreateRoom(ctx, "table one", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "p1", r.HostID)
	require.Len(t, r.Seats, 1)

	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p3", "carol"))
	assert.Len(t, r.Seats, 3)

	// Rejoining an existing seat is idempotent.
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	assert.Len(t, r.Seats, 3)

	summaries := m.RoomSummaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].PlayerCount)
	assert.Equal(t, string(engine.PhaseLobby), summaries[0].Phase)

	// Host leaving a lobby hands the room to the next seat.
	require.NoError(t, m.LeaveRoom(ctx, r.ID, "p1"))
	assert.Equal(t, "p2", r.HostID)
	assert.Len(t, r.Seats, 2)

	require.NoError(t, m.LeaveRoom(ctx, r.ID, "p2"))
	require.NoError(t, m.LeaveRoom(ctx, r.ID, "p3"))
	_, ok := m.GetRoom(r.ID)
	assert.False(t, ok, "emptied lobby must be deleted")
}

func TestRoomFull(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, err := m.CreateRoom(ctx, "crowded", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, err)
	for i := 2; i <= DefaultMaxPlayers; i++ {
		require.NoError(t, m.JoinRoom(ctx, r.ID, playerID(i), ""))
	}

	err = m.JoinRoom(ctx, r.ID, "p7", "late")
	assert.ErrorIs(t, err, ErrRoomFull)
}

func playerID(i int) string {
	return fmt.Sprintf("p%d", i)
}

func TestStartGamePreconditions(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, err := m.CreateRoom(ctx, "solo", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, err)

	assert.ErrorIs(t, m.StartGame(ctx, r.ID, "p1"), ErrNotEnoughPlayers)

	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	assert.ErrorIs(t, m.StartGame(ctx, r.ID, "p2"), ErrNotHost)

	require.NoError(t, m.StartGame(ctx, r.ID, "p1"))
	assert.ErrorIs(t, m.StartGame(ctx, r.ID, "p1"), ErrAlreadyStarted)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	require.NotNil(t, r.State)
	assert.Equal(t, engine.PhaseAttacking, r.State.Phase)
	assert.NotEmpty(t, r.Seed, "the deal seed is recorded for audit")
	assert.Equal(t, "alice", r.Players["p1"].Nickname)
}

func TestJoinAfterStartIsReconnectOnly(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, _ := m.CreateRoom(ctx, "running", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	require.NoError(t, m.StartGame(ctx, r.ID, "p1"))

	// Strangers are refused once cards are dealt.
	assert.ErrorIs(t, m.JoinRoom(ctx, r.ID, "p3", "eve"), ErrAlreadyStarted)

	// A seated player who drops keeps their seat and hand.
	require.NoError(t, m.LeaveRoom(ctx, r.ID, "p2"))
	r.Mu.Lock()
	assert.False(t, r.Players["p2"].IsConnected)
	handBefore := len(r.Players["p2"].Hand)
	r.Mu.Unlock()

	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	r.Mu.Lock()
	assert.True(t, r.Players["p2"].IsConnected)
	assert.Len(t, r.Players["p2"].Hand, handBefore)
	r.Mu.Unlock()
}

func TestProcessActionTakeResolvesRound(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, _ := m.CreateRoom(ctx, "round", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	require.NoError(t, m.StartGame(ctx, r.ID, "p1"))

	r.Mu.Lock()
	attacker := r.State.Turn.AttackerID
	defender := r.State.Turn.DefenderID
	opening := r.Players[attacker].Hand[0]
	r.Mu.Unlock()

	res := m.ProcessAction(ctx, r.ID, engine.PlayAttack{PlayerID: attacker, Cards: []engine.Card{opening}})
	require.True(t, res.Success, res.Error)

	// Taking is always legal for the defender, which makes this round
	// deterministic regardless of the deal.
	res = m.ProcessAction(ctx, r.ID, engine.Take{PlayerID: defender})
	require.True(t, res.Success, res.Error)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, engine.PhaseAttacking, r.State.Phase, "draw phase resolves synchronously")
	assert.Empty(t, r.State.Table)
	assert.Equal(t, attacker, r.State.Turn.AttackerID, "taking defender is skipped")
	assert.Len(t, r.Players[attacker].Hand, engine.InitialHandSize, "attacker refilled to six")
	assert.Equal(t, engine.InitialHandSize+1, len(r.Players[defender].Hand), "defender kept the taken card")
	assert.Equal(t, len(*r.Deck), r.State.DeckCount)

	total := len(*r.Deck) + r.State.DiscardCount
	for _, p := range r.Players {
		total += len(p.Hand)
	}
	assert.Equal(t, 36, total, "no card appears or disappears across a round")
}

func TestProcessActionErrors(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	res := m.ProcessAction(ctx, uuid.New(), engine.EndTurn{PlayerID: "p1"})
	require.False(t, res.Success)
	assert.Equal(t, ErrRoomNotFound.Error(), res.Error)

	r, _ := m.CreateRoom(ctx, "idle", "p1", "alice", engine.DefaultSettings())
	res = m.ProcessAction(ctx, r.ID, engine.EndTurn{PlayerID: "p1"})
	require.False(t, res.Success)
	assert.Equal(t, ErrNotStarted.Error(), res.Error)
}

func TestServerStateForRedactsOtherHands(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, _ := m.CreateRoom(ctx, "redacted", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))

	// Lobby view: seats only, no game state.
	cs, err := m.ServerStateFor(r.ID, "p1")
	require.NoError(t, err)
	assert.False(t, cs.Started)
	assert.Nil(t, cs.State)
	assert.Len(t, cs.Players, 2)

	require.NoError(t, m.StartGame(ctx, r.ID, "p1"))

	cs, err = m.ServerStateFor(r.ID, "p1")
	require.NoError(t, err)
	assert.True(t, cs.Started)
	require.NotNil(t, cs.State)
	assert.Len(t, cs.Hand, engine.InitialHandSize)
	for _, pv := range cs.Players {
		assert.Equal(t, engine.InitialHandSize, pv.HandCount)
	}

	// A spectator id gets the public view with no hand at all.
	cs, err = m.ServerStateFor(r.ID, "nobody")
	require.NoError(t, err)
	assert.Empty(t, cs.Hand)
}

// TestServerStateForDetachedFromLiveState pins down that a fan-out
// payload never shares memory with the live game: broadcast goroutines
// marshal it after the room lock is released, while the next action may
// already be mutating the state.
func TestServerStateForDetachedFromLiveState(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, _ := m.CreateRoom(ctx, "detached", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))
	require.NoError(t, m.StartGame(ctx, r.ID, "p1"))

	cs, err := m.ServerStateFor(r.ID, "p1")
	require.NoError(t, err)
	require.NotNil(t, cs.State)

	r.Mu.Lock()
	assert.NotSame(t, r.State, cs.State)
	attacker := r.State.Turn.AttackerID
	defender := r.State.Turn.DefenderID
	opening := r.Players[attacker].Hand[0]
	r.Mu.Unlock()

	// Marshal the snapshot while actions run, the way BroadcastRoomState
	// does. Under -race this fails if the snapshot aliases live state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := json.Marshal(cs); err != nil {
				t.Errorf("marshal snapshot: %v", err)
				return
			}
		}
	}()

	res := m.ProcessAction(ctx, r.ID, engine.PlayAttack{PlayerID: attacker, Cards: []engine.Card{opening}})
	require.True(t, res.Success, res.Error)
	res = m.ProcessAction(ctx, r.ID, engine.Take{PlayerID: defender})
	require.True(t, res.Success, res.Error)
	<-done

	assert.Empty(t, cs.State.Table, "the snapshot stays frozen at capture time")
}

func TestDeleteIfAbandoned(t *testing.T) {
	ctx := context.Background()
	m := testManager()

	r, _ := m.CreateRoom(ctx, "ghost", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, m.JoinRoom(ctx, r.ID, "p2", "bob"))

	// Lobbies are handled by LeaveRoom, never by abandonment.
	assert.False(t, m.DeleteIfAbandoned(ctx, r.ID, nil))

	require.NoError(t, m.StartGame(ctx, r.ID, "p1"))

	// A connected seat keeps the room.
	assert.False(t, m.DeleteIfAbandoned(ctx, r.ID, nil))

	require.NoError(t, m.MarkDisconnected(ctx, r.ID, "p1"))
	require.NoError(t, m.MarkDisconnected(ctx, r.ID, "p2"))

	// Everyone offline but still inside their reconnect window: keep it.
	assert.False(t, m.DeleteIfAbandoned(ctx, r.ID, func(string) bool { return true }))
	_, ok := m.GetRoom(r.ID)
	assert.True(t, ok)

	// Nobody connected and nobody able to come back: gone everywhere.
	assert.True(t, m.DeleteIfAbandoned(ctx, r.ID, func(string) bool { return false }))
	_, ok = m.GetRoom(r.ID)
	assert.False(t, ok)
	_, err := m.store.Load(ctx, r.ID.String())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRehydrate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m1 := NewManager(store, logger)
	r, _ := m1.CreateRoom(ctx, "persisted", "p1", "alice", engine.DefaultSettings())
	require.NoError(t, m1.JoinRoom(ctx, r.ID, "p2", "bob"))
	require.NoError(t, m1.StartGame(ctx, r.ID, "p1"))

	r.Mu.Lock()
	seed := r.Seed
	trump := r.State.TrumpSuit
	r.Mu.Unlock()

	// A fresh manager over the same store sees the same room.
	m2 := NewManager(store, logger)
	require.NoError(t, m2.Rehydrate(ctx))

	r2, ok := m2.GetRoom(r.ID)
	require.True(t, ok)
	r2.Mu.Lock()
	defer r2.Mu.Unlock()
	assert.Equal(t, seed, r2.Seed)
	assert.Equal(t, trump, r2.State.TrumpSuit)
	assert.False(t, r2.Players["p1"].IsConnected, "rehydrated players reattach explicitly")
	assert.Len(t, r2.Players["p1"].Hand, engine.InitialHandSize)
}
