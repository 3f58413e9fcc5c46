// internal/session/session_test.go
package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock(m *Manager) *time.Time {
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	return &now
}

func TestCreateAndLookup(t *testing.T) {
	m := NewManager(0)

	s := m.Create("p1", "alice", "sock-1")
	assert.NotEmpty(t, s.Token)
	assert.True(t, s.Connected)

	got, ok := m.BySocket("sock-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.BySocket("sock-2")
	assert.False(t, ok)
}

func TestReconnectWithinWindow(t *testing.T) {
	m := NewManager(60 * time.Second)
	now := testClock(m)

	s := m.Create("p1", "alice", "sock-1")
	_, ok := m.Disconnect("sock-1")
	require.True(t, ok)
	assert.False(t, s.Connected)

	*now = now.Add(30 * time.Second)

	resumed, err := m.Reconnect(s.Token, "sock-2")
	require.NoError(t, err)
	assert.Equal(t, "p1", resumed.PlayerID)
	assert.True(t, resumed.Connected)

	// The old socket binding is gone, the new one resolves.
	_, ok = m.BySocket("sock-1")
	assert.False(t, ok)
	got, ok := m.BySocket("sock-2")
	require.True(t, ok)
	assert.Same(t, resumed, got)
}

func TestReconnectAfterWindowExpires(t *testing.T) {
	m := NewManager(60 * time.Second)
	now := testClock(m)

	s := m.Create("p1", "alice", "sock-1")
	m.Disconnect("sock-1")

	*now = now.Add(61 * time.Second)

	_, err := m.Reconnect(s.Token, "sock-2")
	assert.ErrorIs(t, err, ErrSessionExpired)

	// The expired session is gone for good.
	_, err = m.Reconnect(s.Token, "sock-3")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReconnectUnknownToken(t *testing.T) {
	m := NewManager(0)
	_, err := m.Reconnect("no-such-token", "sock-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReconnectStealsLiveSocket(t *testing.T) {
	m := NewManager(0)

	s := m.Create("p1", "alice", "sock-1")

	// Reconnecting while still marked connected (e.g. a new tab)
	// rebinds the session to the new socket.
	_, err := m.Reconnect(s.Token, "sock-2")
	require.NoError(t, err)
	_, ok := m.BySocket("sock-1")
	assert.False(t, ok)
	_, ok = m.BySocket("sock-2")
	assert.True(t, ok)
}

func TestHasPlayer(t *testing.T) {
	m := NewManager(60 * time.Second)
	now := testClock(m)

	m.Create("p1", "alice", "sock-1")
	assert.True(t, m.HasPlayer("p1"))
	assert.False(t, m.HasPlayer("p2"))

	// A disconnected player inside the window can still come back.
	m.Disconnect("sock-1")
	assert.True(t, m.HasPlayer("p1"))

	*now = now.Add(61 * time.Second)
	m.Reap()
	assert.False(t, m.HasPlayer("p1"), "reaped players hold no session")
}

func TestReap(t *testing.T) {
	m := NewManager(60 * time.Second)
	now := testClock(m)

	stale := m.Create("p1", "alice", "sock-1")
	m.Disconnect("sock-1")
	m.Create("p2", "bob", "sock-2") // still connected

	fresh := m.Create("p3", "carol", "sock-3")
	m.Disconnect("sock-3")

	*now = now.Add(90 * time.Second)
	m.Touch(fresh.Token) // refreshed LastSeen keeps p3 inside the window
	*now = now.Add(1 * time.Second)

	reaped := m.Reap()
	require.Len(t, reaped, 1)
	assert.Equal(t, stale.PlayerID, reaped[0].PlayerID)

	// Connected and recently-touched sessions survive.
	_, err := m.Reconnect(fresh.Token, "sock-4")
	assert.NoError(t, err)
}
