// internal/session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultReconnectWindow is how long a dropped player keeps their
// session before it is reaped.
const DefaultReconnectWindow = 60 * time.Second

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session ties a player identity to their current socket. The token is
// the reconnect credential: a client that reconnects within the window
// and presents its token resumes as the same player.
type Session struct {
	Token     string
	PlayerID  string
	Nickname  string
	SocketID  string
	Connected bool
	LastSeen  time.Time
}

// Manager tracks every live session in memory. All methods are safe
// for concurrent use.
type Manager struct {
	mu       sync.Mutex
	window   time.Duration
	sessions map[string]*Session // token -> session
	bySocket map[string]*Session

	now func() time.Time // swapped out in tests
}

func NewManager(window time.Duration) *Manager {
	if window <= 0 {
		window = DefaultReconnectWindow
	}
	return &Manager{
		window:   window,
		sessions: make(map[string]*Session),
		bySocket: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a brand-new session bound to the given socket.
func (m *Manager) Create(playerID, nickname, socketID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		Token:     uuid.NewString(),
		PlayerID:  playerID,
		Nickname:  nickname,
		SocketID:  socketID,
		Connected: true,
		LastSeen:  m.now(),
	}
	m.sessions[s.Token] = s
	m.bySocket[socketID] = s
	return s
}

// Reconnect resumes a disconnected session on a new socket. Presenting
// a token after the window has elapsed fails with ErrSessionExpired;
// the caller should then create a fresh session.
func (m *Manager) Reconnect(token, socketID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.Connected && m.now().Sub(s.LastSeen) > m.window {
		delete(m.sessions, token)
		return nil, ErrSessionExpired
	}

	if s.SocketID != "" {
		delete(m.bySocket, s.SocketID)
	}
	s.SocketID = socketID
	s.Connected = true
	s.LastSeen = m.now()
	m.bySocket[socketID] = s
	return s, nil
}

// BySocket resolves the session bound to a socket id.
func (m *Manager) BySocket(socketID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySocket[socketID]
	return s, ok
}

// Disconnect detaches the socket but keeps the session alive for the
// reconnect window. Returns the session so the caller can notify the
// player's room.
func (m *Manager) Disconnect(socketID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.bySocket[socketID]
	if !ok {
		return nil, false
	}
	delete(m.bySocket, socketID)
	s.SocketID = ""
	s.Connected = false
	s.LastSeen = m.now()
	return s, true
}

// HasPlayer reports whether the player still holds any session, live
// or inside its reconnect window. Reap deletes expired sessions, so
// after a reap pass a false result means the player cannot come back.
func (m *Manager) HasPlayer(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Touch refreshes a session's activity timestamp.
func (m *Manager) Touch(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		s.LastSeen = m.now()
	}
}

// Reap deletes sessions that have been disconnected for longer than
// the window and returns them so the caller can clean up their rooms.
func (m *Manager) Reap() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []*Session
	cutoff := m.now().Add(-m.window)
	for token, s := range m.sessions {
		if !s.Connected && s.LastSeen.Before(cutoff) {
			delete(m.sessions, token)
			reaped = append(reaped, s)
		}
	}
	return reaped
}
