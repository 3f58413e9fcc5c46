// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/durakhq/durak/internal/room"
	"github.com/durakhq/durak/internal/session"
)

// writeTimeout bounds every WebSocket write so one stalled client
// cannot hold up a broadcast.
const writeTimeout = 3 * time.Second

// client is one live WebSocket connection and what we know about it.
type client struct {
	conn     *websocket.Conn
	socketID string
	sess     *session.Session
	roomID   uuid.UUID // uuid.Nil until the client enters a room
}

// GameServer routes WebSocket traffic into the room manager and fans
// redacted per-player state back out to every connection in a room.
type GameServer struct {
	Rooms    *room.Manager
	Sessions *session.Manager
	Logger   *logrus.Logger

	mu      sync.Mutex
	clients map[string]*client               // socketID -> client
	byRoom  map[uuid.UUID]map[string]*client // roomID -> playerID -> client
}

func NewGameServer(rooms *room.Manager, sessions *session.Manager, logger *logrus.Logger) *GameServer {
	return &GameServer{
		Rooms:    rooms,
		Sessions: sessions,
		Logger:   logger,
		clients:  make(map[string]*client),
		byRoom:   make(map[uuid.UUID]map[string]*client),
	}
}

func (gs *GameServer) addClient(c *client) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.clients[c.socketID] = c
}

func (gs *GameServer) removeClient(c *client) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	delete(gs.clients, c.socketID)
	gs.detachFromRoomLocked(c)
}

// attachToRoom binds the client's player id to a room so broadcasts
// reach it. A client is in at most one room at a time.
func (gs *GameServer) attachToRoom(c *client, roomID uuid.UUID) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.detachFromRoomLocked(c)
	if gs.byRoom[roomID] == nil {
		gs.byRoom[roomID] = make(map[string]*client)
	}
	gs.byRoom[roomID][c.sess.PlayerID] = c
	c.roomID = roomID
}

func (gs *GameServer) detachFromRoom(c *client) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.detachFromRoomLocked(c)
}

func (gs *GameServer) detachFromRoomLocked(c *client) {
	if c.roomID == uuid.Nil {
		return
	}
	if m, ok := gs.byRoom[c.roomID]; ok {
		if m[c.sess.PlayerID] == c {
			delete(m, c.sess.PlayerID)
		}
		if len(m) == 0 {
			delete(gs.byRoom, c.roomID)
		}
	}
	c.roomID = uuid.Nil
}

// BroadcastRoomState sends each connected player in the room their own
// redacted view. Writes run asynchronously with a per-write timeout so
// gameplay never blocks on a slow socket.
func (gs *GameServer) BroadcastRoomState(roomID uuid.UUID) {
	gs.mu.Lock()
	targets := make([]*client, 0, len(gs.byRoom[roomID]))
	for _, c := range gs.byRoom[roomID] {
		targets = append(targets, c)
	}
	gs.mu.Unlock()

	for _, c := range targets {
		cs, err := gs.Rooms.ServerStateFor(roomID, c.sess.PlayerID)
		if err != nil {
			gs.Logger.Warnf("state for player %s in room %s: %v", c.sess.PlayerID, roomID, err)
			continue
		}
		go gs.send(c, ServerMessage{Type: "state", State: cs})
	}
}

// send marshals and writes one message to a single client.
func (gs *GameServer) send(c *client, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		gs.Logger.Errorf("marshal %s message: %v", msg.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		gs.Logger.Warnf("write to player %s: %v", c.sess.PlayerID, err)
	}
}

func (gs *GameServer) sendError(c *client, reason string) {
	gs.send(c, ServerMessage{Type: "error", Message: reason})
}

// ReapSessions runs the session reaper on a ticker and detaches every
// expired player from their room. Started once from main.
func (gs *GameServer) ReapSessions(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gs.reapOnce(ctx)
		}
	}
}

// reapOnce expires sessions past their reconnect window and cleans up
// the rooms they leave behind. A started room whose every seat has
// expired can never see another action, so it is deleted rather than
// left in the manager and store forever.
func (gs *GameServer) reapOnce(ctx context.Context) {
	for _, s := range gs.Sessions.Reap() {
		gs.Logger.WithField("player", s.PlayerID).Info("session expired")
		roomID, ok := gs.Rooms.RoomOf(s.PlayerID)
		if !ok {
			continue
		}
		if err := gs.Rooms.LeaveRoom(ctx, roomID, s.PlayerID); err != nil {
			gs.Logger.Warnf("evict expired player %s: %v", s.PlayerID, err)
			continue
		}
		if gs.Rooms.DeleteIfAbandoned(ctx, roomID, gs.Sessions.HasPlayer) {
			continue
		}
		gs.BroadcastRoomState(roomID)
	}
}
