// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/durakhq/durak/internal/engine"
	"github.com/durakhq/durak/internal/middleware"
	"github.com/durakhq/durak/internal/room"
)

// ClientMessage is the single incoming frame shape. Type selects the
// operation; the other fields are read per-type.
type ClientMessage struct {
	Type string `json:"type"`

	// hello
	Nickname     string `json:"nickname,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`

	// room operations
	RoomID string `json:"roomId,omitempty"`
	Name   string `json:"name,omitempty"`

	// gameplay
	Cards       []engine.Card `json:"cards,omitempty"`
	AttackIndex int           `json:"attackIndex,omitempty"`
	Card        engine.Card   `json:"card,omitempty"`
}

// ServerMessage is the single outgoing frame shape.
type ServerMessage struct {
	Type         string            `json:"type"`
	Message      string            `json:"message,omitempty"`
	SessionToken string            `json:"sessionToken,omitempty"`
	PlayerID     string            `json:"playerId,omitempty"`
	RoomID       string            `json:"roomId,omitempty"`
	State        *room.ClientState `json:"state,omitempty"`
}

// GameWSHandler upgrades the connection, performs the hello/session
// handshake, then reads client messages until the socket closes. Every
// gameplay message acts as the session's player; the payload never
// chooses its own identity.
func GameWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"durak"},
			OriginPatterns: []string{"*"}, // tighten for production deployments
		})
		if err != nil {
			gs.Logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal error")

		if c.Subprotocol() != "durak" {
			c.Close(websocket.StatusPolicyViolation, "client must use the 'durak' subprotocol")
			return
		}
		middleware.LogWebSocketConnect(gs.Logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		cl, err := gs.handshake(ctx, c)
		if err != nil {
			gs.Logger.Warnf("handshake failed from %s: %v", r.RemoteAddr, err)
			c.Close(websocket.StatusPolicyViolation, "handshake failed")
			return
		}
		gs.addClient(cl)

		gs.readLoop(ctx, cl)

		gs.handleSocketClose(cl)
		middleware.LogWebSocketDisconnect(gs.Logger, r.RemoteAddr, r.URL.Path, nil)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// handshake consumes the first frame, which must be a hello. A hello
// carrying a valid session token resumes that session (reconnect);
// otherwise a fresh player identity is minted.
func (gs *GameServer) handshake(ctx context.Context, c *websocket.Conn) (*client, error) {
	_, data, err := c.Read(ctx)
	if err != nil {
		return nil, err
	}
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != "hello" {
		return nil, errors.New("first message must be hello")
	}

	socketID := uuid.NewString()
	cl := &client{conn: c, socketID: socketID}

	if msg.SessionToken != "" {
		sess, err := gs.Sessions.Reconnect(msg.SessionToken, socketID)
		if err == nil {
			cl.sess = sess
			gs.send(cl, ServerMessage{
				Type:         "session",
				SessionToken: sess.Token,
				PlayerID:     sess.PlayerID,
			})
			gs.resumeRoom(cl)
			return cl, nil
		}
		gs.Logger.Infof("stale session token, issuing a new session: %v", err)
	}

	nickname := msg.Nickname
	if nickname == "" {
		nickname = "guest"
	}
	sess := gs.Sessions.Create(uuid.NewString(), nickname, socketID)
	cl.sess = sess
	gs.send(cl, ServerMessage{
		Type:         "session",
		SessionToken: sess.Token,
		PlayerID:     sess.PlayerID,
	})
	return cl, nil
}

// resumeRoom reattaches a reconnected player to the room that still
// holds their seat, if any, and replays the current state to them.
func (gs *GameServer) resumeRoom(cl *client) {
	roomID, ok := gs.Rooms.RoomOf(cl.sess.PlayerID)
	if !ok {
		return
	}
	if err := gs.Rooms.JoinRoom(context.Background(), roomID, cl.sess.PlayerID, cl.sess.Nickname); err != nil {
		gs.Logger.Warnf("resume room %s for player %s: %v", roomID, cl.sess.PlayerID, err)
		return
	}
	gs.attachToRoom(cl, roomID)
	gs.BroadcastRoomState(roomID)
}

func (gs *GameServer) readLoop(ctx context.Context, cl *client) {
	for {
		msgType, data, err := cl.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				strings.Contains(err.Error(), "context canceled") {
				return
			}
			gs.Logger.Warnf("read error for player %s: %v", cl.sess.PlayerID, err)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			gs.sendError(cl, "invalid JSON")
			continue
		}

		gs.Sessions.Touch(cl.sess.Token)
		gs.route(ctx, cl, msg)
	}
}

// route dispatches one decoded client message.
func (gs *GameServer) route(ctx context.Context, cl *client, msg ClientMessage) {
	switch msg.Type {
	case "ping":
		gs.send(cl, ServerMessage{Type: "pong"})

	case "create_room":
		r, err := gs.Rooms.CreateRoom(ctx, msg.Name, cl.sess.PlayerID, cl.sess.Nickname, engine.DefaultSettings())
		if err != nil {
			gs.sendError(cl, err.Error())
			return
		}
		gs.attachToRoom(cl, r.ID)
		gs.send(cl, ServerMessage{Type: "room_created", RoomID: r.ID.String()})
		gs.BroadcastRoomState(r.ID)

	case "join_room":
		roomID, err := uuid.Parse(msg.RoomID)
		if err != nil {
			gs.sendError(cl, "invalid room id")
			return
		}
		if err := gs.Rooms.JoinRoom(ctx, roomID, cl.sess.PlayerID, cl.sess.Nickname); err != nil {
			gs.sendError(cl, err.Error())
			return
		}
		gs.attachToRoom(cl, roomID)
		gs.BroadcastRoomState(roomID)

	case "leave_room":
		roomID := cl.roomID
		if roomID == uuid.Nil {
			gs.sendError(cl, "not in a room")
			return
		}
		if err := gs.Rooms.LeaveRoom(ctx, roomID, cl.sess.PlayerID); err != nil {
			gs.sendError(cl, err.Error())
			return
		}
		gs.detachFromRoom(cl)
		gs.BroadcastRoomState(roomID)

	case "start_game":
		if cl.roomID == uuid.Nil {
			gs.sendError(cl, "not in a room")
			return
		}
		if err := gs.Rooms.StartGame(ctx, cl.roomID, cl.sess.PlayerID); err != nil {
			gs.sendError(cl, err.Error())
			return
		}
		gs.BroadcastRoomState(cl.roomID)

	case "play_attack", "play_defense", "take", "end_turn":
		gs.handleGameplay(ctx, cl, msg)

	default:
		gs.sendError(cl, "unknown message type: "+msg.Type)
	}
}

// handleGameplay pre-filters role mismatches cheaply, then submits the
// action. The engine remains the final authority; the pre-filter only
// spares it the obvious out-of-turn traffic.
func (gs *GameServer) handleGameplay(ctx context.Context, cl *client, msg ClientMessage) {
	if cl.roomID == uuid.Nil {
		gs.sendError(cl, "not in a room")
		return
	}
	playerID := cl.sess.PlayerID

	r, ok := gs.Rooms.GetRoom(cl.roomID)
	if ok {
		r.Mu.Lock()
		state := r.State
		if state != nil {
			switch msg.Type {
			case "play_attack", "end_turn":
				if !engine.IsPlayerAttacker(state, playerID) {
					r.Mu.Unlock()
					gs.sendError(cl, "not your turn to attack")
					return
				}
			case "play_defense", "take":
				if !engine.IsPlayerDefender(state, playerID) {
					r.Mu.Unlock()
					gs.sendError(cl, "not your turn to defend")
					return
				}
			}
		}
		r.Mu.Unlock()
	}

	var action engine.Action
	switch msg.Type {
	case "play_attack":
		action = engine.PlayAttack{PlayerID: playerID, Cards: msg.Cards}
	case "play_defense":
		action = engine.PlayDefense{PlayerID: playerID, AttackIndex: msg.AttackIndex, Card: msg.Card}
	case "take":
		action = engine.Take{PlayerID: playerID}
	case "end_turn":
		action = engine.EndTurn{PlayerID: playerID}
	}

	res := gs.Rooms.ProcessAction(ctx, cl.roomID, action)
	if !res.Success {
		gs.sendError(cl, res.Error)
		return
	}
	gs.BroadcastRoomState(cl.roomID)
}

// handleSocketClose runs when a read loop exits: the session enters
// its reconnect window and the player's seat is only marked offline,
// never freed, so reconnecting resumes the same place.
func (gs *GameServer) handleSocketClose(cl *client) {
	gs.Sessions.Disconnect(cl.socketID)

	roomID := cl.roomID
	gs.removeClient(cl)
	if roomID == uuid.Nil {
		return
	}
	if err := gs.Rooms.MarkDisconnected(context.Background(), roomID, cl.sess.PlayerID); err != nil &&
		!errors.Is(err, room.ErrRoomNotFound) && !errors.Is(err, room.ErrNotInRoom) {
		gs.Logger.Warnf("disconnect for player %s: %v", cl.sess.PlayerID, err)
	}
	gs.BroadcastRoomState(roomID)
}
