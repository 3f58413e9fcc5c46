// internal/room/manager.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/durakhq/durak/internal/cache"
	"github.com/durakhq/durak/internal/engine"
)

var (
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrNotStarted       = errors.New("game has not started")
	ErrNotInRoom        = errors.New("player is not in this room")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
)

// Manager owns every live room in this process. Room lookup is guarded
// by the manager mutex; all gameplay inside a room is serialized by
// that room's own mutex, so two rooms never block each other.
type Manager struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	store  Store
	logger *logrus.Logger
}

func NewManager(store Store, logger *logrus.Logger) *Manager {
	return &Manager{
		rooms:  make(map[uuid.UUID]*Room),
		store:  store,
		logger: logger,
	}
}

// Rehydrate loads every persisted room snapshot back into memory.
// Called once at startup, before the server accepts connections.
func (m *Manager) Rehydrate(ctx context.Context) error {
	ids, err := m.store.List(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		snap, err := m.store.Load(ctx, id)
		if err != nil {
			m.logger.Warnf("rehydrate: skipping room %s: %v", id, err)
			continue
		}
		r, err := roomFromSnapshot(snap)
		if err != nil {
			m.logger.Warnf("rehydrate: bad snapshot for room %s: %v", id, err)
			continue
		}
		m.rooms[r.ID] = r
	}
	m.logger.Infof("rehydrated %d room(s)", len(m.rooms))
	return nil
}

// CreateRoom opens a new lobby with the creator seated as host.
func (m *Manager) CreateRoom(ctx context.Context, name, hostID, nickname string, settings engine.GameSettings) (*Room, error) {
	if hostID == "" {
		return nil, errors.New("host id required")
	}
	if name == "" {
		name = "durak"
	}

	r := &Room{
		ID:         uuid.New(),
		Name:       name,
		HostID:     hostID,
		MaxPlayers: DefaultMaxPlayers,
		CreatedAt:  time.Now(),
		Settings:   settings,
		Seats:      []Seat{{PlayerID: hostID, Nickname: nickname, Connected: true}},
	}

	m.mu.Lock()
	m.rooms[r.ID] = r
	m.mu.Unlock()

	m.persist(ctx, r)
	m.logger.WithFields(logrus.Fields{"room": r.ID, "host": hostID}).Info("room created")
	return r, nil
}

func (m *Manager) GetRoom(id uuid.UUID) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomSummary is the public listing entry for GET /rooms.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Phase       string `json:"phase"`
	CreatedAt   int64  `json:"createdAt"`
}

func (m *Manager) RoomSummaries() []RoomSummary {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.Mu.Lock()
		phase := engine.PhaseLobby
		if r.started() {
			phase = r.State.Phase
		}
		out = append(out, RoomSummary{
			ID:          r.ID.String(),
			Name:        r.Name,
			PlayerCount: len(r.Seats),
			MaxPlayers:  r.MaxPlayers,
			Phase:       string(phase),
			CreatedAt:   r.CreatedAt.UnixMilli(),
		})
		r.Mu.Unlock()
	}
	return out
}

// JoinRoom seats a new player in a lobby, or reattaches a known player
// to a running game. Joining a started game with an unknown player id
// is refused; that is what keeps reconnects safe without letting
// strangers into a live deal.
func (m *Manager) JoinRoom(ctx context.Context, roomID uuid.UUID, playerID, nickname string) error {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	idx := r.seatIndex(playerID)
	if r.started() {
		if idx < 0 {
			return ErrAlreadyStarted
		}
		r.Seats[idx].Connected = true
		if p, ok := r.Players[playerID]; ok {
			p.IsConnected = true
		}
		m.persist(ctx, r)
		m.logger.WithFields(logrus.Fields{"room": r.ID, "player": playerID}).Info("player reconnected")
		return nil
	}

	if idx >= 0 {
		r.Seats[idx].Connected = true
		m.persist(ctx, r)
		return nil
	}
	if len(r.Seats) >= r.MaxPlayers {
		return ErrRoomFull
	}

	r.Seats = append(r.Seats, Seat{PlayerID: playerID, Nickname: nickname, Connected: true})
	m.persist(ctx, r)
	m.logger.WithFields(logrus.Fields{"room": r.ID, "player": playerID}).Info("player joined")
	return nil
}

// RoomOf finds the room currently seating the player. Linear over the
// room map, which stays small enough per process for that to be fine.
func (m *Manager) RoomOf(playerID string) (uuid.UUID, bool) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.Mu.Lock()
		seated := r.seatIndex(playerID) >= 0
		r.Mu.Unlock()
		if seated {
			return r.ID, true
		}
	}
	return uuid.Nil, false
}

// MarkDisconnected flags the player as offline without freeing their
// seat, so a dropped socket can reconnect into the same place. Used on
// socket close; an explicit leave goes through LeaveRoom.
func (m *Manager) MarkDisconnected(ctx context.Context, roomID uuid.UUID, playerID string) error {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	idx := r.seatIndex(playerID)
	if idx < 0 {
		return ErrNotInRoom
	}
	r.Seats[idx].Connected = false
	if p, ok := r.Players[playerID]; ok {
		p.IsConnected = false
	}
	m.persist(ctx, r)
	m.logger.WithFields(logrus.Fields{"room": r.ID, "player": playerID}).Info("player disconnected")
	return nil
}

// LeaveRoom removes a player from a lobby, or marks them disconnected
// in a running game (their seat and hand survive for reconnect). An
// emptied lobby is deleted outright.
func (m *Manager) LeaveRoom(ctx context.Context, roomID uuid.UUID, playerID string) error {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	r.Mu.Lock()
	idx := r.seatIndex(playerID)
	if idx < 0 {
		r.Mu.Unlock()
		return ErrNotInRoom
	}

	if r.started() {
		r.Seats[idx].Connected = false
		if p, ok := r.Players[playerID]; ok {
			p.IsConnected = false
		}
		m.persist(ctx, r)
		r.Mu.Unlock()
		m.logger.WithFields(logrus.Fields{"room": r.ID, "player": playerID}).Info("player disconnected")
		return nil
	}

	r.Seats = append(r.Seats[:idx], r.Seats[idx+1:]...)
	empty := len(r.Seats) == 0
	if !empty && r.HostID == playerID {
		r.HostID = r.Seats[0].PlayerID
	}
	if !empty {
		m.persist(ctx, r)
	}
	r.Mu.Unlock()

	if empty {
		m.mu.Lock()
		delete(m.rooms, roomID)
		m.mu.Unlock()
		if err := m.store.Delete(ctx, roomID.String()); err != nil {
			m.logger.Warnf("delete room %s from store: %v", roomID, err)
		}
		m.logger.WithField("room", roomID).Info("empty room deleted")
	}
	return nil
}

// DeleteIfAbandoned deletes a started room once every seat is offline
// and no seated player can still reconnect (per hasSession). Such a
// room can never produce another action, so keeping it only leaks
// memory and store keys. Reports whether the room was deleted.
func (m *Manager) DeleteIfAbandoned(ctx context.Context, roomID uuid.UUID, hasSession func(playerID string) bool) bool {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return false
	}

	r.Mu.Lock()
	abandoned := r.started()
	if abandoned {
		for _, s := range r.Seats {
			if s.Connected || (hasSession != nil && hasSession(s.PlayerID)) {
				abandoned = false
				break
			}
		}
	}
	r.Mu.Unlock()
	if !abandoned {
		return false
	}

	m.mu.Lock()
	delete(m.rooms, roomID)
	m.mu.Unlock()
	if err := m.store.Delete(ctx, roomID.String()); err != nil {
		m.logger.Warnf("delete room %s from store: %v", roomID, err)
	}
	m.logger.WithField("room", roomID).Info("abandoned room deleted")
	return true
}

// StartGame deals the room. Only the host may start, a lobby only
// starts once, and the seed is generated server-side so every game is
// replayable for audit.
func (m *Manager) StartGame(ctx context.Context, roomID uuid.UUID, playerID string) error {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.started() {
		return ErrAlreadyStarted
	}
	if playerID != r.HostID {
		return ErrNotHost
	}
	if len(r.Seats) < engine.MinPlayers {
		return ErrNotEnoughPlayers
	}

	playerIDs := make([]string, len(r.Seats))
	for i, s := range r.Seats {
		playerIDs[i] = s.PlayerID
	}

	seed := engine.GenerateSeed()
	state, players, deck, err := engine.CreateGame(r.ID.String(), playerIDs, r.Settings, seed)
	if err != nil {
		return err
	}
	for _, s := range r.Seats {
		if p, ok := players[s.PlayerID]; ok {
			p.Nickname = s.Nickname
			p.IsConnected = s.Connected
		}
	}

	r.Seed = seed
	r.State = state
	r.Players = players
	r.Deck = deck

	m.persist(ctx, r)
	m.publishAudit(r, "start_game", playerID, map[string]interface{}{"players": playerIDs}, seed)
	m.logger.WithFields(logrus.Fields{
		"room":    r.ID,
		"players": len(playerIDs),
		"trump":   state.TrumpSuit,
	}).Info("game started")
	return nil
}

// ProcessAction runs one engine action under the room lock and, when
// the round closes, resolves the draw phase: refill hands attacker
// first and defender last, then either finish the game or rotate the
// turn. The defender-took flag comes from the action itself.
func (m *Manager) ProcessAction(ctx context.Context, roomID uuid.UUID, action engine.Action) engine.GameResult {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return engine.GameResult{Success: false, Error: ErrRoomNotFound.Error()}
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.started() {
		return engine.GameResult{Success: false, Error: ErrNotStarted.Error()}
	}

	res := engine.Apply(r.State, r.Players, r.Deck, action)
	if !res.Success {
		return res
	}
	r.actionIndex++

	_, defenderTook := action.(engine.Take)
	if r.State.Phase == engine.PhaseDraw {
		m.resolveDrawPhase(r, defenderTook)
	}

	m.persist(ctx, r)
	m.publishAudit(r, actionName(action), action.ActorID(), actionPayload(action), "")
	if r.State.Phase == engine.PhaseFinished {
		m.publishAudit(r, "game_finished", "", map[string]interface{}{
			"loserId":   r.State.LoserID,
			"winnerIds": r.State.WinnerIDs,
		}, "")
	}
	return res
}

// resolveDrawPhase is the between-rounds bookkeeping the engine leaves
// to its caller. Must be called with the room lock held and the state
// in the draw phase.
func (m *Manager) resolveDrawPhase(r *Room, defenderTook bool) {
	order := drawOrder(r.State)
	engine.DrawUpToSix(r.Players, r.Deck, order)
	r.State.DeckCount = len(*r.Deck)

	if engine.IsGameOver(r.State, r.Players) {
		engine.FinishGame(r.State, r.Players)
		m.logger.WithFields(logrus.Fields{
			"room":  r.ID,
			"loser": r.State.LoserID,
		}).Info("game finished")
		return
	}

	turn, ok := engine.NextTurn(r.State, r.Players, defenderTook)
	if !ok {
		// Should be unreachable while the game is live.
		m.logger.Warnf("turn rotation found no attacker/defender pair in room %s", r.ID)
	}
	r.State.Turn = turn
	r.State.Phase = engine.PhaseAttacking
}

// drawOrder returns the refill order: attacker first, then the other
// attackers clockwise, defender last.
func drawOrder(state *engine.GameState) []string {
	n := len(state.PlayersOrder)
	start := 0
	for i, id := range state.PlayersOrder {
		if id == state.Turn.AttackerID {
			start = i
			break
		}
	}

	order := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := state.PlayersOrder[(start+i)%n]
		if id != state.Turn.DefenderID {
			order = append(order, id)
		}
	}
	return append(order, state.Turn.DefenderID)
}

// PlayerView is the redacted representation of another player: hand
// size only, never cards.
type PlayerView struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	HandCount   int    `json:"handCount"`
	IsConnected bool   `json:"isConnected"`
}

// ClientState is the per-player fan-out payload: the shared game state
// (which carries no hands), the viewer's own hand, and redacted views
// of everyone at the table.
type ClientState struct {
	RoomID  string            `json:"roomId"`
	Name    string            `json:"name"`
	HostID  string            `json:"hostId"`
	Started bool              `json:"started"`
	State   *engine.GameState `json:"state,omitempty"`
	Hand    []engine.Card     `json:"hand,omitempty"`
	Players []PlayerView      `json:"players"`
}

// ServerStateFor builds the redacted view for one player.
func (m *Manager) ServerStateFor(roomID uuid.UUID, playerID string) (*ClientState, error) {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	cs := &ClientState{
		RoomID:  r.ID.String(),
		Name:    r.Name,
		HostID:  r.HostID,
		Started: r.started(),
	}

	if !r.started() {
		for _, s := range r.Seats {
			cs.Players = append(cs.Players, PlayerView{
				ID:          s.PlayerID,
				Nickname:    s.Nickname,
				IsConnected: s.Connected,
			})
		}
		return cs, nil
	}

	// Detach the payload from the live state: the caller marshals it
	// after this lock is released, while the next action may already
	// be mutating the room.
	cs.State = r.State.Clone()
	if p, ok := r.Players[playerID]; ok {
		cs.Hand = append([]engine.Card{}, p.Hand...)
	}
	for _, id := range r.State.PlayersOrder {
		p := r.Players[id]
		cs.Players = append(cs.Players, PlayerView{
			ID:          p.ID,
			Nickname:    p.Nickname,
			HandCount:   p.HandCount,
			IsConnected: p.IsConnected,
		})
	}
	return cs, nil
}

func (m *Manager) persist(ctx context.Context, r *Room) {
	if err := m.store.Save(ctx, r.snapshot()); err != nil {
		m.logger.Warnf("persist room %s: %v", r.ID, err)
	}
}

// publishAudit pushes one record onto the historian queue. Fire and
// forget; a dead queue must never stall gameplay.
func (m *Manager) publishAudit(r *Room, actionType, actorID string, payload map[string]interface{}, seed string) {
	rec := cache.GameActionRecord{
		RoomID:        r.ID.String(),
		ActionIndex:   r.actionIndex,
		ActorID:       actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Seed:          seed,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			m.logger.Warnf("audit publish for room %s: %v", rec.RoomID, err)
		}
	}()
}

func actionName(action engine.Action) string {
	switch action.(type) {
	case engine.PlayAttack:
		return "play_attack"
	case engine.PlayDefense:
		return "play_defense"
	case engine.Take:
		return "take"
	case engine.EndTurn:
		return "end_turn"
	default:
		return "unknown"
	}
}

func actionPayload(action engine.Action) map[string]interface{} {
	payload := map[string]interface{}{}
	data, err := json.Marshal(action)
	if err != nil {
		return payload
	}
	_ = json.Unmarshal(data, &payload)
	return payload
}
