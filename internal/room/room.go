// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/durakhq/durak/internal/engine"
)

// DefaultMaxPlayers caps a table at the size a 36-card deal supports.
const DefaultMaxPlayers = 6

// Seat records one player's membership in a room, in join order. The
// seat list is the source of truth for playersOrder when the game
// starts.
type Seat struct {
	PlayerID  string `json:"playerId"`
	Nickname  string `json:"nickname"`
	Connected bool   `json:"connected"`
}

// Room is one live table: its lobby roster plus, once started, the
// engine triple. Mu serializes every engine call for the room; the
// engine itself performs no locking.
type Room struct {
	ID         uuid.UUID
	Name       string
	HostID     string
	MaxPlayers int
	CreatedAt  time.Time
	Settings   engine.GameSettings
	Seed       string

	Mu    sync.Mutex
	Seats []Seat

	// nil until StartGame succeeds
	State   *engine.GameState
	Players engine.Players
	Deck    *engine.Deck

	actionIndex int
}

// started reports whether the game has begun. Callers must hold Mu.
func (r *Room) started() bool {
	return r.State != nil
}

func (r *Room) seatIndex(playerID string) int {
	for i, s := range r.Seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// snapshot builds the persistence model. Callers must hold Mu.
func (r *Room) snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		ID:         r.ID.String(),
		Name:       r.Name,
		HostID:     r.HostID,
		MaxPlayers: r.MaxPlayers,
		CreatedAt:  r.CreatedAt.UnixMilli(),
		Seed:       r.Seed,
		Settings:   r.Settings,
		Seats:      append([]Seat{}, r.Seats...),
		State:      r.State,
		Players:    r.Players,
	}
	if r.Deck != nil {
		snap.Deck = *r.Deck
	}
	return snap
}

// roomFromSnapshot rebuilds a live room from its persisted form.
func roomFromSnapshot(snap *RoomSnapshot) (*Room, error) {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return nil, err
	}
	r := &Room{
		ID:         id,
		Name:       snap.Name,
		HostID:     snap.HostID,
		MaxPlayers: snap.MaxPlayers,
		CreatedAt:  time.UnixMilli(snap.CreatedAt),
		Settings:   snap.Settings,
		Seed:       snap.Seed,
		Seats:      append([]Seat{}, snap.Seats...),
		State:      snap.State,
		Players:    snap.Players,
	}
	if snap.State != nil {
		deck := snap.Deck
		r.Deck = &deck
		// Rehydrated players start disconnected until they reattach.
		for _, p := range r.Players {
			p.IsConnected = false
		}
		for i := range r.Seats {
			r.Seats[i].Connected = false
		}
	}
	return r, nil
}
