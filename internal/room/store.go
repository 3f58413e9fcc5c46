// internal/room/store.go
package room

import (
	"context"
	"errors"
	"sync"

	"github.com/durakhq/durak/internal/engine"
)

// ErrRoomNotFound is returned by stores when no snapshot exists for
// the requested room id.
var ErrRoomNotFound = errors.New("room not found")

// RoomSnapshot is the full server-side persistence model for a room,
// hands and deck included. It is never sent to clients; redacted views
// are built by ServerStateFor.
type RoomSnapshot struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	HostID     string              `json:"hostId"`
	MaxPlayers int                 `json:"maxPlayers"`
	CreatedAt  int64               `json:"createdAt"`
	Seed       string              `json:"seed,omitempty"`
	Settings   engine.GameSettings `json:"settings"`
	Seats      []Seat              `json:"seats"`
	State      *engine.GameState   `json:"state,omitempty"`
	Players    engine.Players      `json:"players,omitempty"`
	Deck       engine.Deck         `json:"deck,omitempty"`
}

// Store persists room snapshots so a restarted server can rehydrate
// its live rooms. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, snap *RoomSnapshot) error
	Load(ctx context.Context, id string) (*RoomSnapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// MemoryStore is the default Store: a mutex-guarded map. Suitable for
// single-process deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]*RoomSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*RoomSnapshot)}
}

func (s *MemoryStore) Save(_ context.Context, snap *RoomSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return snap, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}
