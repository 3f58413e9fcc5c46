// internal/room/redis_store.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisRoomKeyPrefix = "durak:room:"
	redisRoomIndexKey  = "durak:rooms"
)

// RedisStore persists room snapshots as JSON values under
// "durak:room:<id>", with a set "durak:rooms" as the id index so List
// never has to SCAN.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, snap *RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal room snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisRoomKeyPrefix+snap.ID, data, 0)
	pipe.SAdd(ctx, redisRoomIndexKey, snap.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save room %s: %w", snap.ID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*RoomSnapshot, error) {
	data, err := s.client.Get(ctx, redisRoomKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}

	var snap RoomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal room %s: %w", id, err)
	}
	return &snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisRoomKeyPrefix+id)
	pipe.SRem(ctx, redisRoomIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, redisRoomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return ids, nil
}
