package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// key 约定：
//
//	kv: tm:room:{id}           -> Room JSON
//	kv: tm:playerRoom:{player} -> roomID
//
// 两者 TTL 相同，遗留房间会自动过期
func roomKey(id string) string {
	return fmt.Sprintf("tm:room:%s", id)
}

func playerRoomKey(player string) string {
	return fmt.Sprintf("tm:playerRoom:%s", player)
}

// KEYS[1] = roomKey, KEYS[2..] = playerRoomKey...; ARGV[1] = room JSON, ARGV[2] = roomID, ARGV[3] = ttl
// 返回 "" 表示成功，否则返回已占用的 playerRoom key
var reserveScript = redis.NewScript(`
for i = 2, #KEYS do
    if redis.call("EXISTS", KEYS[i]) == 1 then
        return KEYS[i]
    end
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[3])
for i = 2, #KEYS do
    redis.call("SET", KEYS[i], ARGV[2], "EX", ARGV[3])
end
return ""
`)

func (r *redisRepo) Reserve(ctx context.Context, room *Room, ttlSeconds int) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(room.Players)+1)
	keys = append(keys, roomKey(room.ID))
	for _, p := range room.Players {
		keys = append(keys, playerRoomKey(p))
	}
	busy, err := reserveScript.Run(ctx, r.rdb, keys, data, room.ID, ttlSeconds).Text()
	if err != nil {
		return err
	}
	if busy != "" {
		return fmt.Errorf("%w: %s", ErrPlayerBusy, busy)
	}
	return nil
}

func (r *redisRepo) GetRoom(ctx context.Context, id string) (*Room, error) {
	data, err := r.rdb.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return &room, nil
}

func (r *redisRepo) GetPlayerRoom(ctx context.Context, player string) (string, error) {
	val, err := r.rdb.Get(ctx, playerRoomKey(player)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// KEYS[1] = roomKey, KEYS[2..] = playerRoomKey...; ARGV[1] = roomID, ARGV[2] = ttl
// 房间已过期返回 0；只续期仍指向本房间的玩家索引
var touchScript = redis.NewScript(`
if redis.call("EXPIRE", KEYS[1], ARGV[2]) == 0 then
    return 0
end
for i = 2, #KEYS do
    if redis.call("GET", KEYS[i]) == ARGV[1] then
        redis.call("EXPIRE", KEYS[i], ARGV[2])
    end
end
return 1
`)

func (r *redisRepo) Touch(ctx context.Context, id string, ttlSeconds int) error {
	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(room.Players)+1)
	keys = append(keys, roomKey(id))
	for _, p := range room.Players {
		keys = append(keys, playerRoomKey(p))
	}
	ok, err := touchScript.Run(ctx, r.rdb, keys, id, ttlSeconds).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// KEYS[1] = roomKey, KEYS[2..] = playerRoomKey...; ARGV[1] = roomID
// 只删除仍指向本房间的玩家索引
var releaseScript = redis.NewScript(`
for i = 2, #KEYS do
    if redis.call("GET", KEYS[i]) == ARGV[1] then
        redis.call("DEL", KEYS[i])
    end
end
redis.call("DEL", KEYS[1])
return 1
`)

func (r *redisRepo) Release(ctx context.Context, id string) error {
	room, err := r.GetRoom(ctx, id)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(room.Players)+1)
	keys = append(keys, roomKey(id))
	for _, p := range room.Players {
		keys = append(keys, playerRoomKey(p))
	}
	return releaseScript.Run(ctx, r.rdb, keys, id).Err()
}
