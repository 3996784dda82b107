package room

import (
	"context"
	"errors"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrPlayerBusy   = errors.New("player already in room")
)

// Repo 房间登记：房间记录 + 玩家 -> 房间 索引
type Repo interface {
	// Reserve 原子地登记房间；任一玩家已在其他房间时返回 ErrPlayerBusy 且不写入任何数据
	Reserve(ctx context.Context, room *Room, ttlSeconds int) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	// GetPlayerRoom 返回玩家所在房间 ID，不在任何房间时返回 ""
	GetPlayerRoom(ctx context.Context, player string) (string, error)
	// Touch 续期房间及仍指向它的玩家索引；房间已不存在时返回 ErrRoomNotFound
	Touch(ctx context.Context, id string, ttlSeconds int) error
	// Release 删除房间及其玩家索引；房间不存在不是错误
	Release(ctx context.Context, id string) error
}
