package room

import "time"

// MaxPlayers 单局人数上限
const MaxPlayers = 8

// CreateRequest 创建对局房间；玩家列表由大厅/外部服务给出
type CreateRequest struct {
	Players []string            `json:"players" binding:"required,min=1"`
	Decks   map[string][]string `json:"decks,omitempty"` // 可选：按玩家指定起始牌组
}

// Room 房间记录
type Room struct {
	ID        string              `json:"id"`
	Players   []string            `json:"players"`
	Decks     map[string][]string `json:"decks,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}
