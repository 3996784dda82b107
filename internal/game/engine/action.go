package engine

import (
	"errors"

	"TowerMerge/internal/game/card"
)

// ActionKind 玩家动作类型，同时也是客户端消息的 event 名
type ActionKind string

const (
	ActionPlaceCard    ActionKind = "place_card"
	ActionEndRound     ActionKind = "end_round"
	ActionContinue     ActionKind = "continue"
	ActionUpgradeTower ActionKind = "upgrade_tower"

	actionFinish   ActionKind = "finish"
	actionSnapshot ActionKind = "snapshot"
)

var (
	ErrInvalidPhase     = errors.New("invalid phase")
	ErrUnknownPlayer    = errors.New("player not in match")
	ErrInsufficientGold = errors.New("insufficient gold")
	ErrUnknownAction    = errors.New("unknown action")
	ErrStopped          = errors.New("match engine stopped")
)

// PlaceCard 出牌参数：手牌下标、目标格、卡牌 ID（必须与手牌一致）
type PlaceCard struct {
	HandIndex int     `json:"handIndex"`
	Slot      int     `json:"slot"`
	Card      card.ID `json:"card"`
}

type finish struct {
	Winner string
}

type Action struct {
	Player  string
	Kind    ActionKind
	Payload any
	reply   chan result
}

type result struct {
	value any
	err   error
}
