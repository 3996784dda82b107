package engine

import (
	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/rules"
	"TowerMerge/internal/game/state"
)

// Event names pushed to clients.
const (
	EventState         = "state"
	EventMatch         = "match"
	EventMerged        = "merged"
	EventShopOpened    = "shop_opened"
	EventRoundStarted  = "round_started"
	EventTowerUpgraded = "tower_upgraded"
	EventFinished      = "match_finished"
)

// PlayerView 只发给玩家本人的完整状态
type PlayerView struct {
	MatchID     string        `json:"matchId"`
	Round       int           `json:"round"`
	Phase       state.Phase   `json:"phase"`
	Player      *state.Player `json:"player"`
	UpgradeCost int           `json:"upgradeCost"`
	Done        bool          `json:"done"` // 本阶段已结束回合 / 已准备
}

// PublicPlayer 其他玩家可见的信息（不含手牌与牌堆内容）
type PublicPlayer struct {
	ID         string      `json:"id"`
	Board      state.Board `json:"board"`
	TowerLevel int         `json:"towerLevel"`
	HandCount  int         `json:"handCount"`
	DeckCount  int         `json:"deckCount"`
	Done       bool        `json:"done"`
}

type MatchView struct {
	MatchID string         `json:"matchId"`
	Round   int            `json:"round"`
	Phase   state.Phase    `json:"phase"`
	Players []PublicPlayer `json:"players"`
}

type MergedPayload struct {
	Player string        `json:"player"`
	Merges []rules.Merge `json:"merges"`
}

type ShopPayload struct {
	Round     int                  `json:"round"`
	Discarded map[string][]card.ID `json:"discarded"`
}

type TowerPayload struct {
	Player string `json:"player"`
	Level  int    `json:"level"`
	Cost   int    `json:"cost"`
}

func (e *Engine) playerView(id string) PlayerView {
	p := e.Match.States[id]
	return PlayerView{
		MatchID:     e.Match.ID,
		Round:       e.Match.Round,
		Phase:       e.Match.Phase,
		Player:      p.Clone(),
		UpgradeCost: e.opts.Costs.Cost(e.Match.Round, p.Tower.LastUpgradeRound),
		Done:        e.acted[id],
	}
}

func (e *Engine) matchView() MatchView {
	v := MatchView{
		MatchID: e.Match.ID,
		Round:   e.Match.Round,
		Phase:   e.Match.Phase,
		Players: make([]PublicPlayer, 0, len(e.Match.Players)),
	}
	for _, id := range e.Match.Players {
		p := e.Match.States[id]
		v.Players = append(v.Players, PublicPlayer{
			ID:         id,
			Board:      p.Board,
			TowerLevel: p.Tower.Level,
			HandCount:  len(p.Hand),
			DeckCount:  len(p.Deck),
			Done:       e.acted[id],
		})
	}
	return v
}
