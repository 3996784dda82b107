package state

import (
	"slices"

	"TowerMerge/internal/game/card"
)

// BoardSize 棋盘固定 7 格
const BoardSize = 7

// Phase 对局阶段
type Phase string

const (
	PhasePlaying  Phase = "playing"
	PhaseShop     Phase = "shop"
	PhaseFinished Phase = "finished"
)

// Slot 棋盘格；空格为 Card == "" 且 Stack == 0
type Slot struct {
	Card  card.ID `json:"card,omitempty"`
	Stack int     `json:"stack"`
}

func (s Slot) Empty() bool {
	return s.Card == ""
}

type Board [BoardSize]Slot

// Occupied returns the number of non-empty slots.
func (b *Board) Occupied() int {
	n := 0
	for _, s := range b {
		if !s.Empty() {
			n++
		}
	}
	return n
}

// TowerRecord 塔升级记录；LastUpgradeRound == 0 表示本局从未升级
type TowerRecord struct {
	Level            int `json:"level"`
	LastUpgradeRound int `json:"lastUpgradeRound"`
}

// Player 单个玩家在对局中的全部状态
type Player struct {
	ID      string      `json:"id"`
	Hand    []card.ID   `json:"hand"`
	Deck    []card.ID   `json:"deck"`
	Discard []card.ID   `json:"discard"` // 无序
	Board   Board       `json:"board"`
	Tower   TowerRecord `json:"tower"`
	Gold    int         `json:"gold"`
}

func NewPlayer(id string) *Player {
	return &Player{
		ID:      id,
		Hand:    []card.ID{},
		Deck:    []card.ID{},
		Discard: []card.ID{},
	}
}

// Clone returns a deep copy; slices are never shared with the receiver.
func (p *Player) Clone() *Player {
	c := *p
	c.Hand = slices.Clone(p.Hand)
	c.Deck = slices.Clone(p.Deck)
	c.Discard = slices.Clone(p.Discard)
	return &c
}

// Match 一局游戏的权威状态，只能由该局的 engine 协程修改
type Match struct {
	ID      string
	Players []string // 座位顺序
	States  map[string]*Player
	Round   int
	Phase   Phase
}

func NewMatch(id string, players []string) *Match {
	m := &Match{
		ID:      id,
		Players: slices.Clone(players),
		States:  make(map[string]*Player, len(players)),
		Round:   1,
		Phase:   PhasePlaying,
	}
	for _, p := range players {
		m.States[p] = NewPlayer(p)
	}
	return m
}

func (m *Match) Has(player string) bool {
	_, ok := m.States[player]
	return ok
}
