package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/engine"
	"TowerMerge/internal/game/state"
	"TowerMerge/internal/room"
	"TowerMerge/internal/utils"
	"TowerMerge/internal/websocket"
)

var ErrNoMatch = errors.New("no running match")

// GameManager 管理所有对局
type GameManager struct {
	mu           sync.RWMutex
	engines      map[string]*engine.Engine // roomID → engine
	playerToRoom map[string]string         // player → roomID
	hub          websocket.HubInterface
	catalog      card.Catalog
	opts         engine.Options

	// ActionTimeout 单个玩家动作等待 engine 处理的上限
	ActionTimeout time.Duration
	// OnFinished 对局结束后调用（持久化战报、释放房间等）
	OnFinished func(engine.Report)
}

func NewGameManager(hub websocket.HubInterface, catalog card.Catalog, opts engine.Options) *GameManager {
	return &GameManager{
		engines:       make(map[string]*engine.Engine),
		playerToRoom:  make(map[string]string),
		hub:           hub,
		catalog:       catalog,
		opts:          opts,
		ActionTimeout: 5 * time.Second,
	}
}

// StartRoom 创建对局并启动 engine。房间登记是权威来源：玩家仍挂在旧对局上
// （旧房间登记已过期）时，旧对局被停止
func (m *GameManager) StartRoom(r *room.Room) error {
	m.mu.Lock()
	if _, ok := m.engines[r.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("engine for room %s exists", r.ID)
	}

	var stale []*engine.Engine
	for _, p := range r.Players {
		if old, ok := m.playerToRoom[p]; ok {
			if eng := m.removeLocked(old); eng != nil {
				stale = append(stale, eng)
			}
		}
	}

	opts := m.opts
	if len(r.Decks) > 0 {
		opts.Decks = make(map[string][]card.ID, len(r.Decks))
		for p, ids := range r.Decks {
			deck := make([]card.ID, len(ids))
			for i, id := range ids {
				deck[i] = card.ID(id)
			}
			opts.Decks[p] = deck
		}
	}

	eng := engine.NewEngine(state.NewMatch(r.ID, r.Players), m.catalog, m.hub, opts)
	m.engines[r.ID] = eng
	for _, p := range r.Players {
		m.playerToRoom[p] = r.ID
	}
	eng.Start()
	m.mu.Unlock()

	for _, old := range stale {
		utils.Log.Warn("stopping stale match", "match", old.Match.ID, "replaced_by", r.ID)
		old.Stop()
	}
	utils.Log.Info("match started", "match", r.ID, "players", r.Players)
	return nil
}

// CloseRoom 停止 engine 并移除索引；房间不存在时什么都不做
func (m *GameManager) CloseRoom(roomID string) {
	m.mu.Lock()
	eng := m.removeLocked(roomID)
	m.mu.Unlock()

	if eng != nil {
		eng.Stop()
		utils.Log.Info("match closed", "match", roomID)
	}
}

// removeLocked 移除对局及仍指向它的玩家索引，调用方持有 m.mu
func (m *GameManager) removeLocked(roomID string) *engine.Engine {
	eng, ok := m.engines[roomID]
	if !ok {
		return nil
	}
	delete(m.engines, roomID)
	for _, p := range eng.Match.Players {
		if m.playerToRoom[p] == roomID {
			delete(m.playerToRoom, p)
		}
	}
	return eng
}

// Rooms 返回所有运行中的对局 ID
func (m *GameManager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	return ids
}

func (m *GameManager) Engine(roomID string) (*engine.Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eng, ok := m.engines[roomID]
	return eng, ok
}

func (m *GameManager) engineFor(player string) *engine.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[m.playerToRoom[player]]
}

// Snapshot 返回玩家在房间内的视图
func (m *GameManager) Snapshot(ctx context.Context, roomID, player string) (engine.PlayerView, error) {
	eng, ok := m.Engine(roomID)
	if !ok {
		return engine.PlayerView{}, fmt.Errorf("%w: %s", ErrNoMatch, roomID)
	}
	return eng.Snapshot(ctx, player)
}

// Finish 结束对局并返回战报
func (m *GameManager) Finish(ctx context.Context, roomID, winner string) (engine.Report, error) {
	eng, ok := m.Engine(roomID)
	if !ok {
		return engine.Report{}, fmt.Errorf("%w: %s", ErrNoMatch, roomID)
	}
	report, err := eng.Finish(ctx, winner)
	if err != nil {
		return engine.Report{}, err
	}
	if m.OnFinished != nil {
		m.OnFinished(report)
	}
	return report, nil
}

// HandlePlayerMessage 统一入口（来自 Hub.Incoming）
func (m *GameManager) HandlePlayerMessage(msg websocket.IncomingMessage) {
	eng := m.engineFor(msg.From)
	if eng == nil {
		m.hub.SendToPlayer(msg.From, websocket.OutgoingMessage{
			Event: "action_rejected",
			Data:  map[string]any{"action": msg.Event, "error": ErrNoMatch.Error()},
		})
		return
	}

	if msg.Event == "chat" {
		// 房间内聊天广播
		var text string
		_ = json.Unmarshal(msg.Data, &text)
		m.hub.BroadcastToPlayers(eng.Match.Players, websocket.OutgoingMessage{
			Event: "chat",
			Data:  map[string]any{"from": msg.From, "text": text},
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.ActionTimeout)
	defer cancel()

	var err error
	switch engine.ActionKind(msg.Event) {
	case engine.ActionPlaceCard:
		var pc engine.PlaceCard
		if err = json.Unmarshal(msg.Data, &pc); err != nil {
			err = fmt.Errorf("%w: bad payload: %v", engine.ErrUnknownAction, err)
			break
		}
		err = eng.PlaceCard(ctx, msg.From, pc)
	case engine.ActionEndRound:
		err = eng.EndRound(ctx, msg.From)
	case engine.ActionContinue:
		err = eng.Continue(ctx, msg.From)
	case engine.ActionUpgradeTower:
		err = eng.UpgradeTower(ctx, msg.From)
	case "snapshot":
		var view engine.PlayerView
		if view, err = eng.Snapshot(ctx, msg.From); err == nil {
			m.hub.SendToPlayer(msg.From, websocket.OutgoingMessage{Event: engine.EventState, Data: view})
		}
	default:
		err = fmt.Errorf("%w: %s", engine.ErrUnknownAction, msg.Event)
	}

	if err == nil {
		return
	}
	if !engine.IsRejection(err) {
		utils.Log.Error("action failed", "match", eng.Match.ID, "player", msg.From, "action", msg.Event, "err", err)
	}
	m.hub.SendToPlayer(msg.From, websocket.OutgoingMessage{
		Event: "action_rejected",
		Data:  map[string]any{"action": msg.Event, "error": err.Error()},
	})
}

// RoomOf 返回玩家当前所在对局，不在任何对局时返回 ""
func (m *GameManager) RoomOf(player string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playerToRoom[player]
}
