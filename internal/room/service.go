package room

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"TowerMerge/internal/utils"
	"TowerMerge/internal/websocket"
)

var ErrInvalidPlayers = errors.New("invalid player list")

type HubBroadcaster interface {
	BroadcastToPlayers(players []string, msg websocket.OutgoingMessage)
}

type Service struct {
	repo    Repo
	roomTTL int // seconds
	hub     HubBroadcaster
	// OnRoomReady 房间登记成功后启动对局；返回错误时房间被释放
	OnRoomReady func(*Room) error
	// OnRoomClosed 房间释放时停止对局
	OnRoomClosed func(roomID string)
}

func NewService(repo Repo, roomTTL int, hub HubBroadcaster) *Service {
	if roomTTL <= 0 {
		roomTTL = 3600
	}
	return &Service{repo: repo, roomTTL: roomTTL, hub: hub}
}

// Create 登记房间并启动对局
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Room, error) {
	if err := validatePlayers(req.Players); err != nil {
		return nil, err
	}
	for p := range req.Decks {
		if !slices.Contains(req.Players, p) {
			return nil, fmt.Errorf("%w: deck given for %s who is not in the room", ErrInvalidPlayers, p)
		}
	}

	room := &Room{
		ID:        uuid.NewString(),
		Players:   slices.Clone(req.Players),
		Decks:     req.Decks,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Reserve(ctx, room, s.roomTTL); err != nil {
		return nil, err
	}

	if s.OnRoomReady != nil {
		if err := s.OnRoomReady(room); err != nil {
			if relErr := s.repo.Release(ctx, room.ID); relErr != nil {
				utils.Log.Error("release after failed start", "room", room.ID, "err", relErr)
			}
			return nil, fmt.Errorf("start room %s: %w", room.ID, err)
		}
	}

	s.hub.BroadcastToPlayers(room.Players, websocket.OutgoingMessage{
		Event: "room_ready",
		Data: map[string]any{
			"roomId":  room.ID,
			"players": room.Players,
		},
	})
	utils.Log.Info("room created", "room", room.ID, "players", room.Players)
	return room, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Room, error) {
	return s.repo.GetRoom(ctx, id)
}

func (s *Service) PlayerRoom(ctx context.Context, player string) (string, error) {
	return s.repo.GetPlayerRoom(ctx, player)
}

// Release 结束房间，玩家可以加入新房间
func (s *Service) Release(ctx context.Context, id string) error {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Release(ctx, id); err != nil {
		return err
	}
	// 先广播再停止对局：转发层还需要按玩家找到所在对局
	s.hub.BroadcastToPlayers(room.Players, websocket.OutgoingMessage{
		Event: "room_closed",
		Data:  map[string]any{"roomId": id},
	})
	if s.OnRoomClosed != nil {
		s.OnRoomClosed(id)
	}
	return nil
}

// Sweep 续期仍在运行的房间；登记已过期或被删除的房间交给 OnRoomClosed，返回这些房间 ID
func (s *Service) Sweep(ctx context.Context, live []string) []string {
	var closed []string
	for _, id := range live {
		err := s.repo.Touch(ctx, id, s.roomTTL)
		switch {
		case err == nil:
		case errors.Is(err, ErrRoomNotFound):
			utils.Log.Warn("room record gone, closing match", "room", id)
			if s.OnRoomClosed != nil {
				s.OnRoomClosed(id)
			}
			closed = append(closed, id)
		default:
			utils.Log.Error("touch room failed", "room", id, "err", err)
		}
	}
	return closed
}

// RunSweeper 周期性调用 Sweep，直到 ctx 结束
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, live func() []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx, live())
		case <-ctx.Done():
			return
		}
	}
}

func validatePlayers(players []string) error {
	if len(players) == 0 || len(players) > MaxPlayers {
		return fmt.Errorf("%w: need 1-%d players, got %d", ErrInvalidPlayers, MaxPlayers, len(players))
	}
	seen := make(map[string]struct{}, len(players))
	for _, p := range players {
		if p == "" {
			return fmt.Errorf("%w: empty player id", ErrInvalidPlayers)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate player %s", ErrInvalidPlayers, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}
