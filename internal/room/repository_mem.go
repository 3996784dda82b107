package room

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type memRepo struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	players map[string]string // player -> roomID
}

// NewMemoryRepo 单机/测试用，忽略 TTL
func NewMemoryRepo() Repo {
	return &memRepo{
		rooms:   make(map[string]*Room),
		players: make(map[string]string),
	}
}

func (m *memRepo) Reserve(ctx context.Context, room *Room, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range room.Players {
		if id, ok := m.players[p]; ok {
			return fmt.Errorf("%w: %s in %s", ErrPlayerBusy, p, id)
		}
	}
	cp := *room
	cp.Players = slices.Clone(room.Players)
	m.rooms[room.ID] = &cp
	for _, p := range room.Players {
		m.players[p] = room.ID
	}
	return nil
}

func (m *memRepo) GetRoom(ctx context.Context, id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *r
	cp.Players = slices.Clone(r.Players)
	return &cp, nil
}

func (m *memRepo) GetPlayerRoom(ctx context.Context, player string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[player], nil
}

func (m *memRepo) Touch(ctx context.Context, id string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	return nil
}

func (m *memRepo) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil
	}
	for _, p := range r.Players {
		if m.players[p] == id {
			delete(m.players, p)
		}
	}
	delete(m.rooms, id)
	return nil
}
