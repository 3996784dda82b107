package room

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TowerMerge/internal/middleware"
	ws "TowerMerge/internal/websocket"
)

// MockHub 记录每个玩家最后收到的消息
type MockHub struct {
	mu   sync.Mutex
	msgs map[string]ws.OutgoingMessage
}

func NewMockHub() *MockHub {
	return &MockHub{msgs: make(map[string]ws.OutgoingMessage)}
}

func (m *MockHub) BroadcastToPlayers(players []string, msg ws.OutgoingMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range players {
		m.msgs[p] = msg
	}
}

func (m *MockHub) GetMsg(player string) (ws.OutgoingMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[player]
	return msg, ok
}

func newRedisRepo(t *testing.T) (Repo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRepo(rdb), mr
}

// 两种实现共用同一组行为测试
func repos(t *testing.T) map[string]Repo {
	r, _ := newRedisRepo(t)
	return map[string]Repo{
		"memory": NewMemoryRepo(),
		"redis":  r,
	}
}

func TestRepoReserveAndGet(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			room := &Room{ID: "r1", Players: []string{"alice", "bob"}}
			require.NoError(t, repo.Reserve(ctx, room, 60))

			got, err := repo.GetRoom(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob"}, got.Players)

			id, err := repo.GetPlayerRoom(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, "r1", id)

			id, err = repo.GetPlayerRoom(ctx, "carol")
			require.NoError(t, err)
			assert.Empty(t, id)

			_, err = repo.GetRoom(ctx, "missing")
			assert.ErrorIs(t, err, ErrRoomNotFound)
		})
	}
}

func TestRepoReserveBusyWritesNothing(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Reserve(ctx, &Room{ID: "r1", Players: []string{"alice"}}, 60))

			err := repo.Reserve(ctx, &Room{ID: "r2", Players: []string{"carol", "alice"}}, 60)
			assert.ErrorIs(t, err, ErrPlayerBusy)

			// carol 不应被部分登记
			id, err := repo.GetPlayerRoom(ctx, "carol")
			require.NoError(t, err)
			assert.Empty(t, id)
			_, err = repo.GetRoom(ctx, "r2")
			assert.ErrorIs(t, err, ErrRoomNotFound)
		})
	}
}

func TestRepoRelease(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Reserve(ctx, &Room{ID: "r1", Players: []string{"alice", "bob"}}, 60))
			require.NoError(t, repo.Release(ctx, "r1"))

			_, err := repo.GetRoom(ctx, "r1")
			assert.ErrorIs(t, err, ErrRoomNotFound)
			id, _ := repo.GetPlayerRoom(ctx, "alice")
			assert.Empty(t, id)

			// 释放后可以重新登记
			assert.NoError(t, repo.Reserve(ctx, &Room{ID: "r2", Players: []string{"alice"}}, 60))
			// 重复释放不是错误
			assert.NoError(t, repo.Release(ctx, "r1"))
			id, _ = repo.GetPlayerRoom(ctx, "alice")
			assert.Equal(t, "r2", id)
		})
	}
}

func TestRedisRepoTTL(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Reserve(ctx, &Room{ID: "r1", Players: []string{"alice"}}, 30))

	assert.Greater(t, mr.TTL(roomKey("r1")).Seconds(), 0.0)
	assert.Greater(t, mr.TTL(playerRoomKey("alice")).Seconds(), 0.0)

	mr.FastForward(mr.TTL(roomKey("r1")) + 1)
	_, err := repo.GetRoom(ctx, "r1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestServiceCreate(t *testing.T) {
	hub := NewMockHub()
	svc := NewService(NewMemoryRepo(), 60, hub)
	var started []string
	svc.OnRoomReady = func(r *Room) error {
		started = append(started, r.ID)
		return nil
	}

	room, err := svc.Create(context.Background(), CreateRequest{Players: []string{"alice", "bob"}})
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, []string{room.ID}, started)

	for _, p := range room.Players {
		msg, ok := hub.GetMsg(p)
		require.True(t, ok, "player %s should have received room_ready", p)
		assert.Equal(t, "room_ready", msg.Event)
		data, _ := json.Marshal(msg.Data)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, room.ID, payload["roomId"])
	}

	_, err = svc.Create(context.Background(), CreateRequest{Players: []string{"bob"}})
	assert.ErrorIs(t, err, ErrPlayerBusy)
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo(), 60, NewMockHub())
	tooMany := make([]string, MaxPlayers+1)
	for i := range tooMany {
		tooMany[i] = string(rune('a' + i))
	}
	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"empty", CreateRequest{}},
		{"duplicate", CreateRequest{Players: []string{"alice", "alice"}}},
		{"blank id", CreateRequest{Players: []string{"alice", ""}}},
		{"too many", CreateRequest{Players: tooMany}},
		{"stray deck", CreateRequest{Players: []string{"alice"}, Decks: map[string][]string{"bob": {"archer"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidPlayers)
		})
	}
}

func TestServiceStartFailureReleases(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, 60, NewMockHub())
	svc.OnRoomReady = func(*Room) error { return errors.New("boom") }

	_, err := svc.Create(context.Background(), CreateRequest{Players: []string{"alice"}})
	require.Error(t, err)

	id, _ := repo.GetPlayerRoom(context.Background(), "alice")
	assert.Empty(t, id)
}

func TestServiceRelease(t *testing.T) {
	hub := NewMockHub()
	svc := NewService(NewMemoryRepo(), 60, hub)
	var closed string
	svc.OnRoomClosed = func(id string) { closed = id }

	room, err := svc.Create(context.Background(), CreateRequest{Players: []string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background(), room.ID))
	assert.Equal(t, room.ID, closed)

	msg, _ := hub.GetMsg("alice")
	assert.Equal(t, "room_closed", msg.Event)

	assert.ErrorIs(t, svc.Release(context.Background(), room.ID), ErrRoomNotFound)
}

func newRouter(svc *Service, player string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(svc)
	auth := func(c *gin.Context) {
		c.Set(middleware.PlayerKey, player)
		c.Next()
	}
	g := r.Group("/rooms", auth)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Release)
	return r
}

func TestHandlerCreate(t *testing.T) {
	svc := NewService(NewMemoryRepo(), 60, NewMockHub())

	cases := []struct {
		name   string
		caller string
		body   string
		status int
	}{
		{"created", "alice", `{"players":["alice","bob"]}`, http.StatusCreated},
		{"caller not in room", "mallory", `{"players":["carol"]}`, http.StatusForbidden},
		{"bad body", "alice", `{`, http.StatusBadRequest},
		{"busy", "bob", `{"players":["bob"]}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			newRouter(svc, tc.caller).ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestHandlerGetAndRelease(t *testing.T) {
	svc := NewService(NewMemoryRepo(), 60, NewMockHub())
	room, err := svc.Create(context.Background(), CreateRequest{Players: []string{"alice"}})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(svc, "alice").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/"+room.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newRouter(svc, "mallory").ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rooms/"+room.ID, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	newRouter(svc, "alice").ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rooms/"+room.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newRouter(svc, "alice").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/"+room.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRepoTouch(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Reserve(ctx, &Room{ID: "r1", Players: []string{"alice"}}, 60))
			assert.NoError(t, repo.Touch(ctx, "r1", 60))

			require.NoError(t, repo.Release(ctx, "r1"))
			assert.ErrorIs(t, repo.Touch(ctx, "r1", 60), ErrRoomNotFound)
		})
	}
}

func TestRedisRepoTouchExtendsTTL(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Reserve(ctx, &Room{ID: "r1", Players: []string{"alice"}}, 30))
	// bob 的索引指向别的房间，不能被续期
	require.NoError(t, mr.Set(playerRoomKey("bob"), "other"))

	mr.FastForward(20 * time.Second)
	require.NoError(t, repo.Touch(ctx, "r1", 30))
	assert.Equal(t, 30*time.Second, mr.TTL(roomKey("r1")))
	assert.Equal(t, 30*time.Second, mr.TTL(playerRoomKey("alice")))
	assert.Zero(t, mr.TTL(playerRoomKey("bob")))

	mr.FastForward(31 * time.Second)
	assert.ErrorIs(t, repo.Touch(ctx, "r1", 30), ErrRoomNotFound)
}

func TestServiceSweepClosesExpiredRooms(t *testing.T) {
	repo, mr := newRedisRepo(t)
	svc := NewService(repo, 30, NewMockHub())
	var closed []string
	svc.OnRoomClosed = func(id string) { closed = append(closed, id) }

	ctx := context.Background()
	live, err := svc.Create(ctx, CreateRequest{Players: []string{"alice"}})
	require.NoError(t, err)
	stale, err := svc.Create(ctx, CreateRequest{Players: []string{"bob"}})
	require.NoError(t, err)

	// 只有 live 被续期，stale 的登记随后过期
	mr.FastForward(20 * time.Second)
	assert.Empty(t, svc.Sweep(ctx, []string{live.ID}))
	mr.FastForward(15 * time.Second)

	got := svc.Sweep(ctx, []string{live.ID, stale.ID})
	assert.Equal(t, []string{stale.ID}, got)
	assert.Equal(t, []string{stale.ID}, closed)

	id, err := svc.PlayerRoom(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, live.ID, id)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	svc := NewService(NewMemoryRepo(), 60, NewMockHub())
	closed := make(chan string, 1)
	svc.OnRoomClosed = func(id string) { closed <- id }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 5*time.Millisecond, func() []string { return []string{"ghost"} })
		close(done)
	}()

	select {
	case id := <-closed:
		assert.Equal(t, "ghost", id)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not close the missing room")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// orderHub 记录 room_closed 广播时对局是否已被关闭
type orderHub struct {
	closed         *bool
	closedAtNotify bool
	notified       bool
}

func (h *orderHub) BroadcastToPlayers(_ []string, msg ws.OutgoingMessage) {
	if msg.Event == "room_closed" {
		h.notified = true
		h.closedAtNotify = *h.closed
	}
}

func TestServiceReleaseBroadcastsBeforeClosing(t *testing.T) {
	closed := false
	hub := &orderHub{closed: &closed}
	svc := NewService(NewMemoryRepo(), 60, hub)
	svc.OnRoomClosed = func(string) { closed = true }

	room, err := svc.Create(context.Background(), CreateRequest{Players: []string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background(), room.ID))

	assert.True(t, hub.notified)
	assert.False(t, hub.closedAtNotify, "room_closed must go out while the match is still routable")
	assert.True(t, closed)
}
