package websocket

import (
	"sync"

	"TowerMerge/internal/utils"
)

// HubInterface 引擎与房间服务只依赖推送能力
type HubInterface interface {
	BroadcastToPlayers(players []string, msg OutgoingMessage)
	SendToPlayer(player string, msg OutgoingMessage)
}

type Hub struct {
	clients    map[string]*Client // player -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq
	sendOne    chan sendReq
	incoming   chan IncomingMessage
	OnIncoming func(IncomingMessage)
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

type broadcastReq struct {
	Players []string
	Message OutgoingMessage
}

type sendReq struct {
	Player  string
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastReq, 256),
		sendOne:    make(chan sendReq, 256),
		incoming:   make(chan IncomingMessage, 256),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	utils.Log.Info("Hub started")
	go h.dispatch()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.Player]; ok && old != c {
				// 同一玩家重复连接，踢掉旧连接
				close(old.Send)
			}
			h.clients[c.Player] = c
			n := len(h.clients)
			h.mu.Unlock()
			utils.Log.Debug("client registered", "player", c.Player, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.Player]; ok && cur == c {
				delete(h.clients, c.Player)
				close(c.Send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			utils.Log.Debug("client unregistered", "player", c.Player, "clients", n)

		case req := <-h.broadcast:
			h.mu.RLock()
			for _, p := range req.Players {
				if client, ok := h.clients[p]; ok {
					h.deliver(client, req.Message)
				}
			}
			h.mu.RUnlock()

		case req := <-h.sendOne:
			h.mu.RLock()
			if client, ok := h.clients[req.Player]; ok {
				h.deliver(client, req.Message)
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for p, c := range h.clients {
				close(c.Send)
				delete(h.clients, p)
			}
			h.mu.Unlock()
			utils.Log.Info("Hub stopped")
			return
		}
	}
}

// dispatch 玩家消息按到达顺序转发给游戏层（GameManager）；独立于 Run，
// 游戏层处理时可以继续向 hub 推送
func (h *Hub) dispatch() {
	for {
		select {
		case req := <-h.incoming:
			if h.OnIncoming != nil {
				h.OnIncoming(req)
			}
		case <-h.quit:
			return
		}
	}
}

// deliver never blocks the hub loop: a client whose buffer is full misses the message.
func (h *Hub) deliver(c *Client, msg OutgoingMessage) {
	select {
	case c.Send <- msg:
	default:
		utils.Log.Warn("client send buffer full, dropping message", "player", c.Player, "event", msg.Event)
	}
}

// BroadcastToPlayers queues msg for every connected player in players.
func (h *Hub) BroadcastToPlayers(players []string, msg OutgoingMessage) {
	select {
	case h.broadcast <- broadcastReq{Players: players, Message: msg}:
	case <-h.quit:
	}
}

func (h *Hub) SendToPlayer(player string, msg OutgoingMessage) {
	select {
	case h.sendOne <- sendReq{Player: player, Message: msg}:
	case <-h.quit:
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) receive(msg IncomingMessage) bool {
	select {
	case h.incoming <- msg:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) ClientByPlayer(player string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[player]
	return c, ok
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
