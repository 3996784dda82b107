package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"TowerMerge/internal/utils"
)

type Client struct {
	Player string
	Conn   *websocket.Conn
	Send   chan OutgoingMessage
	Hub    *Hub
}

const (
	writeWait      = 10 * time.Second    // 单次写超时
	pongWait       = 60 * time.Second    // 读超时
	pingPeriod     = (pongWait * 9) / 10 // 心跳发送周期
	maxMessageSize = 1024 * 4
)

// 写协程
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 Send
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				utils.Log.Debug("write failed", "player", c.Player, "err", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// 读协程：把玩家动作转交给 Hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg IncomingMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Log.Warn("read failed", "player", c.Player, "err", err)
			}
			return
		}

		if !c.Hub.receive(IncomingMessage{From: c.Player, Event: msg.Event, Data: msg.Data}) {
			return
		}
	}
}
