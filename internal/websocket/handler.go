package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"TowerMerge/internal/middleware"
	"TowerMerge/internal/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /ws  需经过 JWT middleware，玩家身份取自 token
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		player := c.GetString(middleware.PlayerKey)
		if player == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing player identity"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			utils.Log.Warn("websocket upgrade failed", "player", player, "err", err)
			return
		}

		client := &Client{
			Player: player,
			Conn:   conn,
			Send:   make(chan OutgoingMessage, 32),
			Hub:    hub,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
