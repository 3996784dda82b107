package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"TowerMerge/internal/utils"
	"TowerMerge/internal/websocket"
)

// Publisher 是 *nats.Conn 的子集
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Envelope 发布到总线上的消息体
type Envelope struct {
	Match   string   `json:"match"`
	Players []string `json:"players"`
	Event   string   `json:"event"`
	Data    any      `json:"data"`
	SentAt  int64    `json:"sentAt"`
}

// Relay wraps a hub and mirrors every broadcast onto the bus as tm.match.<match>.<event>.
// Per-player messages carry private state and are only delivered locally.
type Relay struct {
	websocket.HubInterface
	pub     Publisher
	matchOf func(player string) string
}

func NewRelay(inner websocket.HubInterface, pub Publisher, matchOf func(player string) string) *Relay {
	return &Relay{HubInterface: inner, pub: pub, matchOf: matchOf}
}

func Subject(match, event string) string {
	return fmt.Sprintf("tm.match.%s.%s", token(match), token(event))
}

// token 去掉 NATS subject 中的保留字符
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, s)
}

func (r *Relay) BroadcastToPlayers(players []string, msg websocket.OutgoingMessage) {
	r.HubInterface.BroadcastToPlayers(players, msg)

	var match string
	if len(players) > 0 && r.matchOf != nil {
		match = r.matchOf(players[0])
	}
	data, err := json.Marshal(Envelope{
		Match:   match,
		Players: players,
		Event:   msg.Event,
		Data:    msg.Data,
		SentAt:  time.Now().UnixMilli(),
	})
	if err != nil {
		utils.Log.Error("encode relay message", "event", msg.Event, "err", err)
		return
	}
	if err := r.pub.Publish(Subject(match, msg.Event), data); err != nil {
		utils.Log.Warn("relay publish failed", "match", match, "event", msg.Event, "err", err)
	}
}

// Connect 连接 NATS，断线自动重连
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("tower-merge"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			utils.Log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			utils.Log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
