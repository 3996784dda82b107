package websocket

import "encoding/json"

// OutgoingMessage 服务端推送给客户端的消息
type OutgoingMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// IncomingMessage 客户端动作；From 由服务端按连接身份填写，客户端传入的值会被覆盖
type IncomingMessage struct {
	From  string          `json:"from"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
