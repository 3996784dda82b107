package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(hub *Hub, player string, buf int) *Client {
	return &Client{Player: player, Send: make(chan OutgoingMessage, buf), Hub: hub}
}

func TestHubBroadcastToPlayers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c1 := newClient(hub, "0xA", 1)
	c2 := newClient(hub, "0xB", 1)
	c3 := newClient(hub, "0xC", 1)
	hub.register <- c1
	hub.register <- c2
	hub.register <- c3

	hub.BroadcastToPlayers([]string{"0xA", "0xB"}, OutgoingMessage{
		Event: "match",
		Data:  map[string]any{"matchId": "room123"},
	})

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, "match", (<-c1.Send).Event)
	assert.Equal(t, "match", (<-c2.Send).Event)
	select {
	case <-c3.Send:
		assert.Fail(t, "C is not in the match")
	default:
	}
}

func TestHubSendToPlayer(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c1 := newClient(hub, "0xA", 1)
	c2 := newClient(hub, "0xB", 1)
	hub.register <- c1
	hub.register <- c2

	hub.SendToPlayer("0xA", OutgoingMessage{Event: "state", Data: "hello A"})

	time.Sleep(20 * time.Millisecond)

	received := <-c1.Send
	assert.Equal(t, "state", received.Event)
	assert.Equal(t, "hello A", received.Data)

	select {
	case <-c2.Send:
		assert.Fail(t, "B should NOT receive anything")
	default:
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c := newClient(hub, "0xA", 1)
	hub.register <- c
	time.Sleep(10 * time.Millisecond)

	_, ok := hub.ClientByPlayer("0xA")
	require.True(t, ok, "client should be registered")

	hub.unregister <- c
	time.Sleep(10 * time.Millisecond)

	_, ok = hub.ClientByPlayer("0xA")
	assert.False(t, ok, "client should be removed after unregister")
	_, open := <-c.Send
	assert.False(t, open, "send channel should be closed")
}

func TestHubReconnectReplacesClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	old := newClient(hub, "0xA", 1)
	fresh := newClient(hub, "0xA", 1)
	hub.register <- old
	hub.register <- fresh
	time.Sleep(10 * time.Millisecond)

	_, open := <-old.Send
	assert.False(t, open, "old connection should be closed")

	// 旧连接的 unregister 不能把新连接踢掉
	hub.unregister <- old
	time.Sleep(10 * time.Millisecond)
	got, ok := hub.ClientByPlayer("0xA")
	assert.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestHubFullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c := newClient(hub, "0xA", 1)
	hub.register <- c

	for i := 0; i < 5; i++ {
		hub.SendToPlayer("0xA", OutgoingMessage{Event: "spam"})
	}
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, c.Send, 1)
}

func TestHubIncomingForwarded(t *testing.T) {
	hub := NewHub()
	got := make(chan IncomingMessage, 1)
	hub.OnIncoming = func(m IncomingMessage) { got <- m }
	go hub.Run()
	defer hub.Close()

	require.True(t, hub.receive(IncomingMessage{From: "0xA", Event: "end_round", Data: json.RawMessage(`{}`)}))

	select {
	case m := <-got:
		assert.Equal(t, "0xA", m.From)
		assert.Equal(t, "end_round", m.Event)
	case <-time.After(time.Second):
		t.Fatal("incoming message was not forwarded")
	}
}

func TestHubCloseStopsSenders(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	hub.Close()
	hub.Close()

	done := make(chan struct{})
	go func() {
		hub.SendToPlayer("0xA", OutgoingMessage{Event: "late"})
		done <- struct{}{}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendToPlayer blocked after Close")
	}
}

func BenchmarkHubBroadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c1 := newClient(hub, "0xA", 1024)
	c2 := newClient(hub, "0xB", 1024)
	go func() {
		for range c1.Send {
		}
	}()
	go func() {
		for range c2.Send {
		}
	}()
	hub.register <- c1
	hub.register <- c2

	b.ResetTimer()
	msg := OutgoingMessage{Event: "bench"}
	for i := 0; i < b.N; i++ {
		hub.BroadcastToPlayers([]string{"0xA", "0xB"}, msg)
	}
}
