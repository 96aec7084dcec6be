package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/syncagent/internal/services"
)

func dialTestHub(t *testing.T) (*services.WebSocketHub, *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub).HandleConnection))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The pong proves the handler finished registering the client
	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.WSTypePing}))
	assert.Equal(t, services.WSTypePong, readMessage(t, conn).Type)

	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) services.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler(t *testing.T) {
	t.Run("streams progress to new clients", func(t *testing.T) {
		hub, conn := dialTestHub(t)
		assert.Equal(t, 1, hub.GetTopicSubscriberCount(services.TopicProgress))

		hub.BroadcastToTopic(services.TopicProgress, services.WSMessage{
			Type:    services.WSTypeSyncProgress,
			Payload: services.SyncProgressPayload{Source: "full_scan", IsSyncing: true, Text: "Syncing gap... (1/2)"},
		})

		msg := readMessage(t, conn)
		assert.Equal(t, services.WSTypeSyncProgress, msg.Type)
		payload, ok := msg.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "full_scan", payload["source"])
		assert.Equal(t, "Syncing gap... (1/2)", payload["text"])
	})

	t.Run("events need a subscription", func(t *testing.T) {
		hub, conn := dialTestHub(t)

		require.NoError(t, conn.WriteJSON(services.WSMessage{
			Type:    services.WSTypeSubscribe,
			Payload: map[string]string{"topic": services.TopicEvents},
		}))
		// Ping again so the subscribe is handled before broadcasting
		require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.WSTypePing}))
		require.Equal(t, services.WSTypePong, readMessage(t, conn).Type)
		assert.Equal(t, 1, hub.GetTopicSubscriberCount(services.TopicEvents))

		hub.BroadcastToTopic(services.TopicEvents, services.WSMessage{Type: services.WSTypeTickComplete, Payload: "done"})

		assert.Equal(t, services.WSTypeTickComplete, readMessage(t, conn).Type)
	})

	t.Run("unsubscribe stops progress", func(t *testing.T) {
		hub, conn := dialTestHub(t)

		require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.WSTypeUnsubscribe, Payload: services.TopicProgress}))
		require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.WSTypePing}))
		require.Equal(t, services.WSTypePong, readMessage(t, conn).Type)

		assert.Equal(t, 0, hub.GetTopicSubscriberCount(services.TopicProgress))
	})
}

func TestTopicOf(t *testing.T) {
	topic, ok := topicOf("events")
	assert.True(t, ok)
	assert.Equal(t, "events", topic)

	topic, ok = topicOf(map[string]interface{}{"topic": "progress"})
	assert.True(t, ok)
	assert.Equal(t, "progress", topic)

	_, ok = topicOf("")
	assert.False(t, ok)
	_, ok = topicOf(42.0)
	assert.False(t, ok)
}
