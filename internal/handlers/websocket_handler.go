package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API key already gates the endpoint
		return true
	},
}

// WebSocketHandler streams sync progress to clients
type WebSocketHandler struct {
	hub    *services.WebSocketHub
	logger *observability.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: observability.WithField("component", "ws_handler"),
	}
}

// HandleConnection upgrades HTTP to WebSocket. New clients are subscribed to
// progress updates; they can subscribe to "events" for scan and tick
// results.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	h.hub.Subscribe(client, services.TopicProgress)

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage processes subscribe, unsubscribe and ping messages
func (h *WebSocketHandler) handleMessage(client *services.WSClient, data []byte) {
	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debugf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe:
		if topic, ok := topicOf(msg.Payload); ok {
			h.hub.Subscribe(client, topic)
		}

	case services.WSTypeUnsubscribe:
		if topic, ok := topicOf(msg.Payload); ok {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		if err := client.SendJSON(services.WSMessage{Type: services.WSTypePong}); err != nil {
			client.Close()
		}

	default:
		h.logger.Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}

// topicOf accepts either "topic" or {"topic": "topic"}
func topicOf(payload interface{}) (string, bool) {
	switch p := payload.(type) {
	case string:
		return p, p != ""
	case map[string]interface{}:
		topic, ok := p["topic"].(string)
		return topic, ok && topic != ""
	}
	return "", false
}
