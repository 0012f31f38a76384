package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/coachcall/api/internal/logger"
	"github.com/coachcall/api/internal/model"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
)

// Client represents a WebSocket client
type Client struct {
	CallID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans pipeline events out to the subscribers of each call
type Hub struct {
	// Clients grouped by call ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	log *logger.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	CallID  string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, sendBuffer),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop; it returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.CallID] == nil {
				h.clients[client.CallID] = make(map[*Client]bool)
			}
			h.clients[client.CallID][client] = true
			h.mu.Unlock()
			h.log.WithCall(client.CallID).Debug("websocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.WithCall(client.CallID).Debug("websocket client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.CallID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	close(h.done)
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.CallID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.CallID)
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns how many clients follow callID.
func (h *Hub) Subscribers(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[callID])
}

// NotifyProgress sends a status transition to the call's subscribers
func (h *Hub) NotifyProgress(callID string, status model.CallStatus, message string) {
	h.send(callID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		CallID:   callID,
		Progress: status.Progress(),
		Status:   status,
		Message:  message,
	})
}

// NotifyComplete sends the final result to the call's subscribers
func (h *Hub) NotifyComplete(callID string, result model.ProcessResult) {
	h.send(callID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		CallID: callID,
		Result: result,
	})
}

// NotifyError sends a terminal failure to the call's subscribers
func (h *Hub) NotifyError(callID, code, message string) {
	h.send(callID, model.WSErrorMessage{
		Type:   model.WSMessageTypeError,
		CallID: callID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// send never blocks the pipeline; events are dropped when the hub is backed up.
func (h *Hub) send(callID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithCall(callID).WithError(err).Error("failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{CallID: callID, Message: data}:
	default:
		h.log.WithCall(callID).Warn("websocket broadcast queue full, dropping event")
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, callID string) {
	client := &Client{
		CallID: callID,
		Conn:   c,
		Send:   make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithCall(callID).WithError(err).Warn("websocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.reply(client, data)
		}
	}
}

// reply queues a direct message unless the hub already dropped the client.
func (h *Hub) reply(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client.CallID][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}
