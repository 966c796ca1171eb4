package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/jamsession/api/internal/model"
	"github.com/rs/zerolog/log"
)

// Client represents a WebSocket subscriber of one jam. Send is never closed;
// the hub closes done when it drops the client.
type Client struct {
	ID    string
	JamID int64
	Conn  *websocket.Conn
	Send  chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient creates a subscriber of jamID.
func NewClient(jamID int64, conn *websocket.Conn) *Client {
	return &Client{
		ID:    uuid.New().String(),
		JamID: jamID,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// queue hands data to the writer without blocking. It reports false when the
// client is gone or its buffer is full.
func (c *Client) queue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub fans committed jam changes out to the clients watching that jam
type Hub struct {
	// Clients grouped by jam ID
	clients map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JamID   int64
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for jamID, clients := range h.clients {
				for client := range clients {
					client.close()
				}
				delete(h.clients, jamID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JamID] == nil {
				h.clients[client.JamID] = make(map[*Client]bool)
			}
			h.clients[client.JamID][client] = true
			h.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int64("jam_id", client.JamID).Msg("client registered")

		case client := <-h.unregister:
			h.remove(client)
			log.Debug().Str("client_id", client.ID).Int64("jam_id", client.JamID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.JamID] {
				if !client.queue(msg.Message) {
					// Slow consumer; drop it rather than stall every other subscriber.
					client.close()
					delete(h.clients[msg.JamID], client)
				}
			}
			if len(h.clients[msg.JamID]) == 0 {
				delete(h.clients, msg.JamID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.JamID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			client.close()
			if len(clients) == 0 {
				delete(h.clients, client.JamID)
			}
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers reports how many clients watch jamID.
func (h *Hub) Subscribers(jamID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jamID])
}

// JamChanged pushes the committed jam to its subscribers. It never blocks the
// caller; when the broadcast buffer is full the update is dropped.
func (h *Hub) JamChanged(event string, jam *model.Jam) {
	msg := model.WSJamMessage{
		Type:  model.WSMessageTypeJam,
		Event: event,
		JamID: jam.ID,
	}
	if event != model.JamEventDeleted {
		msg.Jam = jam
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Int64("jam_id", jam.ID).Msg("failed to marshal jam message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JamID: jam.ID, Message: data}:
	default:
		log.Warn().Int64("jam_id", jam.ID).Str("event", event).Msg("broadcast buffer full, update dropped")
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, jamID int64) {
	client := NewClient(jamID, c)

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-client.done:
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return

			case message := <-client.Send:
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

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", client.ID).Msg("websocket closed unexpectedly")
			}
			break
		}
		h.handleMessage(client, message)
	}
}

// handleMessage answers one frame sent by the client.
func (h *Hub) handleMessage(client *Client, message []byte) {
	var msg model.WSMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type != model.WSMessageTypePing {
		data, _ := json.Marshal(model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JamID: client.JamID,
			Error: model.WSError{
				Code:    model.WSErrorInvalidMessage,
				Message: "Only ping messages are accepted",
			},
		})
		client.queue(data)
		return
	}

	data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
	client.queue(data)
}
