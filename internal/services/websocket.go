package services

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a WebSocket client
type Client struct {
	ID       uint
	UserType string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
}

// Hub maintains the set of active clients and fans events out to per-user
// and driver-pool audiences. Publishing is fire-and-forget; a slow or gone
// client never blocks the caller.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client %d connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			log.Printf("Client %d disconnected", client.ID)
		}
	}
}

// WebSocketMessage is the envelope for every event on the wire.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// BroadcastToUser sends a message to a specific user
func (h *Hub) BroadcastToUser(userID uint, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.ID == userID {
			select {
			case client.Send <- message:
			default:
				log.Printf("Warning: Could not send to client %d (channel full)", client.ID)
			}
		}
	}
}

// BroadcastToDrivers sends a message to every connected driver.
func (h *Hub) BroadcastToDrivers(message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.UserType == string(models.UserTypeDriver) {
			select {
			case client.Send <- message:
			default:
				log.Printf("Warning: Could not send to driver %d (channel full)", client.ID)
			}
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ToUser publishes an event to one user over the websocket and mirrors it
// onto the user's redis channel for other instances.
func (h *Hub) ToUser(userID uint, event string, data any) {
	payload, err := json.Marshal(WebSocketMessage{Type: event, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}
	h.BroadcastToUser(userID, payload)
	PublishUserEvent(userID, payload)
}

// ToDriverPool publishes an event to all connected drivers and mirrors it
// onto the shared dispatch channel.
func (h *Hub) ToDriverPool(event string, data any) {
	payload, err := json.Marshal(WebSocketMessage{Type: event, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}
	h.BroadcastToDrivers(payload)
	PublishDispatchEvent(payload)
}

// ToRide publishes an event on the ride's redis channel and to both
// participants over the websocket.
func (h *Hub) ToRide(rideID uint, passengerID uint, driverID *uint, event string, data any) {
	payload, err := json.Marshal(WebSocketMessage{Type: event, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}
	h.BroadcastToUser(passengerID, payload)
	if driverID != nil {
		h.BroadcastToUser(*driverID, payload)
	}
	PublishRideEvent(rideID, payload)
}

// HandleWebSocket handles WebSocket connections
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint, userType string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:       userID,
		UserType: userType,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      hub,
	}

	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Clients only receive events; inbound frames are ping-style noise.
		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			log.Printf("Error unmarshaling WebSocket message: %v", err)
			continue
		}
		if wsMessage.Type != "" {
			log.Printf("Ignoring inbound %q frame from client %d", wsMessage.Type, c.ID)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// UserChannel is the redis topic for one user's events.
func UserChannel(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

// RideChannel is the redis topic for one ride's events.
func RideChannel(rideID uint) string {
	return fmt.Sprintf("ride_%d", rideID)
}
