package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 32

// Client is one live connection with its buffered outgoing queue. All writes
// go through the send channel so only the write pump touches the socket.
type Client struct {
	ID string

	conn *websocket.Conn
	send chan Message
	done chan struct{}

	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan Message, sendBufferSize),
		done: make(chan struct{}),
	}
}

// writePump - drains the send queue into the socket; owns the connection's
// write side until the client is closed.
func (that *Client) writePump() {
	defer that.conn.Close()

	for {
		select {
		case message := <-that.send:
			if err := that.conn.WriteJSON(message); err != nil {
				return
			}
		case <-that.done:
			return
		}
	}
}

func (that *Client) close() {
	that.closeOnce.Do(func() {
		close(that.done)
	})
}

// Hub tracks live connections and room membership. Room members are kept in
// arrival order so seating passes always walk a snapshot-stable order.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string][]string
	roomOf  map[string]string
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "hub"),

		clients: make(map[string]*Client),
		rooms:   make(map[string][]string),
		roomOf:  make(map[string]string),
	}
}

// Add - registers a connection and starts its write pump.
func (that *Hub) Add(client *Client) {
	that.mu.Lock()
	that.clients[client.ID] = client
	that.mu.Unlock()

	go client.writePump()
}

// Remove - drops the connection from the hub and whatever room it was in,
// returning that room name ("" if none).
func (that *Hub) Remove(socketID string) string {
	that.mu.Lock()
	defer that.mu.Unlock()

	room := that.roomOf[socketID]
	that.removeFromRoom(room, socketID)
	delete(that.roomOf, socketID)

	if client, ok := that.clients[socketID]; ok {
		client.close()
		delete(that.clients, socketID)
	}

	return room
}

// Join - moves the connection into a room, leaving any previous one. Joining
// a room the connection is already in keeps its arrival position.
func (that *Hub) Join(room, socketID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	previous, ok := that.roomOf[socketID]
	if ok && previous == room {
		return
	}
	if ok {
		that.removeFromRoom(previous, socketID)
	}

	that.rooms[room] = append(that.rooms[room], socketID)
	that.roomOf[socketID] = room
}

// Leave - forces the connection out of a room (seat eviction).
func (that *Hub) Leave(room, socketID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.roomOf[socketID] != room {
		return
	}

	that.removeFromRoom(room, socketID)
	delete(that.roomOf, socketID)
}

// Members - returns the room membership snapshot in arrival order.
func (that *Hub) Members(room string) []string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return append([]string(nil), that.rooms[room]...)
}

// Count - returns the number of connections currently in the room.
func (that *Hub) Count(room string) int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms[room])
}

// SendTo - queues a message for one connection.
func (that *Hub) SendTo(socketID, action string, payload any) {
	that.mu.RLock()
	client, ok := that.clients[socketID]
	that.mu.RUnlock()

	if !ok {
		return
	}

	that.deliver(client, action, payload)
}

// Broadcast - queues a message for every member of a room.
func (that *Hub) Broadcast(room, action string, payload any) {
	that.mu.RLock()
	members := append([]string(nil), that.rooms[room]...)
	clients := make([]*Client, 0, len(members))
	for _, member := range members {
		if client, ok := that.clients[member]; ok {
			clients = append(clients, client)
		}
	}
	that.mu.RUnlock()

	for _, client := range clients {
		that.deliver(client, action, payload)
	}
}

func (that *Hub) deliver(client *Client, action string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to marshal payload", "action", action, "error", err)
		return
	}

	select {
	case client.send <- Message{Action: action, Payload: raw}:
	case <-client.done:
	default:
		that.logger.Warn("send queue full, dropping message", "socketID", client.ID, "action", action)
	}
}

// removeFromRoom - caller must hold the write lock.
func (that *Hub) removeFromRoom(room, socketID string) {
	if room == "" {
		return
	}

	members := that.rooms[room]
	for i, member := range members {
		if member == socketID {
			that.rooms[room] = append(members[:i], members[i+1:]...)
			break
		}
	}

	if len(that.rooms[room]) == 0 {
		delete(that.rooms, room)
	}
}
