package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Event types pushed to session watchers.
const (
	MsgSessionStarted    = "session_started"
	MsgSessionEnded      = "session_ended"
	MsgParticipantJoined = "participant_joined"
	MsgParticipantLeft   = "participant_left"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans session events out to connected watchers. The stream is
// best-effort: a watcher with a full buffer misses the event and catches
// up from the read API.
type Hub struct {
	// Session -> connections
	conns map[string]map[*Connection]bool

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents one watcher of a session's event stream.
type Connection struct {
	SessionID string
	UserID    string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	SessionID string
	Message   *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[*Connection]bool)
			}
			h.conns[conn.SessionID][conn] = true
			h.mu.Unlock()
			log.Printf("User %s watching session %s", conn.UserID, conn.SessionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if watchers, ok := h.conns[conn.SessionID]; ok {
				if watchers[conn] {
					delete(watchers, conn)
					close(conn.Send)
					if len(watchers) == 0 {
						delete(h.conns, conn.SessionID)
					}
					log.Printf("User %s stopped watching session %s", conn.UserID, conn.SessionID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for conn := range h.conns[msg.SessionID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToSession pushes an event to every watcher of a session.
// Implements service.Broadcaster.
func (h *Hub) BroadcastToSession(sessionID string, event string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s payload: %v", event, err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message:   &Message{Type: event, Payload: data},
	}:
	default:
		// Drop event if the hub is saturated
	}
}
