package websocket

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

type UnicastMessage struct {
	UserID  uuid.UUID
	Message []byte
}

// Hub tracks connected clients per user and fans each user's events out to
// all of that user's connections.
type Hub struct {
	clients map[uuid.UUID]map[*Client]bool

	unicast    chan UnicastMessage
	register   chan *Client
	unregister chan *Client
	count      chan countRequest

	stop     chan struct{}
	stopOnce sync.Once
}

type countRequest struct {
	userID uuid.UUID
	reply  chan int
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		unicast:    make(chan UnicastMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan countRequest),
		stop:       make(chan struct{}),
	}
}

func (h *Hub) add(c *Client) {
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true
}

func (h *Hub) remove(c *Client) {
	conns, ok := h.clients[c.userID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
			log.Printf("[Events Hub] Client registered: %s (User: %s)", client.addr(), client.userID)
		case client := <-h.unregister:
			h.remove(client)
			log.Printf("[Events Hub] Client unregistered: %s (User: %s)", client.addr(), client.userID)
		case msg := <-h.unicast:
			for client := range h.clients[msg.UserID] {
				select {
				case client.send <- msg.Message:
				default:
					// slow consumer; it reconnects and lists what it missed
					h.remove(client)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.userID])
		case <-h.stop:
			log.Println("[Events Hub] Stopping hub")
			for _, conns := range h.clients {
				for client := range conns {
					close(client.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			return
		}
	}
}

// SendToUser queues message for every connection of userID.
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	select {
	case h.unicast <- UnicastMessage{UserID: userID, Message: message}:
	case <-h.stop:
	}
}

// Connections reports how many live connections userID has.
func (h *Hub) Connections(userID uuid.UUID) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{userID: userID, reply: reply}:
		return <-reply
	case <-h.stop:
		return 0
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
