// Package ws carries scene change notifications over websockets: a hub on the
// server fans events out per topic, a listener on the client turns them into
// sync ticks.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// SceneEvent is pushed to subscribers after every scene mutation.
type SceneEvent struct {
	SceneID  string `json:"scene_id"`
	Revision uint64 `json:"revision"`
}

type Client struct {
	Topic string // service object id the client follows
	Send  chan []byte
	Conn  *websocket.Conn
}

type Hub struct {
	clients    map[string]map[*Client]bool // topic -> clients
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan BroadcastMessage
	mu         sync.RWMutex
	done       chan struct{} // closed when Run returns
}

type BroadcastMessage struct {
	Topic string
	Data  []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan BroadcastMessage, 64),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then closes every client queue.
// Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for topic, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, topic)
			}
			h.mu.Unlock()
			return
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			h.mu.Unlock()
		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.Topic] {
				select {
				case client.Send <- msg.Data:
				default:
					glog.Warningf("[ws] dropping slow subscriber on %s", msg.Topic)
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Subscribe registers client. It reports false when the hub has stopped, in
// which case client.Send is never closed by the hub.
func (h *Hub) Subscribe(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unsubscribe removes client. It returns immediately once the hub has
// stopped.
func (h *Hub) Unsubscribe(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
	}
	if len(clients) == 0 {
		delete(h.clients, client.Topic)
	}
}

// Notify queues ev for every subscriber of topic. It never blocks; events are
// dropped when the hub is saturated since subscribers only need the latest.
func (h *Hub) Notify(topic string, ev SceneEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.Broadcast <- BroadcastMessage{Topic: topic, Data: data}:
	default:
		glog.Warningf("[ws] broadcast queue full, dropped %s rev %d", ev.SceneID, ev.Revision)
	}
}

// ActiveCount returns the number of subscribers following topic.
func (h *Hub) ActiveCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
