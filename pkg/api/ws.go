package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types pushed to UI subscribers.
const (
	MsgTasksChanged = "tasks_changed"
	MsgTasksDelayed = "tasks_delayed"
)

// WSMessage is the envelope pushed to UI subscribers.
type WSMessage struct {
	Type    string      `json:"type"`              // tasks_changed, tasks_delayed
	Root    string      `json:"root,omitempty"`    // affected project, empty for "all"
	Version int64       `json:"version,omitempty"` // store change counter after the write
	Payload interface{} `json:"payload,omitempty"` // arbitrary JSON
}

// WSHub fans change notifications out to connected viewers.
type WSHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*websocket.Conn]*sync.Mutex // per-conn write lock
}

func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]*sync.Mutex{},
	}
}

// HandleUI upgrades a viewer connection and keeps it until the peer goes away.
func (h *WSHub) HandleUI(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	h.mu.Lock()
	h.subs[c] = &sync.Mutex{}
	n := len(h.subs)
	h.mu.Unlock()
	log.Printf("ui subscriber connected remote=%s subscribers=%d", r.RemoteAddr, n)
	go h.subLoop(c)
}

// Subscribers reports the number of connected viewers.
func (h *WSHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast sends msg to every subscriber; failed connections are dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.subs))
	for c, lock := range h.subs {
		targets[c] = lock
	}
	h.mu.RUnlock()
	for c, lock := range targets {
		lock.Lock()
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := c.WriteJSON(msg)
		lock.Unlock()
		if err != nil {
			log.Printf("ws send failed type=%s err=%v", msg.Type, err)
			go h.closeSub(c)
		}
	}
}

func (h *WSHub) subLoop(c *websocket.Conn) {
	defer h.closeSub(c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func (h *WSHub) closeSub(c *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.subs[c]
	delete(h.subs, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.Close()
	log.Printf("ui subscriber disconnected remote=%s", c.RemoteAddr())
}
