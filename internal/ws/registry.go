package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Registry tracks every live connection and the user -> connections
// multimap. One mutex guards both structures so register, unregister and
// the send paths always observe a consistent snapshot. No network I/O
// happens under the lock; sends only enqueue onto per-connection buffers.
type Registry struct {
	mu     sync.Mutex
	conns  map[*Conn]struct{}
	byUser map[string]map[*Conn]struct{}
	log    *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[*Conn]struct{}),
		byUser: make(map[string]map[*Conn]struct{}),
		log:    log,
	}
}

func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
	if c.userID != "" {
		set, ok := r.byUser[c.userID]
		if !ok {
			set = make(map[*Conn]struct{})
			r.byUser[c.userID] = set
		}
		set[c] = struct{}{}
	}
}

func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	if c.userID != "" {
		if set, ok := r.byUser[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.byUser, c.userID)
			}
		}
	}
}

// SendTo delivers payload to every live connection of userID; it silently
// no-ops when none are connected.
func (r *Registry) SendTo(userID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("ws_marshal_failed", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.byUser[userID] {
		c.enqueue(data)
	}
}

// BroadcastAll delivers payload to every connection, authenticated or not.
func (r *Registry) BroadcastAll(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("ws_marshal_failed", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.conns {
		c.enqueue(data)
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Shutdown closes every live connection and empties both maps. Clients are
// expected to reconnect after a restart; no connection state survives.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[*Conn]struct{})
	r.byUser = make(map[string]map[*Conn]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
