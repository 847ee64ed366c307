package ws

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks live sessions by user. A user may hold several connections.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int]map[*Client]struct{})}
}

func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byUser[c.UserID()]
	if !ok {
		conns = make(map[*Client]struct{})
		r.byUser[c.UserID()] = conns
	}
	conns[c] = struct{}{}
}

// Unregister removes c and reports whether it was present, so callers racing
// to drop the same client act only once.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byUser[c.UserID()]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID())
	}
	return true
}

// ConnectionsFor returns a snapshot of the user's sessions.
func (r *Registry) ConnectionsFor(userID int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// AllConnections returns a snapshot of every session.
func (r *Registry) AllConnections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byUser))
	for _, conns := range r.byUser {
		for c := range conns {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.byUser {
		n += len(conns)
	}
	return n
}

// CloseUser drops and closes every session of userID, returning how many were closed.
func (r *Registry) CloseUser(userID int, reason string) int {
	closed := 0
	for _, c := range r.ConnectionsFor(userID) {
		if r.Unregister(c) {
			c.Close(reason)
			closed++
		}
	}
	return closed
}

// CloseAll drops and closes every session.
func (r *Registry) CloseAll(reason string) int {
	closed := 0
	for _, c := range r.AllConnections() {
		if r.Unregister(c) {
			c.Close(reason)
			closed++
		}
	}
	return closed
}

// SessionInfo describes a live session for diagnostics.
type SessionInfo struct {
	ConnID      string    `json:"conn_id"`
	UserID      int       `json:"user_id"`
	IP          string    `json:"ip"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Sessions lists live sessions ordered by user and connect time.
func (r *Registry) Sessions() []SessionInfo {
	clients := r.AllConnections()
	out := make([]SessionInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, SessionInfo{
			ConnID:      c.info.ConnID,
			UserID:      c.info.UserID,
			IP:          c.info.IP,
			State:       c.State().String(),
			ConnectedAt: c.info.ConnectedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
