package discovery

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the authoritative store of discoverable sessions, separate
// from C2's match registry since discovery hosts aren't necessarily
// backend-spawned match servers (spec §6.2 is a standalone protocol).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates a new session owned by the caller's connection.
func (r *Registry) Register(hostIP string, p RegisterHostPayload) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:             uuid.NewString(),
		Name:           p.Name,
		HostIP:         hostIP,
		HostPort:       p.Port,
		MaxPlayers:     p.MaxPlayers,
		CurrentPlayers: p.CurrentPlayers,
		GameVersion:    p.GameVersion,
		RegisteredAt:   time.Now(),
		LastHeartbeat:  time.Now(),
	}
	r.sessions[s.ID] = s
	return s
}

// Unregister removes a session by id. Silent if absent.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// List returns a snapshot of every session.
func (r *Registry) List() []SessionListEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionListEntry, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.toListEntry())
	}
	return out
}

// Get returns a session by id, or nil.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// Heartbeat updates a session's player count and last-seen time.
func (r *Registry) Heartbeat(sessionID string, currentPlayers int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.CurrentPlayers = currentPlayers
	s.LastHeartbeat = time.Now()
	return true
}
