// Package registry implements C2: the authoritative in-memory store of
// servers, matches, and player→match bindings, with the lifecycle rules of
// spec §3 and §4.2.
package registry

import (
	"sync"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

// Stats is the shape returned by Stats() (SPEC_FULL.md §C.2).
type Stats struct {
	ServersTotal    int            `json:"serversTotal"`
	ServersByStatus map[string]int `json:"serversByStatus"`
	MatchesTotal    int            `json:"matchesTotal"`
	MatchesByStatus map[string]int `json:"matchesByStatus"`
	PlayersInMatch  int            `json:"playersInMatch"`
}

// Registry is the sole authoritative copy of server/match/binding state.
// All mutations are serialized by a single mutex; readers receive cloned
// snapshots so they never observe a partially-mutated entity.
type Registry struct {
	mu sync.Mutex
	log *logging.Logger

	servers map[string]*Server // serverID -> Server
	matches map[string]*Match  // matchID -> Match

	portToServer   map[int]string    // port -> serverID
	playerToMatch  map[string]string // playerID -> matchID (non-Ended only)
	serverToMatch  map[string]string // serverID -> matchID (current)
}

// New creates an empty Registry.
func New(log *logging.Logger) *Registry {
	return &Registry{
		log:           log.Component("registry"),
		servers:       make(map[string]*Server),
		matches:       make(map[string]*Match),
		portToServer:  make(map[int]string),
		playerToMatch: make(map[string]string),
		serverToMatch: make(map[string]string),
	}
}

// RegisterServer adds a new Server in Starting status. Returns
// invalid_request if the port is already bound to a live server.
func (r *Registry) RegisterServer(id string, port int, maxPlayers int, proc ProcessHandle) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.portToServer[port]; ok {
		if existing, ok := r.servers[existingID]; ok && isLive(existing.Status) {
			return nil, apierr.ErrInvalidRequest
		}
	}

	s := &Server{
		ID:            id,
		Port:          port,
		Status:        ServerStarting,
		MaxPlayers:    maxPlayers,
		Process:       proc,
		LastHeartbeat: time.Now(),
		CreatedAt:     time.Now(),
	}
	r.servers[id] = s
	r.portToServer[port] = id
	return s.Clone(), nil
}

// UnregisterServer removes a server and all indexes pointing to it. Any
// match still bound to it is left untouched — callers (the orchestrator)
// are expected to end the match first via EndMatch.
func (r *Registry) UnregisterServer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[id]
	if !ok {
		return
	}
	delete(r.portToServer, s.Port)
	delete(r.serverToMatch, id)
	delete(r.servers, id)
}

// MarkReady transitions a Starting server to Ready. If port is not a
// known server (the match server raced the registry and POSTed ready
// before RegisterServer's caller finished), it registers one on the fly
// per spec §6.1's "/servers/ready ... if port unknown, registers on the
// fly."
func (r *Registry) MarkReady(serverID string, port int, maxPlayers int) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[serverID]
	if !ok {
		s = &Server{
			ID:            serverID,
			Port:          port,
			MaxPlayers:    maxPlayers,
			LastHeartbeat: time.Now(),
			CreatedAt:     time.Now(),
		}
		r.servers[serverID] = s
		r.portToServer[port] = serverID
	}
	s.Status = ServerReady
	s.LastHeartbeat = time.Now()
	if maxPlayers > 0 {
		s.MaxPlayers = maxPlayers
	}
	return s.Clone(), nil
}

// Heartbeat updates last-seen and current player count, transitioning
// Ready<->Full based on capacity (spec §4.2).
func (r *Registry) Heartbeat(serverID string, playerCount int) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[serverID]
	if !ok {
		return nil, apierr.ErrServerNotFound
	}
	s.LastHeartbeat = time.Now()
	s.CurrentPlayers = playerCount

	switch s.Status {
	case ServerReady, ServerFull:
		if s.HasCapacity() {
			s.Status = ServerReady
		} else {
			s.Status = ServerFull
		}
	case ServerInGame:
		// In-game servers keep their status regardless of capacity; Full
		// only applies to the Ready/matchmaking-visible pool.
	}
	return s.Clone(), nil
}

// GetServer returns a snapshot of a server, or nil.
func (r *Registry) GetServer(id string) *Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servers[id].Clone()
}

// ListServers returns a snapshot of every known server.
func (r *Registry) ListServers() []*Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s.Clone())
	}
	return out
}

// AvailableServer returns any Ready server with spare capacity, or nil.
func (r *Registry) AvailableServer() *Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.Status == ServerReady && s.HasCapacity() {
			return s.Clone()
		}
	}
	return nil
}

// TimedOutServers returns servers whose last heartbeat is older than
// deadline. The registry only reports timeouts; it never unregisters on
// its own (spec §4.2) — the orchestrator decides.
func (r *Registry) TimedOutServers(deadline time.Time) []*Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Server
	for _, s := range r.servers {
		if isLive(s.Status) && s.LastHeartbeat.Before(deadline) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// StartingOrReadyCount reports how many servers are in {Starting, Ready} —
// the pool the orchestrator tops up (spec §4.3 step 3).
func (r *Registry) StartingOrReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.servers {
		if s.Status == ServerStarting || s.Status == ServerReady {
			n++
		}
	}
	return n
}

// SetServerStatus forcibly sets a server's status (used by the
// orchestrator when stopping/erroring a server).
func (r *Registry) SetServerStatus(id string, status ServerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.servers[id]; ok {
		s.Status = status
	}
}

// CreateMatch creates a Waiting match bound to serverID and marks the
// server InGame.
func (r *Registry) CreateMatch(matchID, serverID, gameMode string) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[serverID]
	if !ok {
		return nil, apierr.ErrServerNotFound
	}

	m := &Match{
		ID:        matchID,
		ServerID:  serverID,
		GameMode:  gameMode,
		Status:    MatchWaiting,
		Players:   make(map[string]bool),
		CreatedAt: time.Now(),
	}
	r.matches[matchID] = m
	s.Status = ServerInGame
	s.MatchID = matchID
	r.serverToMatch[serverID] = matchID
	return m.Clone(), nil
}

// GetMatch returns a snapshot of a match, or nil.
func (r *Registry) GetMatch(id string) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matches[id].Clone()
}

// MatchForPlayer returns the player's current non-Ended match, or nil.
// This enforces spec invariant 6 (player↔match uniqueness) by construction:
// playerToMatch is only ever populated with non-Ended matches.
func (r *Registry) MatchForPlayer(playerID string) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	matchID, ok := r.playerToMatch[playerID]
	if !ok {
		return nil
	}
	return r.matches[matchID].Clone()
}

// AddPlayer binds playerID to matchID. If the player is already bound to
// a different non-Ended match, that binding is silently replaced — the
// backend trusts match-server join events as authoritative.
func (r *Registry) AddPlayer(matchID, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return apierr.ErrMatchNotFound
	}
	if m.Status == MatchEnded {
		return apierr.ErrMatchNotFound
	}
	m.Players[playerID] = true
	r.playerToMatch[playerID] = matchID
	return nil
}

// RemovePlayer unbinds playerID from matchID. Removal is silent when the
// player isn't present (spec §4.2).
func (r *Registry) RemovePlayer(matchID, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.matches[matchID]; ok {
		delete(m.Players, playerID)
	}
	if r.playerToMatch[playerID] == matchID {
		delete(r.playerToMatch, playerID)
	}
}

// SetMatchWave updates the current wave counter.
func (r *Registry) SetMatchWave(matchID string, wave int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return apierr.ErrMatchNotFound
	}
	if wave > m.CurrentWave {
		m.CurrentWave = wave
	}
	return nil
}

// MarkInProgress transitions a Waiting match to InProgress.
func (r *Registry) MarkInProgress(matchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return apierr.ErrMatchNotFound
	}
	if m.Status == MatchWaiting {
		m.Status = MatchInProgress
	}
	return nil
}

// EndMatch transitions a match to Ended and removes every player binding
// that pointed at it, satisfying spec invariant 6.
func (r *Registry) EndMatch(matchID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return apierr.ErrMatchNotFound
	}
	if m.Status == MatchEnded {
		return nil
	}
	m.Status = MatchEnded
	m.EndReason = reason
	for p := range m.Players {
		if r.playerToMatch[p] == matchID {
			delete(r.playerToMatch, p)
		}
	}
	delete(r.serverToMatch, m.ServerID)
	return nil
}

// MatchForServer returns the match currently bound to serverID, or nil.
func (r *Registry) MatchForServer(serverID string) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	matchID, ok := r.serverToMatch[serverID]
	if !ok {
		return nil
	}
	return r.matches[matchID].Clone()
}

// Stats returns an aggregate snapshot (SPEC_FULL.md §C.2).
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		ServersByStatus: make(map[string]int),
		MatchesByStatus: make(map[string]int),
	}
	for _, s := range r.servers {
		st.ServersTotal++
		st.ServersByStatus[string(s.Status)]++
	}
	for _, m := range r.matches {
		st.MatchesTotal++
		st.MatchesByStatus[string(m.Status)]++
		if m.Status != MatchEnded {
			st.PlayersInMatch += len(m.Players)
		}
	}
	return st
}

func isLive(s ServerStatus) bool {
	return s != ServerStopped && s != ServerError
}
