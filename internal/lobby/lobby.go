// Package lobby implements C5: code-addressed pre-match groupings with
// leader/ready/start semantics and authoritative spawn-index assignment.
package lobby

import (
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
)

// codeAlphabet is unambiguous: no 0/O/1/I (spec §4.5).
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
const codeLength = 8
const maxCodeGenAttempts = 10

// State is a Lobby's lifecycle state.
type State string

const (
	StateWaiting  State = "waiting"
	StateStarting State = "starting"
	StateInGame   State = "in_game"
)

// Member is one player's slot in a lobby.
type Member struct {
	PlayerID   string `json:"playerId"`
	SpawnIndex int    `json:"spawnIndex"`
	Ready      bool   `json:"ready"`
}

// Lobby is a code-addressed pre-match grouping.
type Lobby struct {
	Code       string    `json:"code"`
	LeaderID   string    `json:"leaderId"`
	GameMode   string    `json:"gameMode"`
	MaxPlayers int       `json:"maxPlayers"`
	State      State     `json:"state"`
	Members    []*Member `json:"members"` // ordered; position IS spawn index
	ServerHost string    `json:"serverHost,omitempty"`
	ServerPort int       `json:"serverPort,omitempty"`
	ServerID   string    `json:"serverId,omitempty"`
	MatchID    string    `json:"matchId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Clone returns a value copy safe to hand outside the lock.
func (l *Lobby) Clone() *Lobby {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Members = make([]*Member, len(l.Members))
	for i, m := range l.Members {
		mm := *m
		cp.Members[i] = &mm
	}
	return &cp
}

// SpawnClaim is the authoritative assignment surfaced to the match server.
type SpawnClaim struct {
	PlayerID   string `json:"playerId"`
	GroupName  string `json:"groupName"`
	SpawnIndex int    `json:"spawnIndex"`
	LobbyID    string `json:"lobbyId"`
}

// Service is the authoritative lobby store.
type Service struct {
	mu sync.Mutex

	lobbies    map[string]*Lobby // code -> lobby
	codesByPrefixOrder []string  // sorted codes, for prefix-tolerant join
	playerLobby map[string]string // playerID -> code, for non-terminated lobbies
}

// New creates an empty Service.
func New() *Service {
	return &Service{
		lobbies:     make(map[string]*Lobby),
		playerLobby: make(map[string]string),
	}
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sb := make([]byte, codeLength)
	for i, b := range buf {
		sb[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(sb), nil
}

// Create makes a new Waiting lobby with the creator at spawn index 0.
func (s *Service) Create(leaderID, gameMode string, maxPlayers int) (*Lobby, error) {
	if maxPlayers < 1 || maxPlayers > 8 {
		return nil, apierr.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeFromExistingLobbyLocked(leaderID)

	var code string
	for attempt := 0; ; attempt++ {
		if attempt >= maxCodeGenAttempts {
			return nil, apierr.ErrInvalidRequest
		}
		c, err := generateCode()
		if err != nil {
			return nil, apierr.ErrInvalidRequest
		}
		if _, exists := s.lobbies[c]; !exists {
			code = c
			break
		}
	}

	l := &Lobby{
		Code:       code,
		LeaderID:   leaderID,
		GameMode:   gameMode,
		MaxPlayers: maxPlayers,
		State:      StateWaiting,
		Members:    []*Member{{PlayerID: leaderID, SpawnIndex: 0, Ready: true}},
		CreatedAt:  time.Now(),
	}
	s.lobbies[code] = l
	s.playerLobby[leaderID] = code
	s.resortCodesLocked()
	return l.Clone(), nil
}

// Join performs a prefix-tolerant lookup: exact code preferred, else the
// first (lexicographically smallest) code that starts with the input —
// a deliberate UX affordance, safe because codes are drawn from a sparse
// 32^8 space (spec §4.5, §9).
func (s *Service) Join(codeOrPrefix, playerID string) (*Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[codeOrPrefix]
	if !ok {
		for _, c := range s.codesByPrefixOrder {
			if strings.HasPrefix(c, codeOrPrefix) {
				l = s.lobbies[c]
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, apierr.ErrLobbyNotFound
	}
	if l.State != StateWaiting {
		return nil, apierr.ErrLobbyNotWaiting
	}
	if len(l.Members) >= l.MaxPlayers {
		return nil, apierr.ErrLobbyFull
	}

	if existingCode, inLobby := s.playerLobby[playerID]; inLobby && existingCode != l.Code {
		s.leaveLocked(existingCode, playerID)
	}

	l.Members = append(l.Members, &Member{PlayerID: playerID, SpawnIndex: len(l.Members)})
	s.playerLobby[playerID] = l.Code
	return l.Clone(), nil
}

func (s *Service) removeFromExistingLobbyLocked(playerID string) {
	if code, ok := s.playerLobby[playerID]; ok {
		s.leaveLocked(code, playerID)
	}
}

// Leave removes player, collapses spawn indices to stay dense, promotes a
// new leader if needed, and deletes the lobby when empty.
func (s *Service) Leave(code, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(code, playerID)
}

func (s *Service) leaveLocked(code, playerID string) {
	l, ok := s.lobbies[code]
	if !ok {
		return
	}

	idx := -1
	for i, m := range l.Members {
		if m.PlayerID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	l.Members = append(l.Members[:idx], l.Members[idx+1:]...)
	delete(s.playerLobby, playerID)

	for i, m := range l.Members {
		m.SpawnIndex = i
	}

	if len(l.Members) == 0 {
		delete(s.lobbies, code)
		s.resortCodesLocked()
		return
	}

	if l.LeaderID == playerID {
		l.LeaderID = l.Members[0].PlayerID
	}
}

// SetReady toggles player's ready flag.
func (s *Service) SetReady(code, playerID string, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[code]
	if !ok {
		return apierr.ErrLobbyNotFound
	}
	for _, m := range l.Members {
		if m.PlayerID == playerID {
			m.Ready = ready
			return nil
		}
	}
	return apierr.ErrInvalidRequest
}

// Start transitions the lobby to Starting and attaches server info.
// Permitted only when caller is leader, state is Waiting, and every
// non-leader member is ready.
func (s *Service) Start(code, leaderID, serverID, serverHost string, serverPort int, matchID string) (*Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[code]
	if !ok {
		return nil, apierr.ErrLobbyNotFound
	}
	if l.LeaderID != leaderID {
		return nil, apierr.ErrNotLeader
	}
	if l.State != StateWaiting {
		return nil, apierr.ErrLobbyNotWaiting
	}
	for _, m := range l.Members {
		if m.PlayerID != l.LeaderID && !m.Ready {
			return nil, apierr.ErrInvalidRequest
		}
	}

	l.State = StateStarting
	l.ServerID = serverID
	l.ServerHost = serverHost
	l.ServerPort = serverPort
	l.MatchID = matchID
	return l.Clone(), nil
}

// ClaimSpawn returns the authoritative spawn assignment for a player.
func (s *Service) ClaimSpawn(code, playerID string) (*SpawnClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[code]
	if !ok {
		return nil, apierr.ErrLobbyNotFound
	}
	for _, m := range l.Members {
		if m.PlayerID == playerID {
			return &SpawnClaim{PlayerID: playerID, GroupName: l.Code, SpawnIndex: m.SpawnIndex, LobbyID: l.Code}, nil
		}
	}
	return nil, apierr.ErrInvalidRequest
}

// Get returns a snapshot of a lobby by exact code, or nil.
func (s *Service) Get(code string) *Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobbies[code].Clone()
}

// List returns a snapshot of every lobby.
func (s *Service) List() []*Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l.Clone())
	}
	return out
}

// CleanupStale removes lobbies older than 1 hour that are not InGame.
func (s *Service) CleanupStale() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-config.LobbyIdleTTL)
	for code, l := range s.lobbies {
		if l.State != StateInGame && l.CreatedAt.Before(cutoff) {
			for _, m := range l.Members {
				delete(s.playerLobby, m.PlayerID)
			}
			delete(s.lobbies, code)
		}
	}
	s.resortCodesLocked()
}

func (s *Service) resortCodesLocked() {
	codes := make([]string, 0, len(s.lobbies))
	for c := range s.lobbies {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	s.codesByPrefixOrder = codes
}
