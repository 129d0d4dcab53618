package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
)

type lobbyCreateRequest struct {
	LeaderID   string `json:"leaderId"`
	GameMode   string `json:"gameMode"`
	MaxPlayers int    `json:"maxPlayers"`
}

type lobbyJoinRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type lobbyLeaveRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type lobbyReadyRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

type lobbyStartRequest struct {
	Code     string `json:"code"`
	LeaderID string `json:"leaderId"`
}

type lobbyStartResponse struct {
	Success    bool        `json:"success"`
	MatchID    string      `json:"matchId,omitempty"`
	ServerHost string      `json:"serverHost,omitempty"`
	ServerPort int         `json:"serverPort,omitempty"`
	Lobby      interface{} `json:"lobby,omitempty"`
}

type lobbyClaimSpawnRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

func (s *Server) registerLobbyRoutes(r chi.Router) {
	r.Post("/lobby/create", s.handleLobbyCreate)
	r.Post("/lobby/join", s.handleLobbyJoin)
	r.Post("/lobby/leave", s.handleLobbyLeave)
	r.Post("/lobby/ready", s.handleLobbyReady)
	r.Post("/lobby/start", s.handleLobbyStart)
	r.Get("/lobby/status", s.handleLobbyStatus)
	r.Post("/lobby/claim_spawn", s.handleLobbyClaimSpawn)
	r.Get("/lobby/list", s.handleLobbyList)
}

func (s *Server) handleLobbyCreate(w http.ResponseWriter, r *http.Request) {
	var req lobbyCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.lob.Create(req.LeaderID, req.GameMode, req.MaxPlayers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLobbyJoin(w http.ResponseWriter, r *http.Request) {
	var req lobbyJoinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.lob.Join(req.Code, req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLobbyLeave(w http.ResponseWriter, r *http.Request) {
	var req lobbyLeaveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.lob.Leave(req.Code, req.PlayerID)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleLobbyReady(w http.ResponseWriter, r *http.Request) {
	var req lobbyReadyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.lob.SetReady(req.Code, req.PlayerID, req.Ready); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

// handleLobbyStart resolves a match server for the lobby the same way
// /match/find does — existing capacity first, then a bounded
// spawn-and-wait — before transitioning the lobby to Starting.
func (s *Server) handleLobbyStart(w http.ResponseWriter, r *http.Request) {
	var req lobbyStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	l := s.lob.Get(req.Code)
	if l == nil {
		writeError(w, apierr.ErrLobbyNotFound)
		return
	}

	srv := s.orch.GetAvailableServer()
	if srv == nil {
		deadline := time.Now().Add(config.MatchSpawnWaitTimeout)
		ticker := time.NewTicker(config.MatchSpawnPollInterval)
		defer ticker.Stop()
		ctx := r.Context()
	waitLoop:
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				break waitLoop
			case <-ticker.C:
				if srv = s.orch.GetAvailableServer(); srv != nil {
					break waitLoop
				}
			}
		}
	}
	if srv == nil {
		writeJSON(w, http.StatusServiceUnavailable, lobbyStartResponse{Success: false})
		return
	}

	matchID := uuid.NewString()
	m, err := s.reg.CreateMatch(matchID, srv.ID, l.GameMode)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, member := range l.Members {
		s.reg.AddPlayer(m.ID, member.PlayerID)
	}

	started, err := s.lob.Start(req.Code, req.LeaderID, srv.ID, matchServerHost, srv.Port, m.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyStartResponse{
		Success: true, MatchID: m.ID, ServerHost: matchServerHost, ServerPort: srv.Port, Lobby: started,
	})
}

func (s *Server) handleLobbyStatus(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	l := s.lob.Get(code)
	if l == nil {
		writeError(w, apierr.ErrLobbyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLobbyClaimSpawn(w http.ResponseWriter, r *http.Request) {
	var req lobbyClaimSpawnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	claim, err := s.lob.ClaimSpawn(req.Code, req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleLobbyList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lob.List())
}
