package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/registry"
)

const matchServerHost = "127.0.0.1"

type findMatchRequest struct {
	PlayerID string `json:"playerId"`
	GameMode string `json:"gameMode"`
}

type findMatchResponse struct {
	MatchID    string `json:"matchId"`
	Status     string `json:"status"`
	ServerHost string `json:"serverHost,omitempty"`
	ServerPort int    `json:"serverPort,omitempty"`
	GameMode   string `json:"gameMode,omitempty"`
}

type gamePlayerRequest struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
}

type gameWaveRequest struct {
	MatchID string `json:"matchId"`
	Wave    int    `json:"wave"`
}

type gameEndRequest struct {
	MatchID string `json:"matchId"`
	Reason  string `json:"reason"`
}

func (s *Server) registerMatchRoutes(r chi.Router) {
	r.Post("/match/find", s.handleMatchFind)
	r.Get("/match/{matchId}", s.handleGetMatch)
	r.Post("/game/player_joined", s.handlePlayerJoined)
	r.Post("/game/player_left", s.handlePlayerLeft)
	r.Post("/game/wave_complete", s.handleWaveComplete)
	r.Post("/game/match_end", s.handleMatchEnd)
}

// handleMatchFind implements the find-or-spawn-and-wait flow: an existing
// binding wins outright, then a Ready server with capacity, then up to
// MatchSpawnWaitTimeout of polling while the orchestrator's tick spins one
// up, then unavailable.
func (s *Server) handleMatchFind(w http.ResponseWriter, r *http.Request) {
	var req findMatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, apierr.ErrInvalidRequest)
		return
	}

	if m := s.reg.MatchForPlayer(req.PlayerID); m != nil {
		srv := s.reg.GetServer(m.ServerID)
		writeJSON(w, http.StatusOK, findMatchResponse{
			MatchID: m.ID, Status: "matched", GameMode: m.GameMode,
			ServerHost: matchServerHost, ServerPort: serverPort(srv),
		})
		return
	}

	if srv := s.matchToServer(req); srv != nil {
		m, err := s.bindMatch(srv, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, findMatchResponse{
			MatchID: m.ID, Status: "matched", GameMode: m.GameMode,
			ServerHost: matchServerHost, ServerPort: serverPort(srv),
		})
		return
	}

	deadline := time.Now().Add(config.MatchSpawnWaitTimeout)
	ticker := time.NewTicker(config.MatchSpawnPollInterval)
	defer ticker.Stop()
	ctx := r.Context()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusServiceUnavailable, findMatchResponse{Status: "unavailable"})
			return
		case <-ticker.C:
			if srv := s.matchToServer(req); srv != nil {
				m, err := s.bindMatch(srv, req)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, findMatchResponse{
					MatchID: m.ID, Status: "matched", GameMode: m.GameMode,
					ServerHost: matchServerHost, ServerPort: serverPort(srv),
				})
				return
			}
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, findMatchResponse{Status: "unavailable"})
}

func (s *Server) matchToServer(req findMatchRequest) *registry.Server {
	return s.orch.GetAvailableServer()
}

func (s *Server) bindMatch(srv *registry.Server, req findMatchRequest) (*registry.Match, error) {
	if existing := s.reg.MatchForServer(srv.ID); existing != nil && existing.Status != registry.MatchEnded {
		if err := s.reg.AddPlayer(existing.ID, req.PlayerID); err != nil {
			return nil, err
		}
		return existing, nil
	}
	m, err := s.reg.CreateMatch(uuid.NewString(), srv.ID, req.GameMode)
	if err != nil {
		return nil, err
	}
	if err := s.reg.AddPlayer(m.ID, req.PlayerID); err != nil {
		return nil, err
	}
	return m, nil
}

func serverPort(srv *registry.Server) int {
	if srv == nil {
		return 0
	}
	return srv.Port
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchId")
	m := s.reg.GetMatch(matchID)
	if m == nil {
		writeError(w, apierr.ErrMatchNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePlayerJoined(w http.ResponseWriter, r *http.Request) {
	var req gamePlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.reg.AddPlayer(req.MatchID, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handlePlayerLeft(w http.ResponseWriter, r *http.Request) {
	var req gamePlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.reg.RemovePlayer(req.MatchID, req.PlayerID)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleWaveComplete(w http.ResponseWriter, r *http.Request) {
	var req gameWaveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.reg.SetMatchWave(req.MatchID, req.Wave); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleMatchEnd(w http.ResponseWriter, r *http.Request) {
	var req gameEndRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.reg.EndMatch(req.MatchID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}
