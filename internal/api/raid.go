// Raid routes, like inventory's, complete the spec's HTTP surface beyond
// its explicit §6.1 list so prepare/start/commit/cancel are reachable.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/The404Studios/zsdu-backend/internal/raid"
)

type raidPrepareRequest struct {
	CharacterID string       `json:"characterId"`
	LobbyID     string       `json:"lobbyId"`
	Loadout     raid.Loadout `json:"loadout"`
}

type raidStartRequest struct {
	ServerSecret string   `json:"serverSecret"`
	RaidID       string   `json:"raidId"`
	MatchID      string   `json:"matchId"`
	PlayerIDs    []string `json:"playerIds"`
}

type raidGetLoadoutRequest struct {
	ServerSecret string `json:"serverSecret"`
	RaidID       string `json:"raidId"`
	CharacterID  string `json:"characterId"`
}

type raidCommitRequest struct {
	ServerSecret string         `json:"serverSecret"`
	RaidID       string         `json:"raidId"`
	MatchID      string         `json:"matchId"`
	Outcomes     []raid.Outcome `json:"outcomes"`
	Signature    string         `json:"signature"`
}

type raidCancelRequest struct {
	CharacterID string `json:"characterId"`
	RaidID      string `json:"raidId"`
}

func (s *Server) registerRaidRoutes(r chi.Router) {
	r.Post("/raid/prepare", s.handleRaidPrepare)
	r.Post("/raid/start", s.handleRaidStart)
	r.Post("/raid/loadout", s.handleRaidGetLoadout)
	r.Post("/raid/commit", s.handleRaidCommit)
	r.Post("/raid/cancel", s.handleRaidCancel)
	r.Get("/raid/{raidId}", s.handleGetRaid)
}

func (s *Server) handleRaidPrepare(w http.ResponseWriter, r *http.Request) {
	var req raidPrepareRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rd, err := s.raids.Prepare(req.CharacterID, req.LobbyID, req.Loadout)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleRaidStart(w http.ResponseWriter, r *http.Request) {
	var req raidStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rd, err := s.raids.Start(req.ServerSecret, req.RaidID, req.MatchID, req.PlayerIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleRaidGetLoadout(w http.ResponseWriter, r *http.Request) {
	var req raidGetLoadoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rd, err := s.raids.GetLoadout(req.ServerSecret, req.RaidID, req.CharacterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleRaidCommit(w http.ResponseWriter, r *http.Request) {
	var req raidCommitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rd, err := s.raids.Commit(req.ServerSecret, req.RaidID, req.MatchID, req.Outcomes, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleRaidCancel(w http.ResponseWriter, r *http.Request) {
	var req raidCancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.raids.Cancel(req.CharacterID, req.RaidID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleGetRaid(w http.ResponseWriter, r *http.Request) {
	raidID := chi.URLParam(r, "raidId")
	rd := s.raids.GetRaid(raidID)
	if rd == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "raid_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, rd)
}
