package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type friendRequestBody struct {
	PlayerID string `json:"playerId"`
	Other    string `json:"otherId"`
}

type inviteRequestBody struct {
	PlayerID   string            `json:"playerId"`
	Other      string            `json:"otherId"`
	ServerInfo map[string]string `json:"serverInfo"`
}

func (s *Server) registerFriendRoutes(r chi.Router) {
	r.Post("/friends/add", s.handleFriendAdd)
	r.Post("/friends/remove", s.handleFriendRemove)
	r.Post("/friends/accept", s.handleFriendAccept)
	r.Post("/friends/decline", s.handleFriendDecline)
	r.Post("/friends/status", s.handleFriendStatus)
	r.Get("/friends/requests", s.handleFriendRequests)
	r.Post("/friends/invite", s.handleFriendInvite)
	r.Get("/friends/invites", s.handleFriendInvites)
	r.Get("/friends/list", s.handleFriendList)
}

func (s *Server) handleFriendAdd(w http.ResponseWriter, r *http.Request) {
	var req friendRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fr.SendRequest(req.PlayerID, req.Other); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleFriendRemove(w http.ResponseWriter, r *http.Request) {
	var req friendRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.fr.Remove(req.PlayerID, req.Other)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleFriendAccept(w http.ResponseWriter, r *http.Request) {
	var req friendRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.fr.Accept(req.PlayerID, req.Other)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleFriendDecline(w http.ResponseWriter, r *http.Request) {
	var req friendRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.fr.Decline(req.PlayerID, req.Other)
	writeJSON(w, http.StatusOK, map[string]string{})
}

type presenceRequest struct {
	PlayerID    string `json:"playerId"`
	Online      bool   `json:"online"`
	CurrentGame string `json:"currentGame"`
}

func (s *Server) handleFriendStatus(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := s.fr.UpdatePresence(req.PlayerID, req.Online, req.CurrentGame)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleFriendRequests(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	writeJSON(w, http.StatusOK, s.fr.ListPending(playerID))
}

func (s *Server) handleFriendInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.fr.SendInvite(req.PlayerID, req.Other, req.ServerInfo)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleFriendInvites(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	writeJSON(w, http.StatusOK, s.fr.ListInvites(playerID))
}

func (s *Server) handleFriendList(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	writeJSON(w, http.StatusOK, s.fr.ListFriends(playerID))
}
