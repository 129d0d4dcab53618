package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type readyRequest struct {
	Port       int `json:"port"`
	MaxPlayers int `json:"maxPlayers"`
}

type readyResponse struct {
	ServerID string `json:"serverId"`
}

type heartbeatRequest struct {
	ServerID    string `json:"serverId"`
	PlayerCount int    `json:"playerCount"`
}

func (s *Server) registerServerRoutes(r chi.Router) {
	r.Post("/servers/ready", s.handleServerReady)
	r.Post("/servers/heartbeat", s.handleServerHeartbeat)
}

func (s *Server) handleServerReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	existing := s.findServerByPort(req.Port)
	serverID := existing
	if serverID == "" {
		serverID = newServerID(req.Port)
	}

	server, err := s.reg.MarkReady(serverID, req.Port, req.MaxPlayers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{ServerID: server.ID})
}

func (s *Server) handleServerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.reg.Heartbeat(req.ServerID, req.PlayerCount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

// findServerByPort scans known servers for one already bound to port, so
// a ready call from a match server that was spawned by the orchestrator
// (and already has a registry entry from RegisterServer) reuses that id
// instead of minting a second one.
func (s *Server) findServerByPort(port int) string {
	for _, srv := range s.reg.ListServers() {
		if srv.Port == port {
			return srv.ID
		}
	}
	return ""
}

func newServerID(port int) string {
	return "server-" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
