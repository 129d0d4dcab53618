package discovery

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"

	"github.com/The404Studios/zsdu-backend/internal/logging"
)

// Server accepts TCP connections and dispatches discovery frames against
// a Registry. One goroutine per connection, same shape as a typical
// net.Listener accept loop; framing itself has no concurrency of its own.
type Server struct {
	log *logging.Logger
	reg *Registry

	mu    sync.Mutex
	owned map[net.Conn]map[string]bool // conn -> set of sessionIds it registered
}

// NewServer builds a Server over reg.
func NewServer(reg *Registry, log *logging.Logger) *Server {
	return &Server{
		log:   log.Component("discovery"),
		reg:   reg,
		owned: make(map[net.Conn]map[string]bool),
	}
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.Warn("accept failed", "error", err)
				return
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.cleanupConn(conn)

	for {
		msgType, payload, err := ReadFrame(conn)
		if err != nil {
			return
		}
		s.dispatch(conn, msgType, payload)
	}
}

func (s *Server) dispatch(conn net.Conn, msgType MessageType, payload []byte) {
	switch msgType {
	case MsgRegisterHost:
		s.handleRegisterHost(conn, payload)
	case MsgUnregisterHost:
		s.handleUnregisterHost(conn, payload)
	case MsgListSessions:
		s.handleListSessions(conn)
	case MsgJoinSession:
		s.handleJoinSession(conn, payload)
	case MsgHeartbeat:
		s.handleHeartbeat(conn, payload)
	default:
		s.sendError(conn, "unknown message type")
	}
}

func (s *Server) handleRegisterHost(conn net.Conn, payload []byte) {
	var p RegisterHostPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(conn, "invalid register_host payload")
		return
	}
	hostIP := remoteIP(conn)
	session := s.reg.Register(hostIP, p)

	s.mu.Lock()
	if s.owned[conn] == nil {
		s.owned[conn] = make(map[string]bool)
	}
	s.owned[conn][session.ID] = true
	s.mu.Unlock()

	WriteFrame(conn, MsgSessionCreated, []byte(session.ID))
}

func (s *Server) handleUnregisterHost(conn net.Conn, payload []byte) {
	sessionID := string(payload)
	s.reg.Unregister(sessionID)

	s.mu.Lock()
	if owned := s.owned[conn]; owned != nil {
		delete(owned, sessionID)
	}
	s.mu.Unlock()
}

func (s *Server) handleListSessions(conn net.Conn) {
	list := s.reg.List()
	body, err := json.Marshal(list)
	if err != nil {
		s.sendError(conn, "failed to encode session list")
		return
	}
	WriteFrame(conn, MsgSessionList, body)
}

func (s *Server) handleJoinSession(conn net.Conn, payload []byte) {
	sessionID := string(payload)
	session := s.reg.Get(sessionID)
	if session == nil {
		s.sendError(conn, "session not found")
		return
	}
	body, err := json.Marshal(JoinInfoPayload{HostIP: session.HostIP, HostPort: session.HostPort})
	if err != nil {
		s.sendError(conn, "failed to encode join info")
		return
	}
	WriteFrame(conn, MsgJoinInfo, body)
}

func (s *Server) handleHeartbeat(conn net.Conn, payload []byte) {
	var p HeartbeatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(conn, "invalid heartbeat payload")
		return
	}
	if !s.reg.Heartbeat(p.SessionID, p.CurrentPlayers) {
		s.sendError(conn, "session not found")
		return
	}
	WriteFrame(conn, MsgHeartbeatAck, nil)
}

func (s *Server) sendError(conn net.Conn, message string) {
	WriteFrame(conn, MsgError, []byte(message))
}

// cleanupConn unregisters every session this connection owned, satisfying
// spec §6.2's "on connection loss, any session this connection registered
// is removed."
func (s *Server) cleanupConn(conn net.Conn) {
	s.mu.Lock()
	owned := s.owned[conn]
	delete(s.owned, conn)
	s.mu.Unlock()

	for sessionID := range owned {
		s.reg.Unregister(sessionID)
	}
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
