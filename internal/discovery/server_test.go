package discovery

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/logging"
)

func newTestServer() (*Server, *Registry) {
	reg := NewRegistry()
	return NewServer(reg, logging.Default()), reg
}

func TestHandleConnRegisterHostSendsSessionCreated(t *testing.T) {
	s, _ := newTestServer()
	client, server := net.Pipe()
	defer client.Close()

	go s.handleConn(server)

	payload, _ := json.Marshal(RegisterHostPayload{Name: "night-map", Port: 27015, MaxPlayers: 8})
	if err := WriteFrame(client, MsgRegisterHost, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	msgType, body, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if msgType != MsgSessionCreated {
		t.Fatalf("type = %v, want MsgSessionCreated", msgType)
	}
	if len(body) == 0 {
		t.Fatalf("expected a non-empty session id")
	}
}

func TestHandleConnListSessionsReturnsRegistered(t *testing.T) {
	s, reg := newTestServer()
	reg.Register("10.0.0.9", RegisterHostPayload{Name: "preexisting", Port: 5000})

	client, server := net.Pipe()
	defer client.Close()
	go s.handleConn(server)

	if err := WriteFrame(client, MsgListSessions, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	msgType, body, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if msgType != MsgSessionList {
		t.Fatalf("type = %v, want MsgSessionList", msgType)
	}
	var entries []SessionListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "preexisting" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestHandleConnJoinSessionReturnsJoinInfo(t *testing.T) {
	s, reg := newTestServer()
	session := reg.Register("203.0.113.9", RegisterHostPayload{Name: "raid-night", Port: 27020})

	client, server := net.Pipe()
	defer client.Close()
	go s.handleConn(server)

	if err := WriteFrame(client, MsgJoinSession, []byte(session.ID)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	msgType, body, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if msgType != MsgJoinInfo {
		t.Fatalf("type = %v, want MsgJoinInfo", msgType)
	}
	var info JoinInfoPayload
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.HostIP != "203.0.113.9" || info.HostPort != 27020 {
		t.Fatalf("info = %+v", info)
	}
}

func TestHandleConnJoinUnknownSessionSendsError(t *testing.T) {
	s, _ := newTestServer()
	client, server := net.Pipe()
	defer client.Close()
	go s.handleConn(server)

	if err := WriteFrame(client, MsgJoinSession, []byte("does-not-exist")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	msgType, _, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if msgType != MsgError {
		t.Fatalf("type = %v, want MsgError", msgType)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	s, reg := newTestServer()
	session := reg.Register("10.0.0.2", RegisterHostPayload{Name: "a", Port: 1})

	client, server := net.Pipe()
	defer client.Close()
	go s.handleConn(server)

	payload, _ := json.Marshal(HeartbeatPayload{SessionID: session.ID, CurrentPlayers: 6})
	if err := WriteFrame(client, MsgHeartbeat, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	msgType, _, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if msgType != MsgHeartbeatAck {
		t.Fatalf("type = %v, want MsgHeartbeatAck", msgType)
	}
	if reg.Get(session.ID).CurrentPlayers != 6 {
		t.Fatalf("expected heartbeat to update player count")
	}
}

func TestConnectionLossUnregistersOwnedSession(t *testing.T) {
	s, reg := newTestServer()
	client, server := net.Pipe()

	done := make(chan struct{})
	go func() {
		s.handleConn(server)
		close(done)
	}()

	payload, _ := json.Marshal(RegisterHostPayload{Name: "ephemeral", Port: 9000})
	if err := WriteFrame(client, MsgRegisterHost, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	_, body, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	sessionID := string(body)

	if reg.Get(sessionID) == nil {
		t.Fatalf("expected session to be registered")
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handleConn did not return after connection close")
	}

	if reg.Get(sessionID) != nil {
		t.Fatalf("expected session to be unregistered after connection loss")
	}
}
