package discovery

import "testing"

func TestRegisterAssignsIDAndHostIP(t *testing.T) {
	r := NewRegistry()
	s := r.Register("10.0.0.5", RegisterHostPayload{Name: "zombie-night", Port: 27015, MaxPlayers: 8})

	if s.ID == "" {
		t.Fatalf("expected a non-empty session id")
	}
	if s.HostIP != "10.0.0.5" || s.HostPort != 27015 {
		t.Fatalf("unexpected host binding: %+v", s)
	}
}

func TestUnregisterRemovesSession(t *testing.T) {
	r := NewRegistry()
	s := r.Register("10.0.0.5", RegisterHostPayload{Name: "a", Port: 1})
	r.Unregister(s.ID)

	if r.Get(s.ID) != nil {
		t.Fatalf("expected session to be gone after Unregister")
	}
}

func TestListReturnsAllSessions(t *testing.T) {
	r := NewRegistry()
	r.Register("10.0.0.1", RegisterHostPayload{Name: "a", Port: 1})
	r.Register("10.0.0.2", RegisterHostPayload{Name: "b", Port: 2})

	if got := len(r.List()); got != 2 {
		t.Fatalf("List() len = %d, want 2", got)
	}
}

func TestHeartbeatUpdatesPlayerCount(t *testing.T) {
	r := NewRegistry()
	s := r.Register("10.0.0.5", RegisterHostPayload{Name: "a", Port: 1, CurrentPlayers: 0})

	if ok := r.Heartbeat(s.ID, 4); !ok {
		t.Fatalf("Heartbeat should succeed for a known session")
	}
	if got := r.Get(s.ID).CurrentPlayers; got != 4 {
		t.Fatalf("CurrentPlayers = %d, want 4", got)
	}
}

func TestHeartbeatUnknownSessionFails(t *testing.T) {
	r := NewRegistry()
	if ok := r.Heartbeat("nonexistent", 1); ok {
		t.Fatalf("expected Heartbeat to fail for an unknown session")
	}
}
