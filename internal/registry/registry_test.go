package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/logging"
)

func newTestRegistry() *Registry {
	return New(logging.Default())
}

func TestRegisterAndMarkReady(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.RegisterServer("s1", 27015, 8, nil); err != nil {
		t.Fatalf("RegisterServer: %v", err)
	}
	s, err := r.MarkReady("s1", 27015, 8)
	if err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if s.Status != ServerReady {
		t.Fatalf("Status = %v, want Ready", s.Status)
	}
}

func TestMarkReadyRegistersUnknownPort(t *testing.T) {
	r := newTestRegistry()
	s, err := r.MarkReady("unknown", 27020, 8)
	if err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if s.Status != ServerReady {
		t.Fatalf("Status = %v, want Ready", s.Status)
	}
	if r.GetServer("unknown") == nil {
		t.Fatalf("server not registered on the fly")
	}
}

func TestHeartbeatFullTransition(t *testing.T) {
	r := newTestRegistry()
	r.RegisterServer("s1", 1, 2, nil)
	r.MarkReady("s1", 1, 2)

	s, err := r.Heartbeat("s1", 2)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if s.Status != ServerFull {
		t.Fatalf("Status = %v, want Full at capacity", s.Status)
	}

	s, err = r.Heartbeat("s1", 1)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if s.Status != ServerReady {
		t.Fatalf("Status = %v, want Ready below capacity", s.Status)
	}
}

func TestTimedOutServers(t *testing.T) {
	r := newTestRegistry()
	r.RegisterServer("s1", 1, 2, nil)
	r.MarkReady("s1", 1, 2)

	deadline := time.Now().Add(time.Hour) // everything is "older" than this
	timedOut := r.TimedOutServers(deadline)
	if len(timedOut) != 1 || timedOut[0].ID != "s1" {
		t.Fatalf("TimedOutServers = %v, want [s1]", timedOut)
	}

	// TimedOutServers must not itself unregister (spec §4.2).
	if r.GetServer("s1") == nil {
		t.Fatalf("server was unregistered by a read-only query")
	}
}

func TestPlayerMatchUniqueness(t *testing.T) {
	r := newTestRegistry()
	r.RegisterServer("s1", 1, 8, nil)
	m1, _ := r.CreateMatch("m1", "s1", "survival")
	_ = m1
	if err := r.AddPlayer("m1", "p1"); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	r.RegisterServer("s2", 2, 8, nil)
	m2, _ := r.CreateMatch("m2", "s2", "survival")
	_ = m2
	// Player joins a second match; registry trusts the latest join.
	if err := r.AddPlayer("m2", "p1"); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	got := r.MatchForPlayer("p1")
	if got == nil || got.ID != "m2" {
		t.Fatalf("MatchForPlayer = %v, want m2", got)
	}

	if err := r.EndMatch("m2", "test"); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	if r.MatchForPlayer("p1") != nil {
		t.Fatalf("player still bound to an Ended match")
	}
}

func TestRemovePlayerSilentWhenAbsent(t *testing.T) {
	r := newTestRegistry()
	r.RegisterServer("s1", 1, 8, nil)
	r.CreateMatch("m1", "s1", "survival")
	r.RemovePlayer("m1", "ghost") // must not panic or error
}

// TestConcurrentMutationsStayConsistent is a property-style stress test for
// spec §8 invariant 6 (player↔match uniqueness) under concurrent writers.
func TestConcurrentMutationsStayConsistent(t *testing.T) {
	r := newTestRegistry()
	r.RegisterServer("s1", 1, 1000, nil)
	r.CreateMatch("m1", "s1", "survival")
	r.RegisterServer("s2", 2, 1000, nil)
	r.CreateMatch("m2", "s2", "survival")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.AddPlayer("m1", "shared-player")
			} else {
				r.AddPlayer("m2", "shared-player")
			}
		}(i)
	}
	wg.Wait()

	got := r.MatchForPlayer("shared-player")
	if got == nil {
		t.Fatalf("player lost its match binding")
	}
	m1 := r.GetMatch("m1")
	m2 := r.GetMatch("m2")
	inBoth := m1.Players["shared-player"] && m2.Players["shared-player"]
	if inBoth && got.ID != "m1" && got.ID != "m2" {
		t.Fatalf("player↔match index diverged from roster membership")
	}
}
