package lobby

import (
	"testing"
)

func TestCreateAssignsLeaderSpawnZero(t *testing.T) {
	s := New()
	l, err := s.Create("leader", "survival", 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(l.Code) != codeLength {
		t.Fatalf("code length = %d, want %d", len(l.Code), codeLength)
	}
	if len(l.Members) != 1 || l.Members[0].PlayerID != "leader" || l.Members[0].SpawnIndex != 0 {
		t.Fatalf("unexpected members: %+v", l.Members)
	}
	if !l.Members[0].Ready {
		t.Fatalf("leader should be ready by default")
	}
}

func TestJoinExactCode(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)

	joined, err := s.Join(l.Code, "p2")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(joined.Members) != 2 || joined.Members[1].PlayerID != "p2" || joined.Members[1].SpawnIndex != 1 {
		t.Fatalf("unexpected members after join: %+v", joined.Members)
	}
}

func TestJoinPrefixTolerant(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	prefix := l.Code[:4]

	joined, err := s.Join(prefix, "p2")
	if err != nil {
		t.Fatalf("Join via prefix: %v", err)
	}
	if joined.Code != l.Code {
		t.Fatalf("joined lobby code = %s, want %s", joined.Code, l.Code)
	}
}

func TestJoinRejectsWhenFull(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 1)
	if _, err := s.Join(l.Code, "p2"); err == nil {
		t.Fatalf("expected lobby_full error")
	}
}

func TestJoinRejectsWhenNotWaiting(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Start(l.Code, "leader", "srv1", "127.0.0.1", 27015, "match1")

	if _, err := s.Join(l.Code, "p2"); err == nil {
		t.Fatalf("expected lobby_not_waiting error")
	}
}

func TestLeaveCollapsesSpawnIndicesAndPromotesLeader(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Join(l.Code, "p2")
	s.Join(l.Code, "p3")

	s.Leave(l.Code, "leader")

	got := s.Get(l.Code)
	if got.LeaderID != "p2" {
		t.Fatalf("LeaderID = %s, want p2 (promoted)", got.LeaderID)
	}
	if len(got.Members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(got.Members))
	}
	for i, m := range got.Members {
		if m.SpawnIndex != i {
			t.Fatalf("spawn index not dense: member %d has index %d", i, m.SpawnIndex)
		}
	}
}

func TestLeaveDeletesLobbyWhenEmpty(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Leave(l.Code, "leader")

	if got := s.Get(l.Code); got != nil {
		t.Fatalf("lobby should be deleted once empty, got %+v", got)
	}
}

func TestJoinRemovesPlayerFromPriorLobby(t *testing.T) {
	s := New()
	l1, _ := s.Create("leader1", "survival", 4)
	l2, _ := s.Create("leader2", "survival", 4)

	s.Join(l1.Code, "p2")
	s.Join(l2.Code, "p2") // should silently leave l1 first

	got1 := s.Get(l1.Code)
	if len(got1.Members) != 1 {
		t.Fatalf("p2 should have left l1, members: %+v", got1.Members)
	}
	got2 := s.Get(l2.Code)
	if len(got2.Members) != 2 {
		t.Fatalf("p2 should be in l2, members: %+v", got2.Members)
	}
}

func TestStartRequiresLeader(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Join(l.Code, "p2")

	if _, err := s.Start(l.Code, "p2", "srv1", "127.0.0.1", 27015, "m1"); err == nil {
		t.Fatalf("expected not_leader error")
	}
}

func TestStartRequiresAllReady(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Join(l.Code, "p2")

	if _, err := s.Start(l.Code, "leader", "srv1", "127.0.0.1", 27015, "m1"); err == nil {
		t.Fatalf("expected failure: p2 not ready")
	}

	s.SetReady(l.Code, "p2", true)
	started, err := s.Start(l.Code, "leader", "srv1", "127.0.0.1", 27015, "m1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.State != StateStarting {
		t.Fatalf("State = %v, want Starting", started.State)
	}
}

func TestClaimSpawnReturnsAssignedIndex(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Join(l.Code, "p2")

	claim, err := s.ClaimSpawn(l.Code, "p2")
	if err != nil {
		t.Fatalf("ClaimSpawn: %v", err)
	}
	if claim.SpawnIndex != 1 {
		t.Fatalf("SpawnIndex = %d, want 1", claim.SpawnIndex)
	}
	if claim.GroupName != l.Code {
		t.Fatalf("GroupName = %s, want %s", claim.GroupName, l.Code)
	}
}

func TestCleanupStaleRemovesOldWaitingLobbies(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)

	s.mu.Lock()
	s.lobbies[l.Code].CreatedAt = s.lobbies[l.Code].CreatedAt.Add(-2 * 60 * 60 * 1e9) // -2h in ns
	s.mu.Unlock()

	s.CleanupStale()

	if got := s.Get(l.Code); got != nil {
		t.Fatalf("stale lobby should have been cleaned up")
	}
}

func TestCleanupStaleSparesInGameLobbies(t *testing.T) {
	s := New()
	l, _ := s.Create("leader", "survival", 4)
	s.Join(l.Code, "p2")
	s.SetReady(l.Code, "p2", true)
	s.Start(l.Code, "leader", "srv1", "127.0.0.1", 27015, "m1")

	s.mu.Lock()
	s.lobbies[l.Code].State = StateInGame
	s.lobbies[l.Code].CreatedAt = s.lobbies[l.Code].CreatedAt.Add(-2 * 60 * 60 * 1e9)
	s.mu.Unlock()

	s.CleanupStale()

	if got := s.Get(l.Code); got == nil {
		t.Fatalf("in-game lobby should be spared from cleanup")
	}
}
