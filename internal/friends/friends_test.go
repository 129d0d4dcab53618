package friends

import (
	"testing"
	"time"
)

func TestSendRequestIsIdempotent(t *testing.T) {
	d := New()
	if err := d.SendRequest("a", "b"); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := d.SendRequest("a", "b"); err != nil {
		t.Fatalf("re-send should be idempotent, got: %v", err)
	}
	pending := d.ListPending("b")
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1 (no duplicate)", len(pending))
	}
}

func TestSendRequestRejectsSelf(t *testing.T) {
	d := New()
	if err := d.SendRequest("a", "a"); err == nil {
		t.Fatalf("expected error for self-request")
	}
}

func TestAcceptCreatesSymmetricEdge(t *testing.T) {
	d := New()
	d.SendRequest("a", "b")
	if _, err := d.Accept("b", "a"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	aFriends := d.ListFriends("a")
	bFriends := d.ListFriends("b")
	if len(aFriends) != 1 || aFriends[0].PlayerID != "b" {
		t.Fatalf("a's friends = %v, want [b]", aFriends)
	}
	if len(bFriends) != 1 || bFriends[0].PlayerID != "a" {
		t.Fatalf("b's friends = %v, want [a]", bFriends)
	}

	// Pending list must be cleared on accept.
	if len(d.ListPending("b")) != 0 {
		t.Fatalf("pending request survived accept")
	}
}

func TestSendRequestRejectsWhenAlreadyFriends(t *testing.T) {
	d := New()
	d.SendRequest("a", "b")
	d.Accept("b", "a")
	if err := d.SendRequest("a", "b"); err == nil {
		t.Fatalf("expected rejection when already friends")
	}
}

func TestInviteNewestReplacesOldFromSameSender(t *testing.T) {
	d := New()
	d.SendInvite("a", "b", map[string]string{"host": "1.1.1.1"})
	d.SendInvite("a", "b", map[string]string{"host": "2.2.2.2"})

	invites := d.ListInvites("b")
	if len(invites) != 1 {
		t.Fatalf("len(invites) = %d, want 1", len(invites))
	}
	if invites[0].ServerInfo["host"] != "2.2.2.2" {
		t.Fatalf("invite not replaced by newest")
	}
}

func TestInviteCulledAfterTTL(t *testing.T) {
	d := New()
	d.SendInvite("a", "b", nil)
	d.invites["b"]["a"].At = time.Now().Add(-10 * time.Minute)

	invites := d.ListInvites("b")
	if len(invites) != 0 {
		t.Fatalf("stale invite not culled: %v", invites)
	}
}

func TestRemoveBreaksSymmetricEdge(t *testing.T) {
	d := New()
	d.SendRequest("a", "b")
	d.Accept("b", "a")
	d.Remove("a", "b")

	if len(d.ListFriends("a")) != 0 || len(d.ListFriends("b")) != 0 {
		t.Fatalf("edge not removed symmetrically")
	}
}
