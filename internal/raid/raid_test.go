package raid

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

const testSecret = "test-shared-secret"

// fakeInventory is a minimal in-memory stand-in implementing
// InventoryBackend, used so raid tests don't need a real
// inventory.Service wired through.
type fakeInventory struct {
	locked      map[string]string // iid -> raidId
	insured     map[string]bool
	removed     []string
	minted      []inventory.LootGrant
	goldAdded   map[string]int
	xpAdded     map[string]int
	lockFails   bool
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{locked: map[string]string{}, insured: map[string]bool{}, goldAdded: map[string]int{}, xpAdded: map[string]int{}}
}

func (f *fakeInventory) LockForRaid(characterID string, iids []string, raidID string) error {
	if f.lockFails {
		return errFake
	}
	for _, iid := range iids {
		f.locked[iid] = raidID
	}
	return nil
}

func (f *fakeInventory) UnlockRaidItems(characterID, raidID string) {
	for iid, rid := range f.locked {
		if rid == raidID {
			delete(f.locked, iid)
		}
	}
}

func (f *fakeInventory) RemoveItems(characterID string, iids []string) *inventory.Delta {
	f.removed = append(f.removed, iids...)
	return &inventory.Delta{}
}

func (f *fakeInventory) MintLoot(characterID string, grants []inventory.LootGrant) ([]*inventory.ItemInstance, error) {
	f.minted = append(f.minted, grants...)
	return nil, nil
}

func (f *fakeInventory) UpdateDurability(characterID string, updates map[string]float64) *inventory.Delta {
	return &inventory.Delta{}
}

func (f *fakeInventory) AddGold(characterID string, amount int) error {
	f.goldAdded[characterID] += amount
	return nil
}

func (f *fakeInventory) AddXP(characterID string, amount int) error {
	f.xpAdded[characterID] += amount
	return nil
}

func (f *fakeInventory) IsInsured(characterID, iid string) bool {
	return f.insured[iid]
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errFake = fakeErr("locked")

func newTestService() (*Service, *fakeInventory) {
	inv := newFakeInventory()
	return New(inv, testSecret, logging.Default()), inv
}

func TestPrepareLocksLoadoutItems(t *testing.T) {
	s, inv := newTestService()
	r, err := s.Prepare("c1", "lobby1", Loadout{Primary: "w1", Bag: "b1", Pockets: []string{"p1", "p1", ""}})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(r.LockedIIDs) != 3 {
		t.Fatalf("LockedIIDs = %v, want 3 deduplicated non-blank entries", r.LockedIIDs)
	}
	if inv.locked["w1"] != r.ID {
		t.Fatalf("w1 not locked for raid %s", r.ID)
	}
}

func TestPrepareRejectsWhenAlreadyInRaid(t *testing.T) {
	s, _ := newTestService()
	s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})
	if _, err := s.Prepare("c1", "lobby1", Loadout{Primary: "w2"}); err == nil {
		t.Fatalf("expected already_in_raid")
	}
}

func TestStartRequiresCorrectSecret(t *testing.T) {
	s, _ := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})
	if _, err := s.Start("wrong-secret", r.ID, "match1", nil); err == nil {
		t.Fatalf("expected invalid_server_secret")
	}
}

func TestStartTransitionsToActive(t *testing.T) {
	s, _ := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})

	started, err := s.Start(testSecret, r.ID, "match1", []string{"c1"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != StatusActive {
		t.Fatalf("Status = %v, want Active", started.Status)
	}
	if started.MatchID != "match1" {
		t.Fatalf("MatchID = %s, want match1", started.MatchID)
	}
}

func TestCommitRejectsBadSignature(t *testing.T) {
	s, _ := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})
	s.Start(testSecret, r.ID, "match1", []string{"c1"})

	outcomes := []Outcome{{CharacterID: "c1", Status: "extracted"}}
	if _, err := s.Commit(testSecret, r.ID, "match1", outcomes, "bogus"); err == nil {
		t.Fatalf("expected invalid_signature")
	}
	if got := s.GetRaid(r.ID); got.Status == StatusCommitted {
		t.Fatalf("bad signature must not commit")
	}
}

func TestCommitIsAtMostOnce(t *testing.T) {
	s, inv := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})
	s.Start(testSecret, r.ID, "match1", []string{"c1"})

	outcomes := []Outcome{{CharacterID: "c1", Status: "extracted", GoldGained: 100, XPGained: 50}}
	sig, err := ComputeSignature(r.ID, "match1", outcomes, testSecret)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	if _, err := s.Commit(testSecret, r.ID, "match1", outcomes, sig); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if inv.goldAdded["c1"] != 100 {
		t.Fatalf("gold not applied on first commit")
	}
	if inv.xpAdded["c1"] != 50 {
		t.Fatalf("xp not applied on first commit")
	}

	if _, err := s.Commit(testSecret, r.ID, "match1", outcomes, sig); err == nil {
		t.Fatalf("expected already_committed on second call")
	}
	if inv.goldAdded["c1"] != 100 {
		t.Fatalf("gold must not be applied twice, got %d", inv.goldAdded["c1"])
	}
	if inv.xpAdded["c1"] != 50 {
		t.Fatalf("xp must not be applied twice, got %d", inv.xpAdded["c1"])
	}
}

func TestCommitDiedRemovesOnlyUninsuredItems(t *testing.T) {
	s, inv := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1", Secondary: "w2"})
	s.Start(testSecret, r.ID, "match1", []string{"c1"})
	inv.insured["w2"] = true

	outcomes := []Outcome{{CharacterID: "c1", Status: "died", LostIIDs: []string{"w1", "w2"}}}
	sig, _ := ComputeSignature(r.ID, "match1", outcomes, testSecret)

	if _, err := s.Commit(testSecret, r.ID, "match1", outcomes, sig); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	foundW1 := false
	for _, iid := range inv.removed {
		if iid == "w1" {
			foundW1 = true
		}
		if iid == "w2" {
			t.Fatalf("insured item w2 must not be removed")
		}
	}
	if !foundW1 {
		t.Fatalf("uninsured item w1 should have been removed")
	}
}

func TestCancelOnlyAllowedWhilePreparing(t *testing.T) {
	s, _ := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})
	s.Start(testSecret, r.ID, "match1", []string{"c1"})

	if err := s.Cancel("c1", r.ID); err == nil {
		t.Fatalf("expected raid_not_preparing once Active")
	}
}

func TestCleanupExpiredUnlocksAndDrops(t *testing.T) {
	s, inv := newTestService()
	r, _ := s.Prepare("c1", "lobby1", Loadout{Primary: "w1"})

	s.mu.Lock()
	s.raids[r.ID].ExpiresAt = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	n := s.CleanupExpired()
	if n != 1 {
		t.Fatalf("CleanupExpired() = %d, want 1", n)
	}
	if _, stillLocked := inv.locked["w1"]; stillLocked {
		t.Fatalf("item should be unlocked after expiry cleanup")
	}
	if got := s.GetRaid(r.ID); got.Status != StatusExpired {
		t.Fatalf("Status = %v, want Expired", got.Status)
	}
}

func TestComputeSignatureIsDeterministic(t *testing.T) {
	outcomes := []Outcome{{CharacterID: "c1", Status: "extracted", ProvisionalLoot: []LootItem{{DefinitionID: "bandage", Stack: 1}}}}
	sig1, _ := ComputeSignature("raid1", "match1", outcomes, testSecret)
	sig2, _ := ComputeSignature("raid1", "match1", outcomes, testSecret)
	if sig1 != sig2 {
		t.Fatalf("signature is not deterministic: %s vs %s", sig1, sig2)
	}
	if len(sig1) != 64 {
		t.Fatalf("len(signature) = %d, want 64 (hex-encoded SHA-256)", len(sig1))
	}
}

// TestConcurrentPrepareStartCommitStayConsistent is a property-style stress
// test: many characters run prepare/start/commit concurrently, and every
// one's gold and xp gain must land exactly once under the service mutex.
func TestConcurrentPrepareStartCommitStayConsistent(t *testing.T) {
	s, inv := newTestService()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			charID := fmt.Sprintf("c%d", i)
			r, err := s.Prepare(charID, "lobby1", Loadout{Primary: fmt.Sprintf("w%d", i)})
			if err != nil {
				t.Errorf("Prepare(%s): %v", charID, err)
				return
			}
			if _, err := s.Start(testSecret, r.ID, "match1", []string{charID}); err != nil {
				t.Errorf("Start(%s): %v", charID, err)
				return
			}
			outcomes := []Outcome{{CharacterID: charID, Status: "extracted", GoldGained: 10, XPGained: 5}}
			sig, err := ComputeSignature(r.ID, "match1", outcomes, testSecret)
			if err != nil {
				t.Errorf("ComputeSignature(%s): %v", charID, err)
				return
			}
			if _, err := s.Commit(testSecret, r.ID, "match1", outcomes, sig); err != nil {
				t.Errorf("Commit(%s): %v", charID, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		charID := fmt.Sprintf("c%d", i)
		if inv.goldAdded[charID] != 10 {
			t.Fatalf("%s gold = %d, want 10", charID, inv.goldAdded[charID])
		}
		if inv.xpAdded[charID] != 5 {
			t.Fatalf("%s xp = %d, want 5", charID, inv.xpAdded[charID])
		}
	}
}
