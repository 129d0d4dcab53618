package inventory

import (
	"sync"
	"testing"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

func newTestService() *Service {
	return New(NewCatalog(), logging.Default())
}

func TestMoveItemRejectsCollision(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "rifle_ak", Stack: 1, Durability: 1}
	c.Placements["i1"] = &Placement{IID: "i1", X: 0, Y: 0, Rotation: 0}
	c.Items["i2"] = &ItemInstance{IID: "i2", DefinitionID: "pistol_9mm", Stack: 1, Durability: 1}

	if _, err := s.MoveItem("op1", "c1", "i2", 1, 0, 0); err == nil {
		t.Fatalf("expected position_blocked (overlaps rifle at x=0..3)")
	}

	res, err := s.MoveItem("op2", "c1", "i2", 4, 0, 0)
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if res.Version != c.Version {
		t.Fatalf("returned version mismatch")
	}
}

func TestMoveItemRejectsOutOfBounds(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 4, 4)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "rifle_ak", Stack: 1, Durability: 1}

	if _, err := s.MoveItem("op1", "c1", "i1", 2, 0, 0); err == nil {
		t.Fatalf("expected position_out_of_bounds (rifle is 4 wide, stash is 4 wide, x=2 overflows)")
	}
}

func TestMoveItemRotationSwapsFootprint(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 4, 4)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "rifle_ak", Stack: 1, Durability: 1}

	// Unrotated: 4 wide x 1 tall, fits flush.
	if _, err := s.MoveItem("op1", "c1", "i1", 0, 0, 0); err != nil {
		t.Fatalf("unrotated placement should fit: %v", err)
	}
	// Rotated: footprint becomes 1 wide x 4 tall, also fits at x=0,y=0.
	if _, err := s.MoveItem("op2", "c1", "i1", 0, 0, 1); err != nil {
		t.Fatalf("rotated placement should fit: %v", err)
	}
}

func TestMoveItemRejectsWhenLockedInRaid(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1, Flags: ItemFlags{InRaid: true}}

	if _, err := s.MoveItem("op1", "c1", "i1", 1, 1, 0); err == nil {
		t.Fatalf("expected item_locked_raid")
	}
}

func TestMoveItemIdempotentReplay(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1}

	r1, err := s.MoveItem("op-dup", "c1", "i1", 2, 2, 0)
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	versionBefore := c.Version

	r2, err := s.MoveItem("op-dup", "c1", "i1", 5, 5, 0) // different target, same opId
	if err != nil {
		t.Fatalf("replay MoveItem: %v", err)
	}
	if r1.Version != r2.Version {
		t.Fatalf("replayed result should be identical: %d vs %d", r1.Version, r2.Version)
	}
	if c.Version != versionBefore {
		t.Fatalf("replay must not mutate state, version changed %d -> %d", versionBefore, c.Version)
	}
	if c.Placements["i1"].X != 2 {
		t.Fatalf("replay should not apply the new move, placement = %+v", c.Placements["i1"])
	}
}

func TestSplitStackCreatesNewInstance(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "ammo_9mm", Stack: 20, Durability: 1}
	c.Placements["i1"] = &Placement{IID: "i1", X: 0, Y: 0}

	res, err := s.SplitStack("op1", "c1", "i1", 5, 1, 0)
	if err != nil {
		t.Fatalf("SplitStack: %v", err)
	}
	if c.Items["i1"].Stack != 15 {
		t.Fatalf("source stack = %d, want 15", c.Items["i1"].Stack)
	}
	if len(res.Delta.Added) != 1 || res.Delta.Added[0].Stack != 5 {
		t.Fatalf("unexpected delta.Added: %+v", res.Delta.Added)
	}
}

func TestSplitStackRejectsWhenLockedInRaidOrEscrow(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "ammo_9mm", Stack: 20, Flags: ItemFlags{InRaid: true}}
	c.Items["i2"] = &ItemInstance{IID: "i2", DefinitionID: "ammo_9mm", Stack: 20, Flags: ItemFlags{InEscrow: true}}

	if _, err := s.SplitStack("op1", "c1", "i1", 5, 1, 0); err != apierr.ErrItemLockedRaid {
		t.Fatalf("expected item_locked_raid, got %v", err)
	}
	if _, err := s.SplitStack("op2", "c1", "i2", 5, 1, 0); err != apierr.ErrItemLockedEscrow {
		t.Fatalf("expected item_locked_escrow, got %v", err)
	}
}

func TestSplitStackRejectsFullAmount(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "ammo_9mm", Stack: 20}

	if _, err := s.SplitStack("op1", "c1", "i1", 20, 1, 0); err == nil {
		t.Fatalf("expected invalid_stack: amount must be < stack")
	}
}

func TestLockForRaidIsAllOrNothing(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1}
	c.Items["i2"] = &ItemInstance{IID: "i2", DefinitionID: "bandage", Stack: 1, Flags: ItemFlags{InEscrow: true}}

	if err := s.LockForRaid("c1", []string{"i1", "i2"}, "raid1"); err == nil {
		t.Fatalf("expected items_already_locked")
	}
	if c.Items["i1"].Flags.InRaid {
		t.Fatalf("i1 must not be locked when the batch fails atomically")
	}
}

func TestUnlockRaidItemsClearsOnlyMatchingRaid(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1, Flags: ItemFlags{InRaid: true, RaidID: "raidA"}}
	c.Items["i2"] = &ItemInstance{IID: "i2", DefinitionID: "bandage", Stack: 1, Flags: ItemFlags{InRaid: true, RaidID: "raidB"}}

	s.UnlockRaidItems("c1", "raidA")

	if c.Items["i1"].Flags.InRaid {
		t.Fatalf("i1 should be unlocked")
	}
	if !c.Items["i2"].Flags.InRaid {
		t.Fatalf("i2 belongs to a different raid, should remain locked")
	}
}

func TestMintLootAutoPlacesFirstFit(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 4, 4)

	minted, err := s.MintLoot("c1", []LootGrant{{DefinitionID: "bandage", Stack: 1}, {DefinitionID: "bandage", Stack: 1}})
	if err != nil {
		t.Fatalf("MintLoot: %v", err)
	}
	if len(minted) != 2 {
		t.Fatalf("len(minted) = %d, want 2", len(minted))
	}
	p0 := c.Placements[minted[0].IID]
	p1 := c.Placements[minted[1].IID]
	if p0 == nil || p1 == nil {
		t.Fatalf("both items should be auto-placed in an empty 4x4 stash")
	}
	if p0.X == p1.X && p0.Y == p1.Y {
		t.Fatalf("minted items must not collide: %+v %+v", p0, p1)
	}
}

func TestMintLootWithoutRoomStaysUnplaced(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 1, 1)
	s.MintLoot("c1", []LootGrant{{DefinitionID: "bandage", Stack: 1}})

	minted, err := s.MintLoot("c1", []LootGrant{{DefinitionID: "bandage", Stack: 1}})
	if err != nil {
		t.Fatalf("MintLoot: %v", err)
	}
	if _, placed := c.Placements[minted[0].IID]; placed {
		t.Fatalf("second bandage should have no room and remain unplaced")
	}
	if _, owned := c.Items[minted[0].IID]; !owned {
		t.Fatalf("unplaced loot must still be owned")
	}
}

func TestSpendGoldInsufficientDoesNotMutate(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Gold = 5

	ok, err := s.SpendGold("c1", 10)
	if err != nil {
		t.Fatalf("SpendGold: %v", err)
	}
	if ok {
		t.Fatalf("expected insufficient funds")
	}
	if c.Gold != 5 {
		t.Fatalf("gold should be unchanged, got %d", c.Gold)
	}
}

func TestLockForEscrowRemovesPlacement(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1}
	c.Placements["i1"] = &Placement{IID: "i1", X: 0, Y: 0}

	if err := s.LockForEscrow("c1", "i1", "listing1"); err != nil {
		t.Fatalf("LockForEscrow: %v", err)
	}
	if !c.Items["i1"].Flags.InEscrow {
		t.Fatalf("item should be flagged inEscrow")
	}
	if _, stillPlaced := c.Placements["i1"]; stillPlaced {
		t.Fatalf("escrowed item should be removed from the stash grid")
	}
}

func TestLockForEscrowRejectsNonTradeable(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "quest_keycard", Stack: 1, Flags: ItemFlags{NonTradeable: true}}

	if err := s.LockForEscrow("c1", "i1", "listing1"); err == nil {
		t.Fatalf("expected item_non_tradeable")
	}
}

func TestTransferItemMovesOwnershipAndPlaces(t *testing.T) {
	s := newTestService()
	seller := s.CreateCharacter("seller", "a1", "Seller", 10, 10)
	buyer := s.CreateCharacter("buyer", "a2", "Buyer", 10, 10)
	seller.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1, Flags: ItemFlags{InEscrow: true, EscrowListingID: "l1"}}

	if err := s.TransferItem("seller", "buyer", "i1"); err != nil {
		t.Fatalf("TransferItem: %v", err)
	}
	if _, stillOwned := seller.Items["i1"]; stillOwned {
		t.Fatalf("seller should no longer own the item")
	}
	got := buyer.Items["i1"]
	if got == nil {
		t.Fatalf("buyer should now own the item")
	}
	if got.Flags.InEscrow {
		t.Fatalf("transferred item should no longer be inEscrow")
	}
	if _, placed := buyer.Placements["i1"]; !placed {
		t.Fatalf("transferred item should be auto-placed in buyer's stash")
	}
}

func TestRectsOverlap(t *testing.T) {
	cases := []struct {
		name string
		a    [4]int
		b    [4]int
		want bool
	}{
		{"disjoint-x", [4]int{0, 0, 2, 2}, [4]int{2, 0, 2, 2}, false},
		{"disjoint-y", [4]int{0, 0, 2, 2}, [4]int{0, 2, 2, 2}, false},
		{"overlapping", [4]int{0, 0, 2, 2}, [4]int{1, 1, 2, 2}, true},
		{"identical", [4]int{0, 0, 1, 1}, [4]int{0, 0, 1, 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rectsOverlap(tc.a[0], tc.a[1], tc.a[2], tc.a[3], tc.b[0], tc.b[1], tc.b[2], tc.b[3])
			if got != tc.want {
				t.Fatalf("rectsOverlap(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

// TestConcurrentGoldMutationsStayConsistent is a property-style stress
// test for concurrent wallet mutation: every goroutine's AddGold must be
// reflected exactly once, with no lost updates under the mutex.
func TestConcurrentGoldMutationsStayConsistent(t *testing.T) {
	s := newTestService()
	s.CreateCharacter("c1", "a1", "Player", 10, 10)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddGold("c1", 1)
		}()
	}
	wg.Wait()

	c := s.GetCharacter("c1")
	if c.Gold != 200 {
		t.Fatalf("Gold = %d, want 200 (lost update under concurrent AddGold)", c.Gold)
	}
}

// TestConcurrentMoveItemSameOpIDReplaysOnce stresses the opId cache: many
// goroutines racing the same opId against the same mutation must all
// observe the identical cached result, and the character version must
// advance exactly once.
func TestConcurrentMoveItemSameOpIDReplaysOnce(t *testing.T) {
	s := newTestService()
	c := s.CreateCharacter("c1", "a1", "Player", 10, 10)
	c.Items["i1"] = &ItemInstance{IID: "i1", DefinitionID: "bandage", Stack: 1}

	var wg sync.WaitGroup
	versions := make([]int, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.MoveItem("shared-op", "c1", "i1", 2, 2, 0)
			if err != nil {
				t.Errorf("MoveItem: %v", err)
				return
			}
			versions[i] = res.Version
		}(i)
	}
	wg.Wait()

	for i, v := range versions {
		if v != versions[0] {
			t.Fatalf("goroutine %d got version %d, want %d (opId cache did not replay a single result)", i, v, versions[0])
		}
	}
	if c.Version != versions[0] {
		t.Fatalf("character version = %d, want %d (should have advanced exactly once)", c.Version, versions[0])
	}
}
