package market

import (
	"testing"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

// fakeInventory is a minimal stand-in implementing InventoryBackend.
type fakeInventory struct {
	gold       map[string]int
	escrowed   map[string]string // iid -> listingId
	owner      map[string]string // iid -> characterId
	characters map[string]*inventory.Character
	lockFails  bool
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		gold: map[string]int{}, escrowed: map[string]string{}, owner: map[string]string{},
		characters: map[string]*inventory.Character{},
	}
}

func (f *fakeInventory) addCharacterWithItem(charID, iid string, flags inventory.ItemFlags) {
	f.characters[charID] = &inventory.Character{
		ID: charID,
		Items: map[string]*inventory.ItemInstance{
			iid: {IID: iid, DefinitionID: "bandage", Stack: 1, Flags: flags},
		},
	}
	f.owner[iid] = charID
}

func (f *fakeInventory) SpendGold(characterID string, amount int) (bool, error) {
	if f.gold[characterID] < amount {
		return false, nil
	}
	f.gold[characterID] -= amount
	return true, nil
}

func (f *fakeInventory) AddGold(characterID string, amount int) error {
	f.gold[characterID] += amount
	return nil
}

func (f *fakeInventory) LockForEscrow(characterID, iid, listingID string) error {
	if f.lockFails {
		return fakeErr("lock failed")
	}
	f.escrowed[iid] = listingID
	if c := f.characters[characterID]; c != nil {
		c.Items[iid].Flags.InEscrow = true
	}
	return nil
}

func (f *fakeInventory) ReturnFromEscrow(characterID, iid string) error {
	delete(f.escrowed, iid)
	if c := f.characters[characterID]; c != nil {
		c.Items[iid].Flags.InEscrow = false
	}
	return nil
}

func (f *fakeInventory) TransferItem(fromID, toID, iid string) error {
	delete(f.escrowed, iid)
	f.owner[iid] = toID
	item := f.characters[fromID].Items[iid]
	delete(f.characters[fromID].Items, iid)
	if f.characters[toID] == nil {
		f.characters[toID] = &inventory.Character{ID: toID, Items: map[string]*inventory.ItemInstance{}}
	}
	item.Flags.InEscrow = false
	f.characters[toID].Items[iid] = item
	return nil
}

func (f *fakeInventory) GetCharacter(id string) *inventory.Character {
	return f.characters[id]
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func newTestService() (*Service, *fakeInventory) {
	inv := newFakeInventory()
	return New(inv, logging.Default()), inv
}

func TestCreateChargesFeeAndLocksEscrow(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100

	l, err := s.Create("seller", "op-create-1", "i1", 100, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.gold["seller"] != 95 {
		t.Fatalf("gold after fee = %d, want 95 (5%% of 100)", inv.gold["seller"])
	}
	if inv.escrowed["i1"] != l.ID {
		t.Fatalf("item not locked in escrow under listing id")
	}
}

func TestCreateMinimumFeeIsOneGold(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 10

	if _, err := s.Create("seller", "op-create-2", "i1", 5, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.gold["seller"] != 9 {
		t.Fatalf("gold after min fee = %d, want 9 (5%% of 5 rounds to 0, floor is 1)", inv.gold["seller"])
	}
}

func TestCreateRefundsFeeWhenLockFails(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	inv.lockFails = true

	if _, err := s.Create("seller", "op-create-3", "i1", 100, 24); err == nil {
		t.Fatalf("expected lock failure to propagate")
	}
	if inv.gold["seller"] != 100 {
		t.Fatalf("fee should be refunded, gold = %d, want 100", inv.gold["seller"])
	}
}

func TestCreateRejectsNonTradeable(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{NonTradeable: true})
	inv.gold["seller"] = 100

	if _, err := s.Create("seller", "op-create-4", "i1", 100, 24); err == nil {
		t.Fatalf("expected item_non_tradeable")
	}
}

func TestBuyRejectsSelfPurchase(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	l, _ := s.Create("seller", "op-create-5", "i1", 100, 24)

	if _, err := s.Buy("seller", "op-buy-1", l.ID); err == nil {
		t.Fatalf("expected rejection of self-purchase")
	}
}

func TestBuyCreditsSellerNetOfSaleFee(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	l, _ := s.Create("seller", "op-create-6", "i1", 100, 24)
	inv.gold["buyer"] = 100

	got, err := s.Buy("buyer", "op-buy-2", l.ID)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if got.Status != StatusSold {
		t.Fatalf("Status = %v, want Sold", got.Status)
	}
	// seller already paid 5 listing fee (100->95); sale nets 95 after 5% sale fee.
	if inv.gold["seller"] != 95+95 {
		t.Fatalf("seller gold = %d, want %d", inv.gold["seller"], 95+95)
	}
	if inv.gold["buyer"] != 0 {
		t.Fatalf("buyer gold = %d, want 0", inv.gold["buyer"])
	}
	if inv.owner["i1"] != "buyer" {
		t.Fatalf("ownership not transferred to buyer")
	}
}

func TestBuyRejectsInsufficientFunds(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	l, _ := s.Create("seller", "op-create-7", "i1", 100, 24)
	inv.gold["buyer"] = 10

	if _, err := s.Buy("buyer", "op-buy-3", l.ID); err == nil {
		t.Fatalf("expected insufficient_funds")
	}
	if inv.gold["buyer"] != 10 {
		t.Fatalf("buyer gold must be unchanged on rejection")
	}
}

func TestBuyIsIdempotentPerOpID(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	l, _ := s.Create("seller", "op-create", "i1", 100, 24)
	inv.gold["buyer"] = 100

	first, err := s.Buy("buyer", "op-dup", l.ID)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	goldAfterFirst := inv.gold["buyer"]

	second, err := s.Buy("buyer", "op-dup", l.ID)
	if err != nil {
		t.Fatalf("replay Buy: %v", err)
	}
	if first.Status != second.Status || first.BuyerID != second.BuyerID {
		t.Fatalf("replayed result should be identical")
	}
	if inv.gold["buyer"] != goldAfterFirst {
		t.Fatalf("replay must not spend gold twice, buyer gold = %d, want %d", inv.gold["buyer"], goldAfterFirst)
	}
}

func TestCreateIsIdempotentPerOpID(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100

	first, err := s.Create("seller", "op-dup", "i1", 100, 24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	goldAfterFirst := inv.gold["seller"]

	second, err := s.Create("seller", "op-dup", "i1", 100, 24)
	if err != nil {
		t.Fatalf("replay Create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replayed result should be identical listing")
	}
	if inv.gold["seller"] != goldAfterFirst {
		t.Fatalf("replay must not charge the listing fee twice, gold = %d, want %d", inv.gold["seller"], goldAfterFirst)
	}
}

func TestCancelReturnsItemWithoutFeeRefund(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	l, _ := s.Create("seller", "op-create-8", "i1", 100, 24)

	if err := s.Cancel("seller", l.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if inv.gold["seller"] != 95 {
		t.Fatalf("fee should not be refunded on cancel, gold = %d, want 95", inv.gold["seller"])
	}
	if _, stillEscrowed := inv.escrowed["i1"]; stillEscrowed {
		t.Fatalf("item should be returned from escrow")
	}
}

func TestExpireStaleMarksExpiredListings(t *testing.T) {
	s, inv := newTestService()
	inv.addCharacterWithItem("seller", "i1", inventory.ItemFlags{})
	inv.gold["seller"] = 100
	l, _ := s.Create("seller", "op-create-9", "i1", 100, 1)

	s.mu.Lock()
	s.listings[l.ID].ExpiresAt = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	n := s.ExpireStale()
	if n != 1 {
		t.Fatalf("ExpireStale() = %d, want 1", n)
	}
	if got := s.GetListing(l.ID); got.Status != StatusExpired {
		t.Fatalf("Status = %v, want Expired", got.Status)
	}
}
