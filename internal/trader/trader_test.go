package trader

import (
	"testing"

	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

type fakeInventory struct {
	gold       map[string]int
	characters map[string]*inventory.Character
	minted     int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{gold: map[string]int{}, characters: map[string]*inventory.Character{}}
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

func (f *fakeInventory) MintLoot(characterID string, grants []inventory.LootGrant) ([]*inventory.ItemInstance, error) {
	f.minted += len(grants)
	out := make([]*inventory.ItemInstance, len(grants))
	for i, g := range grants {
		out[i] = &inventory.ItemInstance{DefinitionID: g.DefinitionID, Stack: g.Stack}
	}
	return out, nil
}

func (f *fakeInventory) RemoveItems(characterID string, iids []string) *inventory.Delta {
	if c := f.characters[characterID]; c != nil {
		for _, iid := range iids {
			delete(c.Items, iid)
		}
	}
	return &inventory.Delta{}
}

func (f *fakeInventory) GetCharacter(id string) *inventory.Character {
	return f.characters[id]
}

func newTestTrader() *Trader {
	return &Trader{
		ID:   "vendor1",
		Name: "Quartermaster",
		Offers: map[string]*Offer{
			"offer-bandage": {ID: "offer-bandage", DefinitionID: "bandage", BasePrice: 10, DefaultStock: 5, RemainingStock: 5},
			"offer-rare":    {ID: "offer-rare", DefinitionID: "rifle_ak", BasePrice: 800, DefaultStock: -1, RemainingStock: -1},
		},
	}
}

func newTestService() (*Service, *fakeInventory) {
	inv := newFakeInventory()
	s := New(inv, inventory.NewCatalog(), []*Trader{newTestTrader()}, logging.Default())
	return s, inv
}

func TestBuyChargesNeutralBasePrice(t *testing.T) {
	s, inv := newTestService()
	inv.gold["c1"] = 100

	minted, err := s.Buy("c1", "vendor1", "offer-bandage", 2)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if len(minted) != 2 {
		t.Fatalf("len(minted) = %d, want 2", len(minted))
	}
	if inv.gold["c1"] != 80 {
		t.Fatalf("gold = %d, want 80 (100 - 2*10 at neutral rep)", inv.gold["c1"])
	}
}

func TestBuyDecrementsFiniteStock(t *testing.T) {
	s, _ := newTestService()
	tr := s.GetTrader("vendor1")
	inv := &fakeInventory{gold: map[string]int{"c1": 1000}}
	s.inv = inv

	s.Buy("c1", "vendor1", "offer-bandage", 3)
	if tr.Offers["offer-bandage"].RemainingStock != 2 {
		t.Fatalf("RemainingStock = %d, want 2", tr.Offers["offer-bandage"].RemainingStock)
	}
}

func TestBuyInfiniteStockNeverDecrements(t *testing.T) {
	s, inv := newTestService()
	inv.gold["c1"] = 10000
	tr := s.GetTrader("vendor1")

	s.Buy("c1", "vendor1", "offer-rare", 3)
	if tr.Offers["offer-rare"].RemainingStock != -1 {
		t.Fatalf("infinite stock should remain -1, got %d", tr.Offers["offer-rare"].RemainingStock)
	}
}

func TestBuyRejectsWhenStockExhausted(t *testing.T) {
	s, inv := newTestService()
	inv.gold["c1"] = 10000

	if _, err := s.Buy("c1", "vendor1", "offer-bandage", 10); err == nil {
		t.Fatalf("expected out_of_stock (only 5 available)")
	}
}

func TestHigherReputationLowersBuyPrice(t *testing.T) {
	s, inv := newTestService()
	inv.gold["c1"] = 10000
	s.reputation["c1"] = map[string]float64{"vendor1": 1.0}

	before := inv.gold["c1"]
	s.Buy("c1", "vendor1", "offer-rare", 1)
	spent := before - inv.gold["c1"]
	// basePrice 800 * (1 - 0.15*1.0) = 680
	if spent != 680 {
		t.Fatalf("spent = %d, want 680 at rep=1.0", spent)
	}
}

func TestSellCreditsDurabilityScaledValue(t *testing.T) {
	s, inv := newTestService()
	inv.characters["c1"] = &inventory.Character{
		ID: "c1",
		Items: map[string]*inventory.ItemInstance{
			"i1": {IID: "i1", DefinitionID: "rifle_ak", Stack: 1, Durability: 0.5},
		},
	}

	credit, err := s.Sell("c1", "vendor1", "i1", 1)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	// rifle_ak baseValue=800, buyback rate at rep=0 is 0.40, durability 0.5 -> 800*0.4*0.5 = 160
	if credit != 160 {
		t.Fatalf("credit = %d, want 160", credit)
	}
	if inv.gold["c1"] != 160 {
		t.Fatalf("gold not credited, got %d", inv.gold["c1"])
	}
	if _, stillOwned := inv.characters["c1"].Items["i1"]; stillOwned {
		t.Fatalf("fully sold stack should be removed")
	}
}

func TestSellRejectsLockedItem(t *testing.T) {
	s, inv := newTestService()
	inv.characters["c1"] = &inventory.Character{
		ID: "c1",
		Items: map[string]*inventory.ItemInstance{
			"i1": {IID: "i1", DefinitionID: "rifle_ak", Stack: 1, Durability: 1, Flags: inventory.ItemFlags{InRaid: true}},
		},
	}

	if _, err := s.Sell("c1", "vendor1", "i1", 1); err == nil {
		t.Fatalf("expected item_locked_raid")
	}
}

func TestRestockAllResetsToDefaults(t *testing.T) {
	s, inv := newTestService()
	inv.gold["c1"] = 10000
	s.Buy("c1", "vendor1", "offer-bandage", 5)

	tr := s.GetTrader("vendor1")
	if tr.Offers["offer-bandage"].RemainingStock != 0 {
		t.Fatalf("expected stock exhausted before restock")
	}

	s.RestockAll()
	if tr.Offers["offer-bandage"].RemainingStock != 5 {
		t.Fatalf("RemainingStock after restock = %d, want 5", tr.Offers["offer-bandage"].RemainingStock)
	}
}

func TestLevelForReputationBands(t *testing.T) {
	cases := []struct {
		rep  float64
		want Level
	}{
		{-1.0, LevelHostile}, {-0.6, LevelHostile},
		{-0.5, LevelWary}, {-0.1, LevelWary},
		{0, LevelNeutral}, {0.4, LevelNeutral},
		{0.5, LevelFriendly}, {0.9, LevelFriendly},
		{1.0, LevelTrusted},
	}
	for _, tc := range cases {
		if got := LevelForReputation(tc.rep); got != tc.want {
			t.Fatalf("LevelForReputation(%v) = %v, want %v", tc.rep, got, tc.want)
		}
	}
}
