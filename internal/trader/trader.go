// Package trader implements C9: a static NPC catalog with reputation-
// adjusted pricing. Grounded on the teacher's items/shop.go catalog
// structure and items/progression.go's clamped-accumulator pattern for
// the reputation score.
package trader

import (
	"sync"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

const (
	buyReputationSensitivity  = 0.15
	buybackBaseRate           = 0.40
	buybackReputationBonus    = 0.10
	reputationGainPerBuyUnit  = 0.001
	reputationGainPerSellUnit = 0.0005
)

// Level is a cosmetic reputation band (SPEC_FULL.md §C.6).
type Level string

const (
	LevelHostile  Level = "hostile"
	LevelWary     Level = "wary"
	LevelNeutral  Level = "neutral"
	LevelFriendly Level = "friendly"
	LevelTrusted  Level = "trusted"
)

// LevelForReputation maps a reputation score to its cosmetic band.
func LevelForReputation(rep float64) Level {
	switch {
	case rep < -0.5:
		return LevelHostile
	case rep < 0:
		return LevelWary
	case rep < 0.5:
		return LevelNeutral
	case rep < 1:
		return LevelFriendly
	default:
		return LevelTrusted
	}
}

// Offer is one catalog entry sold by a trader.
type Offer struct {
	ID             string `json:"id"`
	DefinitionID   string `json:"definitionId"`
	BasePrice      int    `json:"basePrice"`
	DefaultStock   int    `json:"defaultStock"` // -1 means infinite
	RemainingStock int    `json:"remainingStock"`
}

// Trader is one NPC vendor with a static catalog.
type Trader struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Offers map[string]*Offer `json:"offers"` // offerId -> offer
}

// InventoryBackend is the surface Trader needs from the Inventory Service.
type InventoryBackend interface {
	SpendGold(characterID string, amount int) (bool, error)
	AddGold(characterID string, amount int) error
	MintLoot(characterID string, grants []inventory.LootGrant) ([]*inventory.ItemInstance, error)
	RemoveItems(characterID string, iids []string) *inventory.Delta
	GetCharacter(id string) *inventory.Character
}

// Service is the authoritative trader store.
type Service struct {
	mu sync.Mutex

	log     *logging.Logger
	inv     InventoryBackend
	catalog *inventory.Catalog

	traders      map[string]*Trader
	reputation   map[string]map[string]float64 // characterId -> traderId -> rep
}

// New builds a Service over the given traders.
func New(inv InventoryBackend, catalog *inventory.Catalog, traders []*Trader, log *logging.Logger) *Service {
	s := &Service{
		log: log.Component("trader"), inv: inv, catalog: catalog,
		traders:    make(map[string]*Trader),
		reputation: make(map[string]map[string]float64),
	}
	for _, t := range traders {
		s.traders[t.ID] = t
	}
	return s
}

func (s *Service) reputationOf(characterID, traderID string) float64 {
	if s.reputation[characterID] == nil {
		return 0
	}
	return s.reputation[characterID][traderID]
}

func clampReputation(r float64) float64 {
	if r < -1 {
		return -1
	}
	if r > 1 {
		return 1
	}
	return r
}

func (s *Service) adjustReputationLocked(characterID, traderID string, delta float64) {
	if s.reputation[characterID] == nil {
		s.reputation[characterID] = make(map[string]float64)
	}
	s.reputation[characterID][traderID] = clampReputation(s.reputation[characterID][traderID] + delta)
}

// Buy charges finalPrice = max(1, basePrice * (1 - 0.15*rep)), decrements
// stock, and mints the item into the character's stash.
func (s *Service) Buy(characterID, traderID, offerID string, quantity int) ([]*inventory.ItemInstance, error) {
	if quantity <= 0 {
		return nil, apierr.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.traders[traderID]
	if !ok {
		return nil, apierr.ErrTraderNotFound
	}
	offer, ok := t.Offers[offerID]
	if !ok {
		return nil, apierr.ErrOfferNotFound
	}
	if offer.RemainingStock == 0 {
		return nil, apierr.ErrOutOfStock
	}
	if offer.RemainingStock > 0 && quantity > offer.RemainingStock {
		return nil, apierr.ErrOutOfStock
	}

	rep := s.reputationOf(characterID, traderID)
	unitPrice := buyPrice(offer.BasePrice, rep)
	total := unitPrice * quantity

	ok2, err := s.inv.SpendGold(characterID, total)
	if err != nil {
		return nil, err
	}
	if !ok2 {
		return nil, apierr.ErrInsufficientFunds
	}

	grants := make([]inventory.LootGrant, quantity)
	for i := range grants {
		grants[i] = inventory.LootGrant{DefinitionID: offer.DefinitionID, Stack: 1}
	}
	minted, err := s.inv.MintLoot(characterID, grants)
	if err != nil {
		s.inv.AddGold(characterID, total)
		return nil, err
	}

	if offer.RemainingStock > 0 {
		offer.RemainingStock -= quantity
	}
	s.adjustReputationLocked(characterID, traderID, reputationGainPerBuyUnit*float64(quantity))

	return minted, nil
}

func buyPrice(basePrice int, rep float64) int {
	p := float64(basePrice) * (1 - buyReputationSensitivity*rep)
	if p < 1 {
		p = 1
	}
	return int(p)
}

// Sell credits defBaseValue * buybackRate * durability * stackSold.
func (s *Service) Sell(characterID, traderID, iid string, stackSold int) (int, error) {
	if stackSold <= 0 {
		return 0, apierr.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.traders[traderID]; !ok {
		return 0, apierr.ErrTraderNotFound
	}

	c := s.inv.GetCharacter(characterID)
	if c == nil {
		return 0, apierr.ErrCharacterNotFound
	}
	item, ok := c.Items[iid]
	if !ok {
		return 0, apierr.ErrItemNotFound
	}
	if item.Flags.InRaid {
		return 0, apierr.ErrItemLockedRaid
	}
	if item.Flags.InEscrow {
		return 0, apierr.ErrItemLockedEscrow
	}
	if stackSold > item.Stack {
		return 0, apierr.ErrInvalidStack
	}

	def := s.catalog.Get(item.DefinitionID)
	if def == nil {
		return 0, apierr.ErrItemNotFound
	}

	rep := s.reputationOf(characterID, traderID)
	rate := buybackBaseRate + buybackReputationBonus*rep
	credit := int(float64(def.BaseValue) * rate * item.Durability * float64(stackSold))

	if stackSold == item.Stack {
		s.inv.RemoveItems(characterID, []string{iid})
	} else {
		item.Stack -= stackSold
	}

	s.inv.AddGold(characterID, credit)
	s.adjustReputationLocked(characterID, traderID, reputationGainPerSellUnit*float64(stackSold))

	return credit, nil
}

// ReputationLevel returns the cosmetic band for characterID's standing
// with traderID.
func (s *Service) ReputationLevel(characterID, traderID string) Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LevelForReputation(s.reputationOf(characterID, traderID))
}

// RestockAll resets every trader's offer stocks to their defaults.
func (s *Service) RestockAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.traders {
		for _, o := range t.Offers {
			o.RemainingStock = o.DefaultStock
		}
	}
}

// GetTrader returns a trader by id, or nil.
func (s *Service) GetTrader(id string) *Trader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traders[id]
}
