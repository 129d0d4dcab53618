// Package market implements C8: escrow-backed listings. Grounded on the
// teacher's items/shop.go fee-and-pricing computations, generalized from
// a fixed shop catalog to player-to-player escrow, and on klingdex's
// storage/trades.go order-lifecycle bookkeeping for the Active/Sold/
// Cancelled/Expired status machine.
package market

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

const (
	listingFeeRate  = 0.05
	minListingFee   = 1
	saleFeeRate     = 0.05
)

// Status is a listing's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Listing is one escrowed item offered for sale.
type Listing struct {
	ID         string
	SellerID   string
	IID        string
	Price      int
	Status     Status
	CreatedAt  time.Time
	ExpiresAt  time.Time
	BuyerID    string
}

// Clone returns a value copy.
func (l *Listing) Clone() *Listing {
	cp := *l
	return &cp
}

// InventoryBackend is the surface Market needs from the Inventory Service.
type InventoryBackend interface {
	SpendGold(characterID string, amount int) (bool, error)
	AddGold(characterID string, amount int) error
	LockForEscrow(characterID, iid, listingID string) error
	ReturnFromEscrow(characterID, iid string) error
	TransferItem(fromID, toID, iid string) error
	GetCharacter(id string) *inventory.Character
}

// cachedOp is a replayable idempotent mutator result, mirroring the
// Inventory Service's own opId cache (internal/inventory's checkCache /
// storeCache) since Create and Buy are mutators in exactly the same sense.
type cachedOp struct {
	listing *Listing
	at      time.Time
}

// Service is the authoritative market store.
type Service struct {
	mu sync.Mutex

	log *logging.Logger
	inv InventoryBackend

	listings map[string]*Listing
	opCache  map[string]*cachedOp // opId -> result, TTL-evicted alongside stale listings
}

// New builds a Service bound to inv.
func New(inv InventoryBackend, log *logging.Logger) *Service {
	return &Service{
		log:      log.Component("market"),
		inv:      inv,
		listings: make(map[string]*Listing),
		opCache:  make(map[string]*cachedOp),
	}
}

// checkCache returns a cached result for opId if present.
func (s *Service) checkCache(opID string) (*Listing, bool) {
	if opID == "" {
		return nil, false
	}
	cached, ok := s.opCache[opID]
	if !ok {
		return nil, false
	}
	return cached.listing, true
}

func (s *Service) storeCache(opID string, l *Listing) {
	if opID == "" {
		return
	}
	s.opCache[opID] = &cachedOp{listing: l, at: time.Now()}
}

func listingFee(price int) int {
	fee := int(float64(price) * listingFeeRate)
	if fee < minListingFee {
		fee = minListingFee
	}
	return fee
}

// Create charges the listing fee up front, non-refundable once the
// escrow lock succeeds; if the lock fails, the fee is refunded. opId makes
// a retried call replay the first attempt's result instead of double-
// charging the fee, the same guarantee Inventory's mutators give.
func (s *Service) Create(characterID, opID, iid string, price, durationHours int) (*Listing, error) {
	if price <= 0 {
		return nil, apierr.ErrPriceOutOfRange
	}
	if durationHours < 1 || durationHours > 72 {
		return nil, apierr.ErrPriceOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.checkCache(opID); ok {
		return cached, nil
	}

	c := s.inv.GetCharacter(characterID)
	if c == nil {
		return nil, apierr.ErrCharacterNotFound
	}
	item, ok := c.Items[iid]
	if !ok {
		return nil, apierr.ErrItemNotFound
	}
	if item.Flags.InRaid {
		return nil, apierr.ErrItemLockedRaid
	}
	if item.Flags.InEscrow {
		return nil, apierr.ErrItemLockedEscrow
	}
	if item.Flags.NonTradeable {
		return nil, apierr.ErrItemNonTradeable
	}
	if item.Flags.QuestBound {
		return nil, apierr.ErrItemQuestBound
	}

	fee := listingFee(price)
	ok2, err := s.inv.SpendGold(characterID, fee)
	if err != nil {
		return nil, err
	}
	if !ok2 {
		return nil, apierr.ErrInsufficientFunds
	}

	id := uuid.NewString()
	if err := s.inv.LockForEscrow(characterID, iid, id); err != nil {
		s.inv.AddGold(characterID, fee) // fee refunded when the lock fails
		return nil, err
	}

	l := &Listing{
		ID: id, SellerID: characterID, IID: iid, Price: price, Status: StatusActive,
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Duration(durationHours) * time.Hour),
	}
	s.listings[id] = l
	res := l.Clone()
	s.storeCache(opID, res)
	return res, nil
}

// Cancel is allowed only for Active listings owned by the caller. The
// listing fee is not refunded.
func (s *Service) Cancel(characterID, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return apierr.ErrListingNotFound
	}
	if l.SellerID != characterID {
		return apierr.ErrNotYourListing
	}
	if l.Status != StatusActive {
		return apierr.ErrListingNotActive
	}

	if err := s.inv.ReturnFromEscrow(l.SellerID, l.IID); err != nil {
		return err
	}
	l.Status = StatusCancelled
	return nil
}

// Buy rejects self-purchase, expired listings (auto-expired on read), and
// insufficient funds; on success the seller is credited net of the sale
// fee and the listing transitions to Sold. opId makes a retried call
// replay the first attempt's result instead of double-spending the
// buyer's gold.
func (s *Service) Buy(buyerID, opID, listingID string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.checkCache(opID); ok {
		return cached, nil
	}

	l, ok := s.listings[listingID]
	if !ok {
		return nil, apierr.ErrListingNotFound
	}
	if l.SellerID == buyerID {
		return nil, apierr.ErrInvalidRequest
	}
	if l.Status != StatusActive {
		return nil, apierr.ErrListingNotActive
	}
	if time.Now().After(l.ExpiresAt) {
		s.expireOneLocked(l)
		return nil, apierr.ErrListingExpired
	}

	ok2, err := s.inv.SpendGold(buyerID, l.Price)
	if err != nil {
		return nil, err
	}
	if !ok2 {
		return nil, apierr.ErrInsufficientFunds
	}

	if err := s.inv.TransferItem(l.SellerID, buyerID, l.IID); err != nil {
		s.inv.AddGold(buyerID, l.Price) // refund on transfer failure; listing stays Active
		return nil, err
	}

	net := l.Price - int(float64(l.Price)*saleFeeRate)
	s.inv.AddGold(l.SellerID, net)

	l.Status = StatusSold
	l.BuyerID = buyerID
	res := l.Clone()
	s.storeCache(opID, res)
	return res, nil
}

func (s *Service) expireOneLocked(l *Listing) {
	s.inv.ReturnFromEscrow(l.SellerID, l.IID)
	l.Status = StatusExpired
}

// ExpireStale returns every Active listing past expiry to escrow's
// owner and marks it Expired, and evicts opId cache entries older than
// the locked TTL. Intended to run on a periodic tick.
func (s *Service) ExpireStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for _, l := range s.listings {
		if l.Status != StatusActive || now.Before(l.ExpiresAt) {
			continue
		}
		s.expireOneLocked(l)
		n++
	}

	cutoff := now.Add(-config.IdempotencyCacheTTL)
	for id, c := range s.opCache {
		if c.at.Before(cutoff) {
			delete(s.opCache, id)
		}
	}
	return n
}

// GetMine returns a snapshot of characterID's listings.
func (s *Service) GetMine(characterID string) []*Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Listing, 0)
	for _, l := range s.listings {
		if l.SellerID == characterID {
			out = append(out, l.Clone())
		}
	}
	return out
}

// GetListing returns a listing by id, or nil.
func (s *Service) GetListing(id string) *Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil
	}
	return l.Clone()
}

// ListActive returns every Active listing (the public browse view).
func (s *Service) ListActive() []*Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Listing, 0)
	for _, l := range s.listings {
		if l.Status == StatusActive {
			out = append(out, l.Clone())
		}
	}
	return out
}
