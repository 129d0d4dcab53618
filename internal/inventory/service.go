package inventory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

// cachedOp is a replayable idempotent mutator result.
type cachedOp struct {
	result *Result
	at     time.Time
}

// Service is the authoritative inventory store for every Character. A
// single mutex serializes all mutation — critical sections are short,
// in-memory map edits and small placement scans, matching the coarse
// per-service locking convention used across the registry.
type Service struct {
	mu sync.Mutex

	log     *logging.Logger
	catalog *Catalog

	characters map[string]*Character
	opCache    map[string]*cachedOp // opId -> result, process-lifetime with TTL eviction
}

// New creates an empty Service over the given catalog.
func New(catalog *Catalog, log *logging.Logger) *Service {
	return &Service{
		log:        log.Component("inventory"),
		catalog:    catalog,
		characters: make(map[string]*Character),
		opCache:    make(map[string]*cachedOp),
	}
}

// CreateCharacter registers a new character with an empty stash.
func (s *Service) CreateCharacter(id, accountID, displayName string, stashWidth, stashHeight int) *Character {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Character{
		ID: id, AccountID: accountID, DisplayName: displayName, Level: 1,
		StashWidth: stashWidth, StashHeight: stashHeight,
		Items:            make(map[string]*ItemInstance),
		Placements:       make(map[string]*Placement),
		TraderReputation: make(map[string]float64),
	}
	s.characters[id] = c
	return c
}

// GetCharacter returns a character by id, or nil.
func (s *Service) GetCharacter(id string) *Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.characters[id]
}

// Snapshot returns stash + items + wallet + version for a character.
func (s *Service) Snapshot(characterID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return nil, apierr.ErrCharacterNotFound
	}
	return s.snapshotLocked(c), nil
}

func (s *Service) snapshotLocked(c *Character) *Snapshot {
	items := make([]*ItemInstance, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, it.Clone())
	}
	placements := make([]*Placement, 0, len(c.Placements))
	for _, p := range c.Placements {
		pp := *p
		placements = append(placements, &pp)
	}
	return &Snapshot{
		CharacterID: c.ID, Gold: c.Gold,
		StashWidth: c.StashWidth, StashHeight: c.StashHeight,
		Items: items, Placements: placements, Version: c.Version,
	}
}

// checkCache returns a cached result for opId if present.
func (s *Service) checkCache(opID string) (*Result, bool) {
	if opID == "" {
		return nil, false
	}
	cached, ok := s.opCache[opID]
	if !ok {
		return nil, false
	}
	return cached.result, true
}

func (s *Service) storeCache(opID string, r *Result) {
	if opID == "" {
		return
	}
	s.opCache[opID] = &cachedOp{result: r, at: time.Now()}
}

// EvictExpiredOps drops idempotency cache entries older than the locked
// TTL. Piggybacked on the market expiry tick, per the supplemented
// eviction policy — the cache is otherwise process-lifetime (spec §4.6).
func (s *Service) EvictExpiredOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-config.IdempotencyCacheTTL)
	for id, c := range s.opCache {
		if c.at.Before(cutoff) {
			delete(s.opCache, id)
		}
	}
}

func bumpVersion(c *Character) int {
	c.Version++
	return c.Version
}

// MoveItem bounds-checks and collision-checks against the rotation-
// adjusted rectangle, rejecting if the item is locked.
func (s *Service) MoveItem(opID, characterID, iid string, x, y, rotation int) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.checkCache(opID); ok {
		return cached, nil
	}

	c, ok := s.characters[characterID]
	if !ok {
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
	def := s.catalog.Get(item.DefinitionID)
	if def == nil {
		return nil, apierr.ErrItemNotFound
	}

	w, h := footprint(def, rotation)
	if !fitsInBounds(x, y, w, h, c.StashWidth, c.StashHeight) {
		return nil, apierr.ErrPositionOutOfBound
	}
	if s.collides(c, iid, x, y, w, h) {
		return nil, apierr.ErrPositionBlocked
	}

	c.Placements[iid] = &Placement{IID: iid, X: x, Y: y, Rotation: rotation}

	d := newDelta()
	d.Moved = append(d.Moved, c.Placements[iid])
	res := &Result{Version: bumpVersion(c), Delta: d}
	s.storeCache(opID, res)
	return res, nil
}

// SplitStack mints a new instance at (x,y) carrying `amount` from the
// source stack, requiring an empty target slot.
func (s *Service) SplitStack(opID, characterID, iid string, amount, x, y int) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.checkCache(opID); ok {
		return cached, nil
	}

	c, ok := s.characters[characterID]
	if !ok {
		return nil, apierr.ErrCharacterNotFound
	}
	src, ok := c.Items[iid]
	if !ok {
		return nil, apierr.ErrItemNotFound
	}
	def := s.catalog.Get(src.DefinitionID)
	if def == nil || def.MaxStack <= 1 {
		return nil, apierr.ErrInvalidStack
	}
	if amount <= 0 || amount >= src.Stack {
		return nil, apierr.ErrInvalidStack
	}
	if src.Flags.InRaid {
		return nil, apierr.ErrItemLockedRaid
	}
	if src.Flags.InEscrow {
		return nil, apierr.ErrItemLockedEscrow
	}

	w, h := footprint(def, 0)
	if !fitsInBounds(x, y, w, h, c.StashWidth, c.StashHeight) {
		return nil, apierr.ErrPositionOutOfBound
	}
	if s.collides(c, "", x, y, w, h) {
		return nil, apierr.ErrPositionBlocked
	}

	src.Stack -= amount
	newItem := &ItemInstance{
		IID: uuid.NewString(), DefinitionID: src.DefinitionID, Stack: amount,
		Durability: src.Durability, CreatedAt: time.Now(),
	}
	c.Items[newItem.IID] = newItem
	c.Placements[newItem.IID] = &Placement{IID: newItem.IID, X: x, Y: y, Rotation: 0}

	d := newDelta()
	d.Added = append(d.Added, newItem.Clone())
	d.Updated = append(d.Updated, src.Clone())
	d.Moved = append(d.Moved, c.Placements[newItem.IID])
	res := &Result{Version: bumpVersion(c), Delta: d}
	s.storeCache(opID, res)
	return res, nil
}

// DiscardItem removes a placement and instance outright.
func (s *Service) DiscardItem(opID, characterID, iid string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.checkCache(opID); ok {
		return cached, nil
	}

	c, ok := s.characters[characterID]
	if !ok {
		return nil, apierr.ErrCharacterNotFound
	}
	if _, ok := c.Items[iid]; !ok {
		return nil, apierr.ErrItemNotFound
	}

	delete(c.Items, iid)
	delete(c.Placements, iid)

	d := newDelta()
	d.Removed = append(d.Removed, iid)
	res := &Result{Version: bumpVersion(c), Delta: d}
	s.storeCache(opID, res)
	return res, nil
}

// LockForRaid is all-or-nothing: if any iid is already locked, no flags
// are set on any of them. Called by the Raid Service during prepare.
func (s *Service) LockForRaid(characterID string, iids []string, raidID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	for _, iid := range iids {
		item, ok := c.Items[iid]
		if !ok {
			return apierr.ErrItemNotFound
		}
		if item.Flags.InRaid || item.Flags.InEscrow {
			return apierr.ErrItemsAlreadyLocked
		}
	}
	for _, iid := range iids {
		c.Items[iid].Flags.InRaid = true
		c.Items[iid].Flags.RaidID = raidID
	}
	return nil
}

// IsInsured reports whether iid is owned by characterID and flagged
// insured. Used by the Raid Service to decide which lost items on death
// are removed versus left in place.
func (s *Service) IsInsured(characterID, iid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return false
	}
	item, ok := c.Items[iid]
	return ok && item.Flags.Insured
}

// UnlockRaidItems clears inRaid for every item whose raidId matches.
func (s *Service) UnlockRaidItems(characterID, raidID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return
	}
	for _, item := range c.Items {
		if item.Flags.InRaid && item.Flags.RaidID == raidID {
			item.Flags.InRaid = false
			item.Flags.RaidID = ""
		}
	}
}

// RemoveItems silently drops missing iids. Used by the Raid Service
// after a death to strip the lost loadout.
func (s *Service) RemoveItems(characterID string, iids []string) *Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := newDelta()
	c, ok := s.characters[characterID]
	if !ok {
		return d
	}
	for _, iid := range iids {
		if _, ok := c.Items[iid]; !ok {
			continue
		}
		delete(c.Items, iid)
		delete(c.Placements, iid)
		d.Removed = append(d.Removed, iid)
	}
	bumpVersion(c)
	return d
}

// MintLoot creates new instances, auto-placing each via first-fit. An
// item that doesn't fit is still minted, owned but invisible until moved
// (spec's auto-placement fallback).
func (s *Service) MintLoot(characterID string, grants []LootGrant) ([]*ItemInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return nil, apierr.ErrCharacterNotFound
	}

	minted := make([]*ItemInstance, 0, len(grants))
	for _, g := range grants {
		def := s.catalog.Get(g.DefinitionID)
		if def == nil {
			continue
		}
		item := &ItemInstance{
			IID: uuid.NewString(), DefinitionID: g.DefinitionID,
			Stack: g.Stack, Durability: 1.0, CreatedAt: time.Now(),
			Flags: ItemFlags{Insured: g.Insured, NonTradeable: def.NonTradeable, QuestBound: def.QuestBound},
		}
		c.Items[item.IID] = item

		if x, y, ok := s.firstFitPlacement(c, def.Width, def.Height); ok {
			c.Placements[item.IID] = &Placement{IID: item.IID, X: x, Y: y, Rotation: 0}
		}
		minted = append(minted, item.Clone())
	}
	bumpVersion(c)
	return minted, nil
}

// UpdateDurability clamps each update's value to [0,1].
func (s *Service) UpdateDurability(characterID string, updates map[string]float64) *Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := newDelta()
	c, ok := s.characters[characterID]
	if !ok {
		return d
	}
	for iid, val := range updates {
		item, ok := c.Items[iid]
		if !ok {
			continue
		}
		if val < 0 {
			val = 0
		}
		if val > 1 {
			val = 1
		}
		item.Durability = val
		d.Updated = append(d.Updated, item.Clone())
	}
	bumpVersion(c)
	return d
}

// AddGold credits the wallet unconditionally.
func (s *Service) AddGold(characterID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	c.Gold += amount
	bumpVersion(c)
	return nil
}

// AddXP credits experience unconditionally. A bare counter, no level-up
// side effects (spec's Open Question decision).
func (s *Service) AddXP(characterID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	c.XP += amount
	bumpVersion(c)
	return nil
}

// SpendGold returns false and performs no change when insufficient.
func (s *Service) SpendGold(characterID string, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return false, apierr.ErrCharacterNotFound
	}
	if c.Gold < amount {
		return false, nil
	}
	c.Gold -= amount
	bumpVersion(c)
	return true, nil
}

// LockForEscrow sets inEscrow and removes the placement (market support).
func (s *Service) LockForEscrow(characterID, iid, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	item, ok := c.Items[iid]
	if !ok {
		return apierr.ErrItemNotFound
	}
	if item.Flags.InRaid {
		return apierr.ErrItemLockedRaid
	}
	if item.Flags.InEscrow {
		return apierr.ErrItemLockedEscrow
	}
	if item.Flags.NonTradeable {
		return apierr.ErrItemNonTradeable
	}
	if item.Flags.QuestBound {
		return apierr.ErrItemQuestBound
	}

	item.Flags.InEscrow = true
	item.Flags.EscrowListingID = listingID
	delete(c.Placements, iid)
	bumpVersion(c)
	return nil
}

// ReturnFromEscrow clears the escrow flag and auto-places the item back
// into the stash via first-fit.
func (s *Service) ReturnFromEscrow(characterID, iid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	item, ok := c.Items[iid]
	if !ok {
		return apierr.ErrItemNotFound
	}
	item.Flags.InEscrow = false
	item.Flags.EscrowListingID = ""

	if def := s.catalog.Get(item.DefinitionID); def != nil {
		if x, y, ok := s.firstFitPlacement(c, def.Width, def.Height); ok {
			c.Placements[iid] = &Placement{IID: iid, X: x, Y: y, Rotation: 0}
		}
	}
	bumpVersion(c)
	return nil
}

// TransferItem moves ownership of iid from one character to another,
// auto-placing into the recipient's stash. Used on a completed sale.
func (s *Service) TransferItem(fromID, toID, iid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.characters[fromID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	to, ok := s.characters[toID]
	if !ok {
		return apierr.ErrCharacterNotFound
	}
	item, ok := from.Items[iid]
	if !ok {
		return apierr.ErrItemNotFound
	}

	delete(from.Items, iid)
	delete(from.Placements, iid)

	item.Flags.InEscrow = false
	item.Flags.EscrowListingID = ""
	to.Items[iid] = item

	if def := s.catalog.Get(item.DefinitionID); def != nil {
		if x, y, ok := s.firstFitPlacement(to, def.Width, def.Height); ok {
			to.Placements[iid] = &Placement{IID: iid, X: x, Y: y, Rotation: 0}
		}
	}

	bumpVersion(from)
	bumpVersion(to)
	return nil
}
