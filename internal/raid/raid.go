package raid

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

// InventoryBackend is the surface Raid needs from the Inventory Service.
// Per the no-reverse-calls convention (Raid/Market call into Inventory,
// never back), this interface lets the raid package depend on behavior
// rather than the concrete inventory.Service.
type InventoryBackend interface {
	LockForRaid(characterID string, iids []string, raidID string) error
	UnlockRaidItems(characterID, raidID string)
	RemoveItems(characterID string, iids []string) *inventory.Delta
	MintLoot(characterID string, grants []inventory.LootGrant) ([]*inventory.ItemInstance, error)
	UpdateDurability(characterID string, updates map[string]float64) *inventory.Delta
	AddGold(characterID string, amount int) error
	AddXP(characterID string, amount int) error
	IsInsured(characterID, iid string) bool
}

// Service is the authoritative raid store.
type Service struct {
	mu sync.Mutex

	log          *logging.Logger
	inv          InventoryBackend
	sharedSecret string

	raids           map[string]*Raid // raidId -> raid
	characterRaids  map[string]string // characterId -> active raidId
}

// New builds a Service bound to inv and the configured match-server
// shared secret used to authenticate server-originated calls.
func New(inv InventoryBackend, sharedSecret string, log *logging.Logger) *Service {
	return &Service{
		log:            log.Component("raid"),
		inv:            inv,
		sharedSecret:   sharedSecret,
		raids:          make(map[string]*Raid),
		characterRaids: make(map[string]string),
	}
}

// Prepare locks the loadout's items and registers a new Preparing raid.
func (s *Service) Prepare(characterID, lobbyID string, loadout Loadout) (*Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.characterRaids[characterID]; ok {
		existing := s.raids[existingID]
		if existing != nil && !existing.Status.IsTerminal() {
			if time.Now().Before(existing.ExpiresAt) {
				return nil, apierr.ErrAlreadyInRaid
			}
			s.cleanupOneLocked(existing, "expired")
		}
	}

	iids := loadout.IIDs()
	id := uuid.NewString()
	if err := s.inv.LockForRaid(characterID, iids, id); err != nil {
		return nil, apierr.ErrItemsAlreadyLocked
	}

	r := &Raid{
		ID: id, CharacterID: characterID, LobbyID: lobbyID,
		Loadout: loadout, LockedIIDs: iids, Status: StatusPreparing,
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(config.RaidPrepareTimeout),
	}
	s.raids[id] = r
	s.characterRaids[characterID] = id
	return r.Clone(), nil
}

// checkSecret is the first rule evaluated by every server-originated call.
func (s *Service) checkSecret(secret string) error {
	if secret != s.sharedSecret {
		return apierr.ErrInvalidServerSecret
	}
	return nil
}

// Start transitions a Preparing raid to Active, stamping matchId and
// refreshing the expiry to the full raid timeout.
func (s *Service) Start(serverSecret, raidID, matchID string, playerIDs []string) (*Raid, error) {
	if err := s.checkSecret(serverSecret); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raids[raidID]
	if !ok {
		return nil, apierr.ErrRaidNotFound
	}
	if r.Status != StatusPreparing {
		return nil, apierr.ErrRaidNotPreparing
	}

	r.Status = StatusActive
	r.MatchID = matchID
	r.ExpiresAt = time.Now().Add(config.RaidActiveTimeout)
	return r.Clone(), nil
}

// GetLoadout is a read-only lookup for the match server to hydrate a
// player with their locked items.
func (s *Service) GetLoadout(serverSecret, raidID, characterID string) (*Raid, error) {
	if err := s.checkSecret(serverSecret); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raids[raidID]
	if !ok {
		return nil, apierr.ErrRaidNotFound
	}
	if r.CharacterID != characterID {
		return nil, apierr.ErrNotYourRaid
	}
	return r.Clone(), nil
}

// Cancel is allowed only while Preparing: unlocks items and drops the raid.
func (s *Service) Cancel(characterID, raidID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raids[raidID]
	if !ok {
		return apierr.ErrRaidNotFound
	}
	if r.CharacterID != characterID {
		return apierr.ErrNotYourRaid
	}
	if r.Status != StatusPreparing {
		return apierr.ErrRaidNotPreparing
	}

	s.inv.UnlockRaidItems(r.CharacterID, r.ID)
	r.Status = StatusCancelled
	delete(s.characterRaids, r.CharacterID)
	return nil
}

// GetRaid returns a snapshot by id, or nil.
func (s *Service) GetRaid(raidID string) *Raid {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raids[raidID]
	if !ok {
		return nil
	}
	return r.Clone()
}

func (s *Service) cleanupOneLocked(r *Raid, reason string) {
	s.inv.UnlockRaidItems(r.CharacterID, r.ID)
	switch reason {
	case "expired":
		r.Status = StatusExpired
	default:
		r.Status = StatusCancelled
	}
	if s.characterRaids[r.CharacterID] == r.ID {
		delete(s.characterRaids, r.CharacterID)
	}
}
