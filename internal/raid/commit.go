package raid

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/inventory"
)

// canonicalOutcome is the canonical-JSON shape of one outcome within a
// commit signature payload — field order is fixed by struct declaration
// order, which encoding/json preserves (spec §4.7, §6.4).
type canonicalOutcome struct {
	CharacterID string `json:"characterId"`
	Status      string `json:"status"`
	LootCount   int    `json:"lootCount"`
	LostCount   int    `json:"lostCount"`
}

type canonicalPayload struct {
	RaidID   string             `json:"raidId"`
	MatchID  string             `json:"matchId"`
	Outcomes []canonicalOutcome `json:"outcomes"`
}

// ComputeSignature reproduces the signed commit envelope: lowercase-hex
// SHA-256 of canonicalJson(payload) concatenated with the shared secret.
func ComputeSignature(raidID, matchID string, outcomes []Outcome, secret string) (string, error) {
	payload := canonicalPayload{RaidID: raidID, MatchID: matchID, Outcomes: make([]canonicalOutcome, len(outcomes))}
	for i, o := range outcomes {
		payload.Outcomes[i] = canonicalOutcome{
			CharacterID: o.CharacterID,
			Status:      o.Status,
			LootCount:   len(o.ProvisionalLoot),
			LostCount:   len(o.LostIIDs),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(body)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Commit is the anti-dupe cornerstone. It must be called at most once per
// raid; the status check below is what makes a retried call idempotent
// without a separate opId.
func (s *Service) Commit(serverSecret, raidID, matchID string, outcomes []Outcome, signature string) (*Raid, error) {
	if err := s.checkSecret(serverSecret); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raids[raidID]
	if !ok {
		return nil, apierr.ErrRaidNotFound
	}
	if r.Status == StatusCommitted {
		return nil, apierr.ErrAlreadyCommitted
	}
	if r.MatchID != matchID {
		return nil, apierr.ErrInvalidRequest
	}

	expected, err := ComputeSignature(raidID, matchID, outcomes, s.sharedSecret)
	if err != nil {
		return nil, apierr.ErrInvalidSignature
	}
	if expected != signature {
		return nil, apierr.ErrInvalidSignature
	}

	for _, o := range outcomes {
		if o.CharacterID != r.CharacterID {
			continue
		}
		s.applyOutcomeLocked(r, o)
	}

	s.inv.UnlockRaidItems(r.CharacterID, r.ID)
	r.Status = StatusCommitted
	r.CommittedAt = time.Now()
	delete(s.characterRaids, r.CharacterID)

	return r.Clone(), nil
}

func (s *Service) applyOutcomeLocked(r *Raid, o Outcome) {
	switch o.Status {
	case "extracted":
		grants := make([]inventory.LootGrant, len(o.ProvisionalLoot))
		for i, l := range o.ProvisionalLoot {
			grants[i] = inventory.LootGrant{DefinitionID: l.DefinitionID, Stack: l.Stack, Insured: l.Insured}
		}
		s.inv.MintLoot(r.CharacterID, grants)
		s.inv.RemoveItems(r.CharacterID, o.LostIIDs)
		if len(o.DurabilityUpdates) > 0 {
			s.inv.UpdateDurability(r.CharacterID, o.DurabilityUpdates)
		}
		if o.GoldGained > 0 {
			s.inv.AddGold(r.CharacterID, o.GoldGained)
		}
		if o.XPGained > 0 {
			s.inv.AddXP(r.CharacterID, o.XPGained)
		}
	case "died":
		lost := s.lockedNonInsured(r, o.LostIIDs)
		s.inv.RemoveItems(r.CharacterID, lost)
	}
}

// lockedNonInsured returns the subset of lostIids whose items are not
// insured. Insured items are left in place — still owned, unlocked by
// the commit's final UnlockRaidItems step — rather than removed and
// re-granted (see DESIGN.md's Open Question decision).
func (s *Service) lockedNonInsured(r *Raid, lostIIDs []string) []string {
	out := make([]string, 0, len(lostIIDs))
	for _, iid := range lostIIDs {
		if !s.inv.IsInsured(r.CharacterID, iid) {
			out = append(out, iid)
		}
	}
	return out
}
