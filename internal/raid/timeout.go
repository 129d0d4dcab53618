package raid

import "time"

// CleanupExpired unlocks and drops every non-terminal raid whose expiry
// has passed, with reason "expired" (spec §4.7 step 6). Intended to be
// driven by the same periodic tick as the orchestrator.
func (s *Service) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for _, r := range s.raids {
		if r.Status.IsTerminal() {
			continue
		}
		if now.Before(r.ExpiresAt) {
			continue
		}
		s.cleanupOneLocked(r, "expired")
		n++
	}
	return n
}
