// Package friends implements C4: player presence, the friend graph,
// pending friend requests, and game invites. Grounded on the peer-presence
// record pattern in klingdex's internal/storage/peers.go, generalized from
// network peers to player presence and given a symmetric friend-edge set
// and a sender-keyed invite map that spec §4.4 additionally requires.
package friends

import (
	"sync"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
)

// Presence is a player's online status.
type Presence struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	CurrentGame string    `json:"currentGame,omitempty"` // optional, empty when not in a match
	LastSeen    time.Time `json:"lastSeen"`
}

// Request is a pending friend request.
type Request struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Invite is a pending game invite, culled 5 minutes after creation.
type Invite struct {
	From       string            `json:"from"`
	ServerInfo map[string]string `json:"serverInfo,omitempty"`
	At         time.Time         `json:"at"`
}

// FriendView is the shape returned for an accepted/listed friend.
type FriendView struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
	CurrentGame string `json:"currentGame,omitempty"`
}

// Directory is the authoritative friend-graph store. Mutations touching a
// given recipient's pending lists or a symmetric edge are serialized by a
// single mutex — the critical sections are short in-memory map edits.
type Directory struct {
	mu sync.Mutex

	presence map[string]*Presence
	edges    map[string]map[string]bool  // playerID -> set of friend IDs, kept symmetric
	pending  map[string]map[string]*Request // to -> from -> Request
	invites  map[string]map[string]*Invite // to -> from -> Invite (newest wins)
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{
		presence: make(map[string]*Presence),
		edges:    make(map[string]map[string]bool),
		pending:  make(map[string]map[string]*Request),
		invites:  make(map[string]map[string]*Invite),
	}
}

func (d *Directory) ensurePresenceLocked(playerID string) *Presence {
	p, ok := d.presence[playerID]
	if !ok {
		p = &Presence{PlayerID: playerID, LastSeen: time.Now()}
		d.presence[playerID] = p
	}
	return p
}

// UpdatePresence upserts a presence record.
func (d *Directory) UpdatePresence(playerID string, online bool, currentGame string) *Presence {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.ensurePresenceLocked(playerID)
	p.Online = online
	p.CurrentGame = currentGame
	p.LastSeen = time.Now()
	cp := *p
	return &cp
}

// SendRequest creates a pending friend request from->to. Idempotent:
// re-sending does not duplicate. Rejected if self, already friends, or a
// request already exists either direction.
func (d *Directory) SendRequest(from, to string) error {
	if from == to {
		return apierr.ErrInvalidRequest
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensurePresenceLocked(from)
	d.ensurePresenceLocked(to)

	if d.edges[from][to] {
		return apierr.ErrInvalidRequest
	}
	if d.pending[to] != nil && d.pending[to][from] != nil {
		return nil // idempotent re-send
	}
	if d.pending[from] != nil && d.pending[from][to] != nil {
		return apierr.ErrInvalidRequest // reverse request already pending
	}

	if d.pending[to] == nil {
		d.pending[to] = make(map[string]*Request)
	}
	d.pending[to][from] = &Request{From: from, To: to, At: time.Now()}
	return nil
}

// Accept removes the pending request and adds a symmetric edge, returning
// a friend view of `from`.
func (d *Directory) Accept(player, from string) (*FriendView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending[player] == nil || d.pending[player][from] == nil {
		return nil, apierr.ErrInvalidRequest
	}
	delete(d.pending[player], from)

	d.addEdgeLocked(player, from)

	p := d.ensurePresenceLocked(from)
	return &FriendView{PlayerID: p.PlayerID, DisplayName: p.DisplayName, Online: p.Online, CurrentGame: p.CurrentGame}, nil
}

func (d *Directory) addEdgeLocked(a, b string) {
	if d.edges[a] == nil {
		d.edges[a] = make(map[string]bool)
	}
	if d.edges[b] == nil {
		d.edges[b] = make(map[string]bool)
	}
	d.edges[a][b] = true
	d.edges[b][a] = true
}

// Decline removes a pending request without creating an edge.
func (d *Directory) Decline(player, from string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[player] != nil {
		delete(d.pending[player], from)
	}
}

// Remove deletes a symmetric friend edge.
func (d *Directory) Remove(player, other string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.edges[player] != nil {
		delete(d.edges[player], other)
	}
	if d.edges[other] != nil {
		delete(d.edges[other], player)
	}
}

// ListFriends returns a snapshot of player's friends.
func (d *Directory) ListFriends(player string) []FriendView {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]FriendView, 0, len(d.edges[player]))
	for id := range d.edges[player] {
		p := d.presence[id]
		if p == nil {
			out = append(out, FriendView{PlayerID: id})
			continue
		}
		out = append(out, FriendView{PlayerID: p.PlayerID, DisplayName: p.DisplayName, Online: p.Online, CurrentGame: p.CurrentGame})
	}
	return out
}

// ListPending returns a snapshot of requests sent to player.
func (d *Directory) ListPending(player string) []Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Request, 0, len(d.pending[player]))
	for _, r := range d.pending[player] {
		out = append(out, *r)
	}
	return out
}

// SendInvite records a game invite from->to, replacing any prior invite
// from the same sender to the same recipient.
func (d *Directory) SendInvite(from, to string, serverInfo map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.invites[to] == nil {
		d.invites[to] = make(map[string]*Invite)
	}
	d.invites[to][from] = &Invite{From: from, ServerInfo: serverInfo, At: time.Now()}
}

// ListInvites returns player's live invites, culling anything older than
// the locked TTL first.
func (d *Directory) ListInvites(player string) []Invite {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-config.InviteTTL)
	byFrom := d.invites[player]
	out := make([]Invite, 0, len(byFrom))
	for from, inv := range byFrom {
		if inv.At.Before(cutoff) {
			delete(byFrom, from)
			continue
		}
		out = append(out, *inv)
	}
	return out
}
