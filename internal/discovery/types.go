package discovery

import "time"

// RegisterHostPayload is MsgRegisterHost's body.
type RegisterHostPayload struct {
	Name           string `json:"name"`
	Port           int    `json:"port"`
	MaxPlayers     int    `json:"maxPlayers"`
	CurrentPlayers int    `json:"currentPlayers"`
	GameVersion    string `json:"gameVersion"`
}

// HeartbeatPayload is MsgHeartbeat's body.
type HeartbeatPayload struct {
	SessionID      string `json:"sessionId"`
	CurrentPlayers int    `json:"currentPlayers"`
}

// SessionListEntry is one element of MsgSessionList's array.
type SessionListEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	HostIP         string `json:"hostIp"`
	HostPort       int    `json:"hostPort"`
	MaxPlayers     int    `json:"maxPlayers"`
	CurrentPlayers int    `json:"currentPlayers"`
	GameVersion    string `json:"gameVersion"`
}

// JoinInfoPayload is MsgJoinInfo's body.
type JoinInfoPayload struct {
	HostIP   string `json:"hostIp"`
	HostPort int    `json:"hostPort"`
}

// Session is one registered discoverable host.
type Session struct {
	ID             string
	Name           string
	HostIP         string
	HostPort       int
	MaxPlayers     int
	CurrentPlayers int
	GameVersion    string
	RegisteredAt   time.Time
	LastHeartbeat  time.Time
}

func (s *Session) toListEntry() SessionListEntry {
	return SessionListEntry{
		ID: s.ID, Name: s.Name, HostIP: s.HostIP, HostPort: s.HostPort,
		MaxPlayers: s.MaxPlayers, CurrentPlayers: s.CurrentPlayers, GameVersion: s.GameVersion,
	}
}
