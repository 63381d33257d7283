// internal/models/lobby.go
package models

import (
	"fmt"
	"time"
)

// Bounds applied to lobby settings at creation. Out-of-range values are clamped, never rejected.
const (
	MinPlayers  = 3
	MaxPlayers  = 10
	MinPlayTime = 10  // minutes
	MaxPlayTime = 300 // minutes
)

// LobbyStatus is the lifecycle phase of a lobby.
type LobbyStatus string

const (
	LobbyPending LobbyStatus = "PENDING" // created, waiting for the creator to confirm
	LobbyActive  LobbyStatus = "ACTIVE"  // confirmed, accepting joins up to capacity
	LobbyClosed  LobbyStatus = "CLOSED"  // terminal, kept briefly before expiry
)

// Valid reports whether s is one of the known lifecycle phases.
func (s LobbyStatus) Valid() bool {
	switch s {
	case LobbyPending, LobbyActive, LobbyClosed:
		return true
	}
	return false
}

// MarshalBinary lets go-redis write the status as a hash value.
func (s LobbyStatus) MarshalBinary() ([]byte, error) {
	return []byte(s), nil
}

// ScanRedis rejects unknown statuses when a lobby hash is scanned.
func (s *LobbyStatus) ScanRedis(v string) error {
	st := LobbyStatus(v)
	if !st.Valid() {
		return fmt.Errorf("unknown lobby status %q", v)
	}
	*s = st
	return nil
}

// CanTransitionTo reports whether moving from s to next is a forward step.
// Only PENDING->ACTIVE and PENDING|ACTIVE->CLOSED are allowed.
func (s LobbyStatus) CanTransitionTo(next LobbyStatus) bool {
	switch next {
	case LobbyActive:
		return s == LobbyPending
	case LobbyClosed:
		return s == LobbyPending || s == LobbyActive
	}
	return false
}

// Lobby is a matchmaking session stored in Redis under lobby:<id>.
type Lobby struct {
	ID          int64         `json:"id"          redis:"id"`
	CreatorID   int64         `json:"creatorId"   redis:"creatorId"`
	MaxPlayers  int           `json:"maxPlayers"  redis:"maxPlayers"`
	PlayTime    int           `json:"playTime"    redis:"playTime"`
	PlayerCount int           `json:"playerCount" redis:"playerCount"`
	Status      LobbyStatus   `json:"status"      redis:"status"`
	TTL         time.Duration `json:"-"`
}

// TTLSeconds is the remaining lifetime in whole seconds, as reported over HTTP.
func (l *Lobby) TTLSeconds() int64 {
	return int64(l.TTL / time.Second)
}

// ClampMaxPlayers bounds a requested capacity to [MinPlayers, MaxPlayers].
func ClampMaxPlayers(n int) int {
	return min(max(n, MinPlayers), MaxPlayers)
}

// ClampPlayTime bounds a requested play time (minutes) to [MinPlayTime, MaxPlayTime].
func ClampPlayTime(minutes int) int {
	return min(max(minutes, MinPlayTime), MaxPlayTime)
}
