// internal/lobby/lobby_store.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/sequence"
)

var (
	// ErrNotFound is returned for unknown or expired lobbies.
	ErrNotFound = errors.New("lobby not found")
	// ErrStatusChanged means another request moved the lobby on before our write landed.
	ErrStatusChanged = errors.New("lobby status changed concurrently")
)

// Backend is the subset of cache.Store the lobby store uses.
type Backend interface {
	PutHash(ctx context.Context, key string, values any, ttl time.Duration) error
	ScanHash(ctx context.Context, key string, dst any) error
	SwapHash(ctx context.Context, key, field, expected string, fields map[string]any, ttl time.Duration) error
	IncrHashField(ctx context.Context, key, field string, delta int64) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, keys ...string) error
}

// LobbyStore keeps lobbies as Redis hashes under lobby:<id>. Expiry is left to Redis;
// a lobby whose TTL elapsed simply reads as ErrNotFound.
type LobbyStore struct {
	backend Backend
	seq     *sequence.Allocator
}

// NewLobbyStore wires a LobbyStore over the given backend.
func NewLobbyStore(backend Backend, seq *sequence.Allocator) *LobbyStore {
	return &LobbyStore{backend: backend, seq: seq}
}

func key(id int64) string { return "lobby:" + strconv.FormatInt(id, 10) }

// NextID allocates a fresh lobby id.
func (s *LobbyStore) NextID(ctx context.Context) (int64, error) {
	id, err := s.seq.Next(ctx, sequence.LobbyCounter)
	if err != nil {
		return 0, fmt.Errorf("allocate lobby id: %w", err)
	}
	return id, nil
}

// AddLobby writes the full record and arms its TTL.
func (s *LobbyStore) AddLobby(ctx context.Context, l *models.Lobby, ttl time.Duration) error {
	if err := s.backend.PutHash(ctx, key(l.ID), l, ttl); err != nil {
		return fmt.Errorf("save lobby %d: %w", l.ID, err)
	}
	l.TTL = ttl
	return nil
}

// GetLobby loads a lobby together with its remaining TTL.
func (s *LobbyStore) GetLobby(ctx context.Context, id int64) (*models.Lobby, error) {
	l := &models.Lobby{}
	err := s.backend.ScanHash(ctx, key(id), l)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %d: %w", id, err)
	}
	// ScanRedis only runs for fields that are present.
	if !l.Status.Valid() {
		return nil, fmt.Errorf("lobby %d: missing status", id)
	}
	l.ID = id

	// ErrNotFound here means it expired between the two reads.
	if l.TTL, err = s.TTL(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

// TTL returns the remaining lifetime of the lobby, or ErrNotFound.
func (s *LobbyStore) TTL(ctx context.Context, id int64) (time.Duration, error) {
	ttl, err := s.backend.TTL(ctx, key(id))
	if errors.Is(err, cache.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return ttl, nil
}

// SwapStatus moves the lobby from one status to another and re-arms its TTL, atomically
// with respect to other status writers.
func (s *LobbyStore) SwapStatus(ctx context.Context, id int64, from, to models.LobbyStatus, ttl time.Duration) error {
	err := s.backend.SwapHash(ctx, key(id), "status", string(from), map[string]any{"status": string(to)}, ttl)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, cache.ErrConflict):
		return ErrStatusChanged
	case err != nil:
		return fmt.Errorf("set lobby %d status %s: %w", id, to, err)
	}
	return nil
}

// AdjustPlayerCount atomically adds delta to playerCount and returns the new count.
func (s *LobbyStore) AdjustPlayerCount(ctx context.Context, id int64, delta int64) (int, error) {
	n, err := s.backend.IncrHashField(ctx, key(id), "playerCount", delta)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust lobby %d player count: %w", id, err)
	}
	return int(n), nil
}

// DeleteLobby removes the lobby record. Missing lobbies are ignored.
func (s *LobbyStore) DeleteLobby(ctx context.Context, id int64) error {
	return s.backend.Delete(ctx, key(id))
}
