// internal/player/directory.go

// Package player stores player records in Redis, indexed by owning lobby.
package player

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

// ErrNotFound is returned for unknown or expired players.
var ErrNotFound = errors.New("player not found")

// Store is the subset of cache.Store the directory uses.
type Store interface {
	PutHash(ctx context.Context, key string, values any, ttl time.Duration) error
	ScanHash(ctx context.Context, key string, dst any) error
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Directory creates and looks up players.
type Directory struct {
	store Store
	seq   *sequence.Allocator
}

func NewDirectory(store Store, seq *sequence.Allocator) *Directory {
	return &Directory{store: store, seq: seq}
}

func key(id int64) string { return "player:" + strconv.FormatInt(id, 10) }

func indexKey(lobbyID int64) string { return "player:lobbyId:" + strconv.FormatInt(lobbyID, 10) }

// Create allocates a player id and stores the player bound to lobbyID.
func (d *Directory) Create(ctx context.Context, name string, lobbyID int64, ttl time.Duration) (*models.Player, error) {
	id, err := d.seq.Next(ctx, sequence.PlayerCounter)
	if err != nil {
		return nil, fmt.Errorf("allocate player id: %w", err)
	}
	p := &models.Player{ID: id, Name: name, LobbyID: lobbyID}

	if err := d.store.PutHash(ctx, key(id), p, ttl); err != nil {
		return nil, fmt.Errorf("save player %d: %w", id, err)
	}
	if err := d.store.AddToSet(ctx, indexKey(lobbyID), strconv.FormatInt(id, 10), ttl); err != nil {
		return nil, fmt.Errorf("index player %d: %w", id, err)
	}
	return p, nil
}

// Get loads a player by id.
func (d *Directory) Get(ctx context.Context, id int64) (*models.Player, error) {
	p := &models.Player{}
	err := d.store.ScanHash(ctx, key(id), p)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load player %d: %w", id, err)
	}
	p.ID = id
	return p, nil
}

// ListByLobby resolves the lobby's index. Players that already expired are skipped.
func (d *Directory) ListByLobby(ctx context.Context, lobbyID int64) ([]*models.Player, error) {
	ids, err := d.memberIDs(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	players := make([]*models.Player, 0, len(ids))
	for _, id := range ids {
		p, err := d.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}

// Touch re-arms the TTL of every player in the lobby and of the index itself.
func (d *Directory) Touch(ctx context.Context, lobbyID int64, ttl time.Duration) error {
	ids, err := d.memberIDs(ctx, lobbyID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := d.store.Expire(ctx, key(id), ttl); err != nil {
			return err
		}
	}
	return d.store.Expire(ctx, indexKey(lobbyID), ttl)
}

// DeleteByLobby removes every player of the lobby and the index.
func (d *Directory) DeleteByLobby(ctx context.Context, lobbyID int64) error {
	ids, err := d.memberIDs(ctx, lobbyID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, key(id))
	}
	keys = append(keys, indexKey(lobbyID))
	return d.store.Delete(ctx, keys...)
}

func (d *Directory) memberIDs(ctx context.Context, lobbyID int64) ([]int64, error) {
	members, err := d.store.SetMembers(ctx, indexKey(lobbyID))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
