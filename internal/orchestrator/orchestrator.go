// internal/orchestrator/orchestrator.go

// Package orchestrator implements the lobby lifecycle: create, join, confirm,
// close and token validation, on top of Redis-backed directories.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/jason-s-yu/lobbyd/internal/player"
	"github.com/sirupsen/logrus"
)

// Default lifetimes for each lifecycle phase.
const (
	DefaultPendingTTL = 300 * time.Second
	DefaultActiveTTL  = 7200 * time.Second
	DefaultClosedTTL  = 60 * time.Second
)

// Statuses only move forward, so a status write can lose a race at most
// twice before the lobby is terminal.
const maxStatusAttempts = 3

// Admitter decides whether a client may create another lobby.
type Admitter interface {
	Admit(ctx context.Context, clientKey string) (bool, error)
}

// TokenService issues and verifies player tokens.
type TokenService interface {
	Issue(playerID int64) (string, error)
	Verify(token string) (int64, error)
}

// Settings carries the lifecycle windows and the game-server address handed to clients.
type Settings struct {
	PendingTTL time.Duration
	ActiveTTL  time.Duration
	ClosedTTL  time.Duration
	Server     models.ServerConnection
}

func (s Settings) withDefaults() Settings {
	if s.PendingTTL <= 0 {
		s.PendingTTL = DefaultPendingTTL
	}
	if s.ActiveTTL <= 0 {
		s.ActiveTTL = DefaultActiveTTL
	}
	if s.ClosedTTL <= 0 {
		s.ClosedTTL = DefaultClosedTTL
	}
	return s
}

// CreateRequest is the input of CreateLobby.
type CreateRequest struct {
	CreatorName string
	MaxPlayers  int
	PlayTime    int
	ClientIP    string
}

// CreateResult is what the creator receives.
type CreateResult struct {
	Token    string                  `json:"token"`
	LobbyID  int64                   `json:"lobbyId"`
	PlayerID int64                   `json:"playerId"`
	Server   models.ServerConnection `json:"server"`
}

// JoinResult is what a joining player receives.
type JoinResult struct {
	Token    string                  `json:"token"`
	PlayerID int64                   `json:"playerId"`
	LobbyID  int64                   `json:"lobbyId"`
	Server   models.ServerConnection `json:"server"`
}

// LobbyConfig is returned to the game server once a lobby is confirmed.
type LobbyConfig struct {
	LobbyID    int64 `json:"lobbyId"`
	CreatorID  int64 `json:"creatorId"`
	PlayTime   int   `json:"playTime"`
	MaxPlayers int   `json:"maxPlayers"`
}

// AuthResult identifies the holder of a valid token.
type AuthResult struct {
	PlayerID   int64  `json:"playerId"`
	LobbyID    int64  `json:"lobbyId"`
	PlayerName string `json:"playerName"`
}

// LobbyView is a lobby together with its current players.
type LobbyView struct {
	*models.Lobby
	ExpiresIn int64            `json:"ttl"`
	Players   []*models.Player `json:"players"`
}

// Orchestrator is stateless and safe for concurrent use; all shared state lives in the store.
type Orchestrator struct {
	limiter Admitter
	tokens  TokenService
	lobbies *lobby.LobbyStore
	players *player.Directory
	cfg     Settings
	log     logrus.FieldLogger
}

func New(limiter Admitter, tokens TokenService, lobbies *lobby.LobbyStore, players *player.Directory, cfg Settings, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		limiter: limiter,
		tokens:  tokens,
		lobbies: lobbies,
		players: players,
		cfg:     cfg.withDefaults(),
		log:     log,
	}
}

// reject logs the private reason of an outcome and hands the outcome back.
func (o *Orchestrator) reject(op string, fields logrus.Fields, public error, reason string) error {
	err := fail(public, reason)
	o.log.WithFields(fields).WithFields(logrus.Fields{
		"op":      op,
		"outcome": public.Error(),
		"reason":  reason,
	}).Info("lobby request rejected")
	return err
}

// CreateLobby registers a PENDING lobby owned by a freshly minted creator player.
// Rate-limit charges and allocated ids are not rolled back if a later step fails.
func (o *Orchestrator) CreateLobby(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ok, err := o.limiter.Admit(ctx, req.ClientIP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, o.reject("create", logrus.Fields{"client": req.ClientIP}, ErrRateLimited, "pending lobby ceiling reached")
	}

	lobbyID, err := o.lobbies.NextID(ctx)
	if err != nil {
		return nil, err
	}
	creator, err := o.players.Create(ctx, req.CreatorName, lobbyID, o.cfg.PendingTTL)
	if err != nil {
		return nil, err
	}

	l := &models.Lobby{
		ID:          lobbyID,
		CreatorID:   creator.ID,
		MaxPlayers:  models.ClampMaxPlayers(req.MaxPlayers),
		PlayTime:    models.ClampPlayTime(req.PlayTime),
		PlayerCount: 1,
		Status:      models.LobbyPending,
	}
	if err := o.lobbies.AddLobby(ctx, l, o.cfg.PendingTTL); err != nil {
		return nil, err
	}

	tok, err := o.tokens.Issue(creator.ID)
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"lobby":      l.ID,
		"creator":    creator.ID,
		"maxPlayers": l.MaxPlayers,
		"playTime":   l.PlayTime,
	}).Info("lobby created")

	return &CreateResult{Token: tok, LobbyID: l.ID, PlayerID: creator.ID, Server: o.cfg.Server}, nil
}

// JoinLobby seats a new player in an ACTIVE lobby. Capacity is claimed with an
// atomic increment that is handed back when it overshoots, so concurrent joins
// can never push playerCount past maxPlayers.
func (o *Orchestrator) JoinLobby(ctx context.Context, lobbyID int64, playerName string) (*JoinResult, error) {
	fields := logrus.Fields{"lobby": lobbyID}

	l, err := o.lobbies.GetLobby(ctx, lobbyID)
	if errors.Is(err, lobby.ErrNotFound) {
		return nil, o.reject("join", fields, ErrNotFound, "lobby does not exist or expired")
	}
	if err != nil {
		return nil, err
	}
	if l.Status != models.LobbyActive {
		return nil, o.reject("join", fields, ErrNotActive, fmt.Sprintf("lobby is %s", l.Status))
	}

	count, err := o.lobbies.AdjustPlayerCount(ctx, lobbyID, 1)
	if errors.Is(err, lobby.ErrNotFound) {
		return nil, o.reject("join", fields, ErrNotFound, "lobby expired during join")
	}
	if err != nil {
		return nil, err
	}
	if count > l.MaxPlayers {
		if _, err := o.lobbies.AdjustPlayerCount(ctx, lobbyID, -1); err != nil && !errors.Is(err, lobby.ErrNotFound) {
			return nil, err
		}
		return nil, o.reject("join", fields, ErrFull, fmt.Sprintf("capacity %d reached", l.MaxPlayers))
	}

	// The lobby may have been closed since it was read, so size the seat from
	// a fresh TTL rather than l.TTL.
	ttl, err := o.remaining(ctx, lobbyID)
	if errors.Is(err, lobby.ErrNotFound) {
		return nil, o.reject("join", fields, ErrNotFound, "lobby expired during join")
	}
	if err != nil {
		return nil, err
	}
	p, err := o.players.Create(ctx, playerName, lobbyID, ttl)
	if err != nil {
		return nil, err
	}
	// A close that ran while the player was written only re-armed the players
	// already in the index.
	if after, err := o.remaining(ctx, lobbyID); err == nil && after < ttl-time.Second {
		if err := o.players.Touch(ctx, lobbyID, after); err != nil {
			return nil, err
		}
	}
	tok, err := o.tokens.Issue(p.ID)
	if err != nil {
		return nil, err
	}

	o.log.WithFields(fields).WithFields(logrus.Fields{
		"player":      p.ID,
		"playerCount": count,
	}).Info("player joined lobby")

	return &JoinResult{Token: tok, PlayerID: p.ID, LobbyID: lobbyID, Server: o.cfg.Server}, nil
}

// remaining is the lobby's current TTL, falling back to ActiveTTL for a
// record without expiry.
func (o *Orchestrator) remaining(ctx context.Context, lobbyID int64) (time.Duration, error) {
	ttl, err := o.lobbies.TTL(ctx, lobbyID)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		ttl = o.cfg.ActiveTTL
	}
	return ttl, nil
}

// ConfirmLobby activates a PENDING lobby on behalf of its creator. A missing
// lobby, a non-creator caller and a closed lobby are indistinguishable to the caller.
func (o *Orchestrator) ConfirmLobby(ctx context.Context, lobbyID, playerID int64) (*LobbyConfig, error) {
	fields := logrus.Fields{"lobby": lobbyID, "player": playerID}

	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		l, err := o.lobbies.GetLobby(ctx, lobbyID)
		if errors.Is(err, lobby.ErrNotFound) {
			return nil, o.reject("confirm", fields, ErrNotFound, "lobby does not exist or expired")
		}
		if err != nil {
			return nil, err
		}
		if l.CreatorID != playerID {
			return nil, o.reject("confirm", fields, ErrNotFound, "caller is not the lobby creator")
		}

		switch l.Status {
		case models.LobbyActive:
			return configOf(l), nil
		case models.LobbyClosed:
			return nil, o.reject("confirm", fields, ErrNotFound, "lobby already closed")
		}

		err = o.lobbies.SwapStatus(ctx, lobbyID, models.LobbyPending, models.LobbyActive, o.cfg.ActiveTTL)
		if errors.Is(err, lobby.ErrStatusChanged) {
			continue
		}
		if errors.Is(err, lobby.ErrNotFound) {
			return nil, o.reject("confirm", fields, ErrNotFound, "lobby expired during confirm")
		}
		if err != nil {
			return nil, err
		}
		if err := o.players.Touch(ctx, lobbyID, o.cfg.ActiveTTL); err != nil {
			return nil, err
		}

		o.log.WithFields(fields).Info("lobby confirmed")
		return configOf(l), nil
	}
	return nil, fmt.Errorf("confirm lobby %d: %w", lobbyID, lobby.ErrStatusChanged)
}

// CloseLobby marks the lobby CLOSED and leaves it readable for the grace window.
// Closing a missing or already closed lobby is a no-op.
func (o *Orchestrator) CloseLobby(ctx context.Context, lobbyID int64) error {
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		l, err := o.lobbies.GetLobby(ctx, lobbyID)
		if errors.Is(err, lobby.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !l.Status.CanTransitionTo(models.LobbyClosed) {
			return nil
		}

		err = o.lobbies.SwapStatus(ctx, lobbyID, l.Status, models.LobbyClosed, o.cfg.ClosedTTL)
		if errors.Is(err, lobby.ErrStatusChanged) {
			continue
		}
		if errors.Is(err, lobby.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := o.players.Touch(ctx, lobbyID, o.cfg.ClosedTTL); err != nil {
			return err
		}

		o.log.WithFields(logrus.Fields{"lobby": lobbyID, "from": l.Status}).Info("lobby closed")
		return nil
	}
	return fmt.Errorf("close lobby %d: %w", lobbyID, lobby.ErrStatusChanged)
}

// ValidateToken authenticates a bearer token for the game server. Bad
// signatures, unknown players and vanished lobbies all read as ErrInvalid.
func (o *Orchestrator) ValidateToken(ctx context.Context, tok string) (*AuthResult, error) {
	playerID, err := o.tokens.Verify(tok)
	if err != nil {
		return nil, o.reject("auth", nil, ErrInvalid, err.Error())
	}
	fields := logrus.Fields{"player": playerID}

	p, err := o.players.Get(ctx, playerID)
	if errors.Is(err, player.ErrNotFound) {
		return nil, o.reject("auth", fields, ErrInvalid, "player not found")
	}
	if err != nil {
		return nil, err
	}

	l, err := o.lobbies.GetLobby(ctx, p.LobbyID)
	if errors.Is(err, lobby.ErrNotFound) {
		fields["lobby"] = p.LobbyID
		return nil, o.reject("auth", fields, ErrInvalid, "lobby not found")
	}
	if err != nil {
		return nil, err
	}

	return &AuthResult{PlayerID: p.ID, LobbyID: l.ID, PlayerName: p.Name}, nil
}

// GetLobby returns the lobby and the players still indexed against it.
func (o *Orchestrator) GetLobby(ctx context.Context, lobbyID int64) (*LobbyView, error) {
	l, err := o.lobbies.GetLobby(ctx, lobbyID)
	if errors.Is(err, lobby.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	players, err := o.players.ListByLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	return &LobbyView{Lobby: l, ExpiresIn: l.TTLSeconds(), Players: players}, nil
}

// DeleteLobby removes the lobby and its players immediately.
func (o *Orchestrator) DeleteLobby(ctx context.Context, lobbyID int64) error {
	if err := o.players.DeleteByLobby(ctx, lobbyID); err != nil {
		return err
	}
	if err := o.lobbies.DeleteLobby(ctx, lobbyID); err != nil {
		return err
	}
	o.log.WithField("lobby", lobbyID).Info("lobby deleted")
	return nil
}

func configOf(l *models.Lobby) *LobbyConfig {
	return &LobbyConfig{
		LobbyID:    l.ID,
		CreatorID:  l.CreatorID,
		PlayTime:   l.PlayTime,
		MaxPlayers: l.MaxPlayers,
	}
}
