// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/jason-s-yu/lobbyd/internal/orchestrator"
	"github.com/sirupsen/logrus"
)

// LobbyService is the set of lifecycle operations the HTTP layer exposes.
type LobbyService interface {
	CreateLobby(ctx context.Context, req orchestrator.CreateRequest) (*orchestrator.CreateResult, error)
	JoinLobby(ctx context.Context, lobbyID int64, playerName string) (*orchestrator.JoinResult, error)
	ConfirmLobby(ctx context.Context, lobbyID, playerID int64) (*orchestrator.LobbyConfig, error)
	CloseLobby(ctx context.Context, lobbyID int64) error
	ValidateToken(ctx context.Context, token string) (*orchestrator.AuthResult, error)
	GetLobby(ctx context.Context, lobbyID int64) (*orchestrator.LobbyView, error)
	DeleteLobby(ctx context.Context, lobbyID int64) error
}

// APIServer holds what every handler needs: the lobby service, the shared
// game-server secret and a logger. Forwarding headers are honored only when
// the socket peer falls inside TrustedProxies.
type APIServer struct {
	Lobbies        LobbyService
	ServerToken    string
	Logger         logrus.FieldLogger
	TrustedProxies []netip.Prefix
}

func NewAPIServer(lobbies LobbyService, serverToken string, logger logrus.FieldLogger) *APIServer {
	return &APIServer{Lobbies: lobbies, ServerToken: serverToken, Logger: logger}
}

// Routes builds the router. Player-facing routes live under /lobby, game-server
// routes under /game-server and require the shared bearer token.
func (s *APIServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(s.Logger))

	r.Get("/healthz", Healthz)

	r.Route("/lobby", func(r chi.Router) {
		r.Post("/new-lobby", CreateLobbyHandler(s))
		r.Post("/join-lobby", JoinLobbyHandler(s))

		r.Group(func(r chi.Router) {
			r.Use(RequireServerToken(s.ServerToken))
			r.Get("/{lobbyID}", GetLobbyHandler(s))
			r.Delete("/{lobbyID}", DeleteLobbyHandler(s))
		})
	})

	r.Route("/game-server", func(r chi.Router) {
		r.Use(RequireServerToken(s.ServerToken))
		r.Post("/auth", AuthHandler(s))
		r.Post("/confirm-lobby", ConfirmLobbyHandler(s))
		r.Post("/close-lobby", CloseLobbyHandler(s))
	})

	return r
}

// Healthz always answers 200.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
