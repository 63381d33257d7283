// internal/handlers/game_server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jason-s-yu/lobbyd/internal/orchestrator"
)

type authRequest struct {
	JWT string `json:"jwt"`
}

type authResponse struct {
	Valid bool `json:"valid"`
	*orchestrator.AuthResult
}

type confirmLobbyRequest struct {
	LobbyID  int64 `json:"lobbyId"`
	PlayerID int64 `json:"playerId"`
}

// RequireServerToken rejects requests whose bearer token is not the game server's shared secret.
func RequireServerToken(serverToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearerToken(r.Header.Get("Authorization"))
			if tok == "" || !sameSecret(tok, serverToken) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthHandler validates a player token presented to the game server.
func AuthHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad auth request payload"})
			return
		}

		res, err := s.Lobbies.ValidateToken(r.Context(), req.JWT)
		if errors.Is(err, orchestrator.ErrInvalid) {
			writeJSON(w, http.StatusNotFound, authResponse{Valid: false})
			return
		}
		if err != nil {
			writeError(w, s.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, authResponse{Valid: true, AuthResult: res})
	}
}

// ConfirmLobbyHandler activates a lobby on behalf of its creator.
func ConfirmLobbyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad confirm request payload"})
			return
		}

		cfg, err := s.Lobbies.ConfirmLobby(r.Context(), req.LobbyID, req.PlayerID)
		if err != nil {
			writeError(w, s.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// CloseLobbyHandler closes the lobby given in ?lobbyId=. It answers 200 whether or not the lobby exists.
func CloseLobbyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("lobbyId"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid lobby id"})
			return
		}
		if err := s.Lobbies.CloseLobby(r.Context(), id); err != nil {
			writeError(w, s.Logger, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
