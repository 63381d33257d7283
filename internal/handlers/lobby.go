// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/lobbyd/internal/orchestrator"
)

type createLobbyRequest struct {
	CreatorName string `json:"creatorName"`
	MaxPlayers  int    `json:"maxPlayers"`
	PlayTime    int    `json:"playTime"`
}

type joinLobbyRequest struct {
	LobbyID    int64  `json:"lobbyId"`
	PlayerName string `json:"playerName"`
}

// CreateLobbyHandler registers a new PENDING lobby for the calling client.
// Out-of-range maxPlayers/playTime are clamped, not rejected.
func CreateLobbyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad lobby request payload"})
			return
		}

		res, err := s.Lobbies.CreateLobby(r.Context(), orchestrator.CreateRequest{
			CreatorName: req.CreatorName,
			MaxPlayers:  req.MaxPlayers,
			PlayTime:    req.PlayTime,
			ClientIP:    s.clientIP(r),
		})
		if err != nil {
			writeError(w, s.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// JoinLobbyHandler seats a new player in an active lobby.
func JoinLobbyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LobbyID <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad join request payload"})
			return
		}

		res, err := s.Lobbies.JoinLobby(r.Context(), req.LobbyID, req.PlayerName)
		if err != nil {
			writeError(w, s.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GetLobbyHandler returns the lobby and its players to the game server.
func GetLobbyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := lobbyIDParam(w, r)
		if !ok {
			return
		}
		view, err := s.Lobbies.GetLobby(r.Context(), id)
		if err != nil {
			writeError(w, s.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// DeleteLobbyHandler drops the lobby and its players right away.
func DeleteLobbyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := lobbyIDParam(w, r)
		if !ok {
			return
		}
		if err := s.Lobbies.DeleteLobby(r.Context(), id); err != nil {
			writeError(w, s.Logger, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func lobbyIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lobbyID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid lobby id"})
		return 0, false
	}
	return id, true
}
