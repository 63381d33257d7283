// internal/models/player.go
package models

// Player is a single seat in a lobby. Every join mints a new Player; there is no reconnection.
type Player struct {
	ID      int64  `json:"id"      redis:"id"`
	Name    string `json:"name"    redis:"name"`
	LobbyID int64  `json:"lobbyId" redis:"lobbyId"`
}
