// internal/models/server.go
package models

// ServerConnection tells a client where the game server for its lobby is listening.
type ServerConnection struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}
