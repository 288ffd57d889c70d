package config

import (
	"os"

	"github.com/joho/godotenv"
)

// ServerConfig carries the stub server's own settings, loaded independently
// of the gateway's internal/config (this binary simulates an external
// channel backend, not GhostBridge itself).
type ServerConfig struct {
	Port string
}

var AppConfig ServerConfig

// Load reads cmd/backendstub/.env if present and falls back to BACKEND_PORT,
// defaulting to 9101.
func Load() {
	_ = godotenv.Load("cmd/backendstub/.env")
	port := os.Getenv("BACKEND_PORT")
	if port == "" {
		port = "9101"
	}
	AppConfig = ServerConfig{Port: port}
}
