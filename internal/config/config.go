// internal/config/config.go

// Package config loads service settings from the environment (and a .env file, if present).
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// MinSecretLen mirrors the token package's requirement for HS256 keys.
const MinSecretLen = 32

// Config is the full runtime configuration of lobbyd.
type Config struct {
	Addr string `env:"LOBBY_ADDR" envDefault:":8080"`
	// Peers allowed to set X-Forwarded-For / X-Real-IP, in CIDR form. Empty trusts nobody.
	TrustedProxies []netip.Prefix `env:"TRUSTED_PROXIES" envSeparator:","`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`

	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"1h"`

	PendingLobbyTTL time.Duration `env:"LOBBY_PENDING_TTL"  envDefault:"300s"`
	ActiveLobbyTTL  time.Duration `env:"LOBBY_ACTIVE_TTL"   envDefault:"7200s"`
	ClosedLobbyTTL  time.Duration `env:"LOBBY_CLOSED_TTL"   envDefault:"60s"`
	MaxPendingPerIP int           `env:"LOBBY_MAX_PER_IP"   envDefault:"5"`
	RateLimitWindow time.Duration `env:"LOBBY_RATE_WINDOW"  envDefault:"300s"`

	GameServerToken string `env:"GAME_SERVER_TOKEN,required"`
	GameServerHost  string `env:"GAME_SERVER_HOST" envDefault:"127.0.0.1"`
	GameServerPort  int    `env:"GAME_SERVER_PORT" envDefault:"8081"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLen))
	}
	if c.JWTExpiration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"LOBBY_PENDING_TTL": c.PendingLobbyTTL,
		"LOBBY_ACTIVE_TTL":  c.ActiveLobbyTTL,
		"LOBBY_CLOSED_TTL":  c.ClosedLobbyTTL,
		"LOBBY_RATE_WINDOW": c.RateLimitWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxPendingPerIP <= 0 {
		errs = append(errs, errors.New("LOBBY_MAX_PER_IP must be positive"))
	}
	if c.GameServerToken == "" {
		errs = append(errs, errors.New("GAME_SERVER_TOKEN is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
