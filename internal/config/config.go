// Package config loads server settings from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the server needs at boot.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Game struct {
		TurnSeconds        int  `yaml:"turn_seconds"`
		GraceSeconds       int  `yaml:"grace_seconds"`
		VoteTimeoutSeconds int  `yaml:"vote_timeout_seconds"`
		DebugHand          bool `yaml:"debug_hand"`
	} `yaml:"game"`

	Store struct {
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads the YAML file at path (missing file is fine, defaults
// apply) and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file; env and defaults carry it.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Game.TurnSeconds = getEnvAsInt("TURN_SECONDS", cfg.Game.TurnSeconds)
	cfg.Game.GraceSeconds = getEnvAsInt("GRACE_SECONDS", cfg.Game.GraceSeconds)
	cfg.Game.VoteTimeoutSeconds = getEnvAsInt("VOTE_TIMEOUT_SECONDS", cfg.Game.VoteTimeoutSeconds)
	if v := os.Getenv("DEBUG_HAND"); v != "" {
		cfg.Game.DebugHand = v == "1" || v == "true"
	}
	cfg.Store.PostgresDSN = getEnv("POSTGRES_DSN", cfg.Store.PostgresDSN)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if cfg.Game.TurnSeconds <= 0 {
		return nil, fmt.Errorf("config: turn_seconds must be positive")
	}
	if cfg.Game.GraceSeconds <= 0 {
		return nil, fmt.Errorf("config: grace_seconds must be positive")
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Game.TurnSeconds = 60
	cfg.Game.GraceSeconds = 180
	cfg.Game.VoteTimeoutSeconds = 30
	cfg.NATS.SubjectPrefix = "game.events"
	cfg.Log.Level = "info"
	return cfg
}

// TurnDuration returns the configured turn length.
func (c *Config) TurnDuration() time.Duration {
	return time.Duration(c.Game.TurnSeconds) * time.Second
}

// GraceDuration returns the configured grace-period length.
func (c *Config) GraceDuration() time.Duration {
	return time.Duration(c.Game.GraceSeconds) * time.Second
}

// VoteTimeout returns the configured continuation-vote timeout.
func (c *Config) VoteTimeout() time.Duration {
	return time.Duration(c.Game.VoteTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
