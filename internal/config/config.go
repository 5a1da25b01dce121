// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	// ListenAddr is the address for the WebSocket JSON dialect.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8432"`
	// DAIDEAddr is the TCP address for the DAIDE binary dialect. Empty
	// disables the DAIDE listener.
	DAIDEAddr string `env:"DAIDE_ADDR" envDefault:":16713"`
	// DAIDEGameID is the game hosted for DAIDE bots.
	DAIDEGameID string `env:"DAIDE_GAME_ID" envDefault:"daide"`
	// DataDir holds users.json and games/<id>.json snapshots.
	DataDir string `env:"DATA_DIR" envDefault:"data"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Default phase deadlines for newly created games. Zero disables the
	// deadline for that phase type.
	MovementDeadline   time.Duration `env:"MOVEMENT_DEADLINE" envDefault:"24h"`
	RetreatDeadline    time.Duration `env:"RETREAT_DEADLINE" envDefault:"12h"`
	AdjustmentDeadline time.Duration `env:"ADJUSTMENT_DEADLINE" envDefault:"12h"`

	// SnapshotInterval is the period of the housekeeping snapshot flush.
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"5m"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
