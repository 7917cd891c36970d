// Package config loads runtime settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	MinRounds = 1
	MaxRounds = 99
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Username         string        `env:"USERNAME" envDefault:"player"`
	TotalRounds      int           `env:"TOTAL_ROUNDS" envDefault:"3"`
	ServerPort       int           `env:"SERVER_PORT" envDefault:"51515"`
	BroadcastPort    int           `env:"BROADCAST_PORT" envDefault:"12121"`
	LocalAddress     string        `env:"LOCAL_ADDR"`
	BroadcastAddress string        `env:"BROADCAST_ADDR"`
	DiscoveryTimeout time.Duration `env:"DISCOVERY_TIMEOUT" envDefault:"5s"`
	ConnectTimeout   time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	CloseGrace       time.Duration `env:"CLOSE_GRACE" envDefault:"3s"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	Dev              bool          `env:"DEV"`
}

// Load reads the given .env files (missing files are skipped), then parses
// RPSLAN_* variables. Variables already set in the process win over files.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "RPSLAN_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Username == "" {
		errs = append(errs, errors.New("username must not be empty"))
	}
	if strings.Contains(c.Username, ",") {
		errs = append(errs, errors.New("username must not contain ','"))
	}
	if c.TotalRounds < MinRounds || c.TotalRounds > MaxRounds {
		errs = append(errs, fmt.Errorf("total rounds %d outside %d..%d", c.TotalRounds, MinRounds, MaxRounds))
	}
	if !validPort(c.ServerPort) {
		errs = append(errs, fmt.Errorf("server port %d outside 1..65535", c.ServerPort))
	}
	if !validPort(c.BroadcastPort) {
		errs = append(errs, fmt.Errorf("broadcast port %d outside 1..65535", c.BroadcastPort))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// DesiredTotalRounds satisfies session.Settings.
func (c Config) DesiredTotalRounds() int { return c.TotalRounds }
