package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the console gateway configuration, loaded from the environment.
type Config struct {
	Addr         string        `env:"IDDESK_ADDR" envDefault:":8080"`
	DirectoryURL string        `env:"IDDESK_DIRECTORY_URL" envDefault:"http://localhost:9000"`
	PGDSN        string        `env:"IDDESK_PG_DSN"`
	KVPath       string        `env:"IDDESK_KV_PATH"`

	// GraceDelay is how long a rejected-token notice stays visible before the
	// session is cleared and the client is sent back to login.
	GraceDelay time.Duration `env:"IDDESK_GRACE_DELAY" envDefault:"3s"`

	// AdminOrganization is the reserved organization that grants elevation.
	AdminOrganization string `env:"IDDESK_ADMIN_ORG" envDefault:"admin"`
	// ElevationMarker is the substring an elevated role name must contain.
	ElevationMarker string `env:"IDDESK_ELEVATION_MARKER" envDefault:"super"`

	RateBurst     int `env:"IDDESK_RATE_BURST" envDefault:"20"`
	RatePerSecond int `env:"IDDESK_RATE_PER_SECOND" envDefault:"10"`

	RequestTimeout time.Duration `env:"IDDESK_REQUEST_TIMEOUT" envDefault:"15s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.GraceDelay <= 0 {
		return Config{}, fmt.Errorf("config: grace delay must be positive, got %s", cfg.GraceDelay)
	}
	return cfg, nil
}
