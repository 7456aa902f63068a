// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings, parsed from the environment. Main loads
// a .env file first (godotenv autoload), so both styles work.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// GracePeriod is how long a player may be without a live connection
	// before being marked disconnected.
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"8s"`

	// MinPlayers is the active-player floor below which a running game ends.
	MinPlayers int `env:"MIN_PLAYERS" envDefault:"3"`

	DeckCatalogURL   string        `env:"DECK_CATALOG_URL" envDefault:"https://decks.rereadgames.com/api"`
	DeckFetchTimeout time.Duration `env:"DECK_FETCH_TIMEOUT" envDefault:"5s"`

	// RedisURL enables the event journal when set; empty disables it.
	RedisURL string `env:"REDIS_URL"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
