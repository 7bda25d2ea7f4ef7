package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	DatabaseDSN string `envconfig:"DB_DSN" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	// RedisAddr enables cross-instance broadcast. Leave it unset to run a
	// single node on the in-process broker.
	RedisAddr string `envconfig:"REDIS_ADDR"`
	// ReplayLimit caps how many stored messages are replayed to a
	// reconnecting client. 0 means the full history.
	ReplayLimit int    `envconfig:"REPLAY_LIMIT" default:"0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
