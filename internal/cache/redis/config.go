package redis

import "time"

// Config contains response cache settings.
type Config struct {
	Enabled  bool          `env:"CACHE_ENABLED"        envDefault:"false"`
	Addr     string        `env:"CACHE_REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string        `env:"CACHE_REDIS_PASSWORD"`
	DB       int           `env:"CACHE_REDIS_DB"       envDefault:"0"`
	TTL      time.Duration `env:"CACHE_TTL"            envDefault:"1h"`
}
