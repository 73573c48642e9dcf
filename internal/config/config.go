package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/ember/internal/backend/vllm"
	rediscache "github.com/davidbz/ember/internal/cache/redis"
	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

// Config represents the proxy configuration.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Backend vllm.Config
	Model   domain.ModelConfig
	Cache   rediscache.Config
	Log     observability.LogConfig

	// UseMockBackend swaps the vLLM client for the in-process echo backend.
	UseMockBackend bool `env:"USE_MOCK_BACKEND" envDefault:"false"`
}

// ServerConfig contains HTTP server settings. Timeouts are in seconds; a zero
// write timeout leaves long streams unbounded.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8000"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"0"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*domain.ModelConfig
	*observability.LogConfig

	Backend *vllm.Config
	Cache   *rediscache.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Out:          dig.Out{},
		ServerConfig: &cfg.Server,
		CORSConfig:   &cfg.CORS,
		ModelConfig:  &cfg.Model,
		LogConfig:    &cfg.Log,
		Backend:      &cfg.Backend,
		Cache:        &cfg.Cache,
	}
}
