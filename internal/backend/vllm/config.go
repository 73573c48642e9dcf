package vllm

import "time"

// Config contains backend connection settings.
//   - RequestTimeout bounds a whole buffered call.
//   - ConnectTimeout bounds only dialing, so an unreachable backend fails fast.
//   - ProbeTimeout bounds the liveness probe independently of RequestTimeout.
//   - KeepAliveInterval is the idle gap after which a stream emits a keep-alive.
type Config struct {
	BaseURL           string        `env:"VLLM_BASE_URL"       envDefault:"http://localhost:8080"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"     envDefault:"300s"`
	ConnectTimeout    time.Duration `env:"CONNECT_TIMEOUT"     envDefault:"10s"`
	ProbeTimeout      time.Duration `env:"PROBE_TIMEOUT"       envDefault:"5s"`
	KeepAliveInterval time.Duration `env:"KEEP_ALIVE_INTERVAL" envDefault:"15s"`
}

const (
	defaultRequestTimeout    = 300 * time.Second
	defaultConnectTimeout    = 10 * time.Second
	defaultProbeTimeout      = 5 * time.Second
	defaultKeepAliveInterval = 15 * time.Second
)

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = defaultKeepAliveInterval
	}
	return c
}
