package exchange

import (
	"errors"
)

// ErrInvalidConfig indicates that the provided Config contains invalid values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config provides connection parameters for the Binance client.
type Config struct {
	// RestURL is the base URL of the Binance REST API.
	RestURL string

	// StreamURL is the base URL of the Binance WebSocket stream endpoint.
	StreamURL string

	// RequestsPerSecond caps REST request throughput.
	RequestsPerSecond float64
}

// validateConfig applies defaults for unset fields.
func validateConfig(cfg *Config, defaultCfg *Config) error {
	if cfg.RestURL == "" {
		cfg.RestURL = defaultCfg.RestURL
	}

	if cfg.StreamURL == "" {
		cfg.StreamURL = defaultCfg.StreamURL
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultCfg.RequestsPerSecond
	}

	return nil
}
