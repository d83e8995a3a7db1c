package session

import "time"

// BackoffConfig defines the reconnect delay schedule. Multiplier 1 with no
// jitter yields a fixed retry interval.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines channel transport defaults.
type Config struct {
	// ConnectTimeout bounds one dial attempt of the reconnect loop.
	ConnectTimeout time.Duration
	// WriteBudget is the longest Send may spend in a single write before the
	// frame is dropped as would-block.
	WriteBudget time.Duration
	Backoff     BackoffConfig
}

// DefaultConfig retries every 5s and gives each write 2ms.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 2 * time.Second,
		WriteBudget:    2 * time.Millisecond,
		Backoff: BackoffConfig{
			InitialDelay: 5 * time.Second,
			Multiplier:   1.0,
			MaxDelay:     5 * time.Second,
			Jitter:       false,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteBudget <= 0 {
		c.WriteBudget = def.WriteBudget
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = 1.0
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = c.Backoff.InitialDelay
	}
	return c
}
