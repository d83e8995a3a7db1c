package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/pelletier/go-toml/v2"
)

// SessionFile is the [session] table shared by the producer and relay.
type SessionFile struct {
	ConnectTimeout      string  `toml:"connect_timeout"`
	WriteBudget         string  `toml:"write_budget"`
	ReconnectInterval   string  `toml:"reconnect_interval"`
	ReconnectMax        string  `toml:"reconnect_max"`
	ReconnectMultiplier float64 `toml:"reconnect_multiplier"`
	ReconnectJitter     bool    `toml:"reconnect_jitter"`
}

type ProducerFile struct {
	RelayAddr    string      `toml:"relay_addr"`
	EmitInterval string      `toml:"emit_interval"`
	TickInterval string      `toml:"tick_interval"`
	Layout       string      `toml:"layout"`
	OrbitRadius  float64     `toml:"orbit_radius"`
	OrbitPeriod  string      `toml:"orbit_period"`
	WarmUp       string      `toml:"warmup"`
	Origin       []float64   `toml:"origin"`
	Center       []float64   `toml:"center"`
	Session      SessionFile `toml:"session"`
}

type RelayFile struct {
	ListenAddr      string      `toml:"listen_addr"`
	DownstreamAddr  string      `toml:"downstream_addr"`
	AdminListenAddr string      `toml:"admin_listen_addr"`
	Layout          string      `toml:"layout"`
	IdleTimeout     string      `toml:"idle_timeout"`
	Session         SessionFile `toml:"session"`
}

type ViewerFile struct {
	ListenAddr      string   `toml:"listen_addr"`
	AdminListenAddr string   `toml:"admin_listen_addr"`
	Layout          string   `toml:"layout"`
	CorsOrigins     []string `toml:"cors_origins"`
}

func LoadProducerConfig(path string) (ProducerFile, error) {
	var cfg ProducerFile
	if err := loadStrict(path, &cfg); err != nil {
		return ProducerFile{}, err
	}
	if err := ValidateProducerConfig(cfg); err != nil {
		return ProducerFile{}, fmt.Errorf("producer config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func LoadRelayConfig(path string) (RelayFile, error) {
	var cfg RelayFile
	if err := loadStrict(path, &cfg); err != nil {
		return RelayFile{}, err
	}
	if err := ValidateRelayConfig(cfg); err != nil {
		return RelayFile{}, fmt.Errorf("relay config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func LoadViewerConfig(path string) (ViewerFile, error) {
	var cfg ViewerFile
	if err := loadStrict(path, &cfg); err != nil {
		return ViewerFile{}, err
	}
	if err := ValidateViewerConfig(cfg); err != nil {
		return ViewerFile{}, fmt.Errorf("viewer config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// loadStrict rejects keys that no field maps to, so a typo in a config file
// fails validation instead of silently keeping a default.
func loadStrict(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config has unknown keys (%s):\n%s", path, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateProducerConfig(cfg ProducerFile) error {
	if strings.TrimSpace(cfg.RelayAddr) == "" {
		return fmt.Errorf("relay_addr is required")
	}
	if err := validateLayout(cfg.Layout); err != nil {
		return err
	}
	for key, raw := range map[string]string{
		"emit_interval": cfg.EmitInterval,
		"tick_interval": cfg.TickInterval,
		"orbit_period":  cfg.OrbitPeriod,
		"warmup":        cfg.WarmUp,
	} {
		if _, err := ParseDuration(key, raw); err != nil {
			return err
		}
	}
	if cfg.OrbitRadius < 0 {
		return fmt.Errorf("orbit_radius must not be negative")
	}
	if len(cfg.Origin) != 0 && len(cfg.Origin) != 3 {
		return fmt.Errorf("origin must have 3 components")
	}
	if len(cfg.Center) != 0 && len(cfg.Center) != 3 {
		return fmt.Errorf("center must have 3 components")
	}
	return ValidateSessionConfig(cfg.Session)
}

func ValidateRelayConfig(cfg RelayFile) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if strings.TrimSpace(cfg.DownstreamAddr) == "" {
		return fmt.Errorf("downstream_addr is required")
	}
	if strings.TrimSpace(cfg.ListenAddr) == strings.TrimSpace(cfg.DownstreamAddr) {
		return fmt.Errorf("listen_addr and downstream_addr must differ")
	}
	if err := validateLayout(cfg.Layout); err != nil {
		return err
	}
	if _, err := ParseDuration("idle_timeout", cfg.IdleTimeout); err != nil {
		return err
	}
	return ValidateSessionConfig(cfg.Session)
}

func ValidateViewerConfig(cfg ViewerFile) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if strings.TrimSpace(cfg.AdminListenAddr) != "" &&
		strings.TrimSpace(cfg.AdminListenAddr) == strings.TrimSpace(cfg.ListenAddr) {
		return fmt.Errorf("admin_listen_addr and listen_addr must differ")
	}
	for i, origin := range cfg.CorsOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("cors_origins[%d] is empty", i)
		}
	}
	return validateLayout(cfg.Layout)
}

func ValidateSessionConfig(cfg SessionFile) error {
	for key, raw := range map[string]string{
		"session.connect_timeout":    cfg.ConnectTimeout,
		"session.write_budget":       cfg.WriteBudget,
		"session.reconnect_interval": cfg.ReconnectInterval,
		"session.reconnect_max":      cfg.ReconnectMax,
	} {
		if _, err := ParseDuration(key, raw); err != nil {
			return err
		}
	}
	if cfg.ReconnectMultiplier != 0 && cfg.ReconnectMultiplier < 1 {
		return fmt.Errorf("session.reconnect_multiplier must be >= 1")
	}
	return nil
}

// ParseDuration parses a configured duration string. Empty means unset and
// returns zero; negative durations are rejected.
func ParseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func validateLayout(name string) error {
	_, err := frame.ParseLayout(name)
	return err
}
