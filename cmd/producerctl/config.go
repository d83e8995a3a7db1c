package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/accord/internal/config"
	"github.com/danmuck/accord/internal/producer"
	"github.com/danmuck/accord/internal/protocol/frame"
)

// producerctl loader for TOML config with default overlay.
func loadServiceConfig(path string) (producer.ServiceConfig, error) {
	cfg := producer.DefaultServiceConfig()

	var raw config.ProducerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return producer.ServiceConfig{}, fmt.Errorf("load producer config: %w", err)
	}

	if meta.IsDefined("relay_addr") {
		cfg.RelayAddr = strings.TrimSpace(raw.RelayAddr)
	}
	if meta.IsDefined("layout") {
		layout, err := frame.ParseLayout(raw.Layout)
		if err != nil {
			return producer.ServiceConfig{}, fmt.Errorf("load producer config: %w", err)
		}
		cfg.Layout = layout
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"emit_interval", raw.EmitInterval, &cfg.EmitInterval},
		{"tick_interval", raw.TickInterval, &cfg.TickInterval},
		{"orbit_period", raw.OrbitPeriod, &cfg.Orbit.Period},
		{"warmup", raw.WarmUp, &cfg.Orbit.WarmUp},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := config.ParseDuration(d.key, d.raw)
		if err != nil {
			return producer.ServiceConfig{}, fmt.Errorf("load producer config: %w", err)
		}
		*d.dst = v
	}
	if meta.IsDefined("orbit_radius") {
		cfg.Orbit.Radius = float32(raw.OrbitRadius)
	}
	if meta.IsDefined("origin") {
		v, err := vec3("origin", raw.Origin)
		if err != nil {
			return producer.ServiceConfig{}, fmt.Errorf("load producer config: %w", err)
		}
		cfg.Orbit.Origin = v
	}
	if meta.IsDefined("center") {
		v, err := vec3("center", raw.Center)
		if err != nil {
			return producer.ServiceConfig{}, fmt.Errorf("load producer config: %w", err)
		}
		cfg.Orbit.Center = v
	}
	cfg.Session, err = config.ApplySession(cfg.Session, raw.Session, meta.IsDefined)
	if err != nil {
		return producer.ServiceConfig{}, fmt.Errorf("load producer config: %w", err)
	}
	return cfg, nil
}

func vec3(key string, raw []float64) (producer.Vec3, error) {
	if len(raw) != 3 {
		return producer.Vec3{}, fmt.Errorf("%s must have 3 components, got %d", key, len(raw))
	}
	return producer.Vec3{X: float32(raw[0]), Y: float32(raw[1]), Z: float32(raw[2])}, nil
}
