package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/accord/internal/config"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/danmuck/accord/internal/relay"
)

// relayctl loader for TOML config with default overlay.
func loadServiceConfig(path string) (relay.ServiceConfig, error) {
	cfg := relay.DefaultServiceConfig()

	var raw config.RelayFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return relay.ServiceConfig{}, fmt.Errorf("load relay config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("downstream_addr") {
		cfg.DownstreamAddr = strings.TrimSpace(raw.DownstreamAddr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("layout") {
		layout, err := frame.ParseLayout(raw.Layout)
		if err != nil {
			return relay.ServiceConfig{}, fmt.Errorf("load relay config: %w", err)
		}
		cfg.Layout = layout
	}
	if meta.IsDefined("idle_timeout") {
		d, err := config.ParseDuration("idle_timeout", raw.IdleTimeout)
		if err != nil {
			return relay.ServiceConfig{}, fmt.Errorf("load relay config: %w", err)
		}
		cfg.IdleTimeout = d
	}
	cfg.Session, err = config.ApplySession(cfg.Session, raw.Session, meta.IsDefined)
	if err != nil {
		return relay.ServiceConfig{}, fmt.Errorf("load relay config: %w", err)
	}
	return cfg, nil
}
