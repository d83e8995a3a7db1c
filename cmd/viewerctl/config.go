package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/accord/internal/config"
	"github.com/danmuck/accord/internal/consumer"
	"github.com/danmuck/accord/internal/protocol/frame"
)

// viewerctl loader for TOML config with default overlay.
func loadServiceConfig(path string) (consumer.ServiceConfig, error) {
	cfg := consumer.DefaultServiceConfig()

	var raw config.ViewerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return consumer.ServiceConfig{}, fmt.Errorf("load viewer config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("layout") {
		layout, err := frame.ParseLayout(raw.Layout)
		if err != nil {
			return consumer.ServiceConfig{}, fmt.Errorf("load viewer config: %w", err)
		}
		cfg.Layout = layout
	}
	if meta.IsDefined("cors_origins") {
		origins := make([]string, 0, len(raw.CorsOrigins))
		for _, origin := range raw.CorsOrigins {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.CorsOrigins = origins
	}
	return cfg, nil
}
