package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/accord/internal/logging"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/danmuck/accord/internal/relay"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/relayctl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logging.ConfigureRuntime("relayctl")

	cfg, err := parseArgs(args)
	if err != nil {
		return err
	}
	svc, err := relay.NewServiceWithConfig(cfg)
	if err != nil {
		return err
	}
	log.Info().
		Str("listen", cfg.ListenAddr).
		Str("downstream", cfg.DownstreamAddr).
		Str("admin", cfg.AdminListenAddr).
		Msg("relayctl starting")
	return svc.Run()
}

// parseArgs resolves defaults, then the config file, then explicit flags.
func parseArgs(args []string) (relay.ServiceConfig, error) {
	fs := pflag.NewFlagSet("relayctl", pflag.ContinueOnError)
	path := fs.StringP("config", "c", defaultConfigPath, "path to relay config TOML")
	listen := fs.String("listen", "", "producer listen address")
	downstream := fs.String("downstream", "", "viewer address to dial")
	admin := fs.String("admin", "", "admin HTTP listen address")
	layout := fs.String("layout", "", "frame layout: v1|compact")
	if err := fs.Parse(args); err != nil {
		return relay.ServiceConfig{}, err
	}

	cfg := relay.DefaultServiceConfig()
	if _, err := os.Stat(*path); err == nil {
		loaded, err := loadServiceConfig(*path)
		if err != nil {
			return relay.ServiceConfig{}, err
		}
		cfg = loaded
	} else if fs.Changed("config") {
		return relay.ServiceConfig{}, fmt.Errorf("config %s: %w", *path, err)
	}

	if fs.Changed("listen") {
		cfg.ListenAddr = *listen
	}
	if fs.Changed("downstream") {
		cfg.DownstreamAddr = *downstream
	}
	if fs.Changed("admin") {
		cfg.AdminListenAddr = *admin
	}
	if fs.Changed("layout") {
		l, err := frame.ParseLayout(*layout)
		if err != nil {
			return relay.ServiceConfig{}, err
		}
		cfg.Layout = l
	}
	return cfg, nil
}
