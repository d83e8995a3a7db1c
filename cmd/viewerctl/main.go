package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/accord/internal/consumer"
	"github.com/danmuck/accord/internal/logging"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/viewerctl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "viewerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logging.ConfigureRuntime("viewerctl")

	cfg, err := parseArgs(args)
	if err != nil {
		return err
	}
	svc, err := consumer.NewServiceWithConfig(cfg)
	if err != nil {
		return err
	}
	log.Info().
		Str("listen", cfg.ListenAddr).
		Str("admin", cfg.AdminListenAddr).
		Msg("viewerctl starting")
	return svc.Run()
}

// parseArgs resolves defaults, then the config file, then explicit flags.
func parseArgs(args []string) (consumer.ServiceConfig, error) {
	fs := pflag.NewFlagSet("viewerctl", pflag.ContinueOnError)
	path := fs.StringP("config", "c", defaultConfigPath, "path to viewer config TOML")
	listen := fs.String("listen", "", "relay listen address")
	admin := fs.String("admin", "", "HTTP listen address for /latest")
	layout := fs.String("layout", "", "frame layout: v1|compact")
	origins := fs.StringSlice("cors-origin", nil, "allowed browser origin (repeatable)")
	if err := fs.Parse(args); err != nil {
		return consumer.ServiceConfig{}, err
	}

	cfg := consumer.DefaultServiceConfig()
	if _, err := os.Stat(*path); err == nil {
		loaded, err := loadServiceConfig(*path)
		if err != nil {
			return consumer.ServiceConfig{}, err
		}
		cfg = loaded
	} else if fs.Changed("config") {
		return consumer.ServiceConfig{}, fmt.Errorf("config %s: %w", *path, err)
	}

	if fs.Changed("listen") {
		cfg.ListenAddr = *listen
	}
	if fs.Changed("admin") {
		cfg.AdminListenAddr = *admin
	}
	if fs.Changed("layout") {
		l, err := frame.ParseLayout(*layout)
		if err != nil {
			return consumer.ServiceConfig{}, err
		}
		cfg.Layout = l
	}
	if fs.Changed("cors-origin") {
		cfg.CorsOrigins = *origins
	}
	return cfg, nil
}
