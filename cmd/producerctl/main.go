package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/accord/internal/logging"
	"github.com/danmuck/accord/internal/producer"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/producerctl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "producerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logging.ConfigureRuntime("producerctl")

	cfg, err := parseArgs(args)
	if err != nil {
		return err
	}
	svc, err := producer.NewService(cfg, nil)
	if err != nil {
		return err
	}
	log.Info().
		Str("relay", cfg.RelayAddr).
		Dur("emit_interval", cfg.EmitInterval).
		Str("layout", cfg.Layout.String()).
		Msg("producerctl starting")
	return svc.Run()
}

// parseArgs resolves defaults, then the config file, then explicit flags.
func parseArgs(args []string) (producer.ServiceConfig, error) {
	fs := pflag.NewFlagSet("producerctl", pflag.ContinueOnError)
	path := fs.StringP("config", "c", defaultConfigPath, "path to producer config TOML")
	relayAddr := fs.String("relay", "", "relay address to dial")
	emit := fs.Duration("emit-interval", 0, "minimum spacing between emitted frames")
	layout := fs.String("layout", "", "frame layout: v1|compact")
	if err := fs.Parse(args); err != nil {
		return producer.ServiceConfig{}, err
	}

	cfg := producer.DefaultServiceConfig()
	if _, err := os.Stat(*path); err == nil {
		loaded, err := loadServiceConfig(*path)
		if err != nil {
			return producer.ServiceConfig{}, err
		}
		cfg = loaded
	} else if fs.Changed("config") {
		return producer.ServiceConfig{}, fmt.Errorf("config %s: %w", *path, err)
	}

	if fs.Changed("relay") {
		cfg.RelayAddr = *relayAddr
	}
	if fs.Changed("emit-interval") {
		cfg.EmitInterval = *emit
	}
	if fs.Changed("layout") {
		l, err := frame.ParseLayout(*layout)
		if err != nil {
			return producer.ServiceConfig{}, err
		}
		cfg.Layout = l
	}
	return cfg, nil
}
