package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/accord/internal/config"
	"github.com/danmuck/accord/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime("configgen")

	fs := pflag.NewFlagSet("configgen", pflag.ExitOnError)
	kind := fs.StringP("kind", "k", "relay", "config kind: "+strings.Join(config.Kinds, "|"))
	output := fs.StringP("output", "o", "", "output path for config template")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.StringP("input", "i", "", "config path for validation (defaults to per-kind cmd path)")
	force := fs.BoolP("force", "f", false, "overwrite existing config file")
	_ = fs.Parse(os.Args[1:])

	defaultPath, err := config.DefaultPath(*kind)
	if err != nil {
		fatal(err)
	}

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		if err := config.Validate(*kind, path); err != nil {
			fatal(err)
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		fatal(err)
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote template")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
	os.Exit(1)
}
