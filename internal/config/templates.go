package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds lists the template kinds in a stable order.
var Kinds = []string{"producer", "relay", "viewer"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "producer":
		return producerTemplate, nil
	case "relay":
		return relayTemplate, nil
	case "viewer":
		return viewerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// DefaultPath is where each command looks for its config by default.
func DefaultPath(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "producer":
		return "cmd/producerctl/config.toml", nil
	case "relay":
		return "cmd/relayctl/config.toml", nil
	case "viewer":
		return "cmd/viewerctl/config.toml", nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// Validate loads path strictly as the given kind.
func Validate(kind, path string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "producer":
		_, err := LoadProducerConfig(path)
		return err
	case "relay":
		_, err := LoadRelayConfig(path)
		return err
	case "viewer":
		_, err := LoadViewerConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const producerTemplate = `relay_addr = "127.0.0.1:5555"
emit_interval = "100ms"
tick_interval = "16ms"
layout = "v1"
orbit_radius = 12.0
orbit_period = "20s"
warmup = "2s"
origin = [1024.0, 0.0, -2048.0]
center = [32.0, 4.0, 32.0]

[session]
connect_timeout = "2s"
write_budget = "2ms"
reconnect_interval = "5s"
`

const relayTemplate = `listen_addr = "127.0.0.1:5555"
downstream_addr = "127.0.0.1:5556"
admin_listen_addr = "127.0.0.1:7055"
layout = "v1"
idle_timeout = "0s"

[session]
connect_timeout = "2s"
write_budget = "2ms"
reconnect_interval = "5s"
`

const viewerTemplate = `listen_addr = "127.0.0.1:5556"
admin_listen_addr = "127.0.0.1:7056"
layout = "v1"
cors_origins = ["http://localhost:3000"]
`
