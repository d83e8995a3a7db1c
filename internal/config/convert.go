package config

import "github.com/danmuck/accord/internal/protocol/session"

// DefinedFunc reports whether a dotted key path was present in the decoded
// file. It matches the signature of BurntSushi toml's MetaData.IsDefined.
type DefinedFunc func(key ...string) bool

// ApplySession overlays the keys present in file onto base.
func ApplySession(base session.Config, file SessionFile, defined DefinedFunc) (session.Config, error) {
	if defined("session", "connect_timeout") {
		d, err := ParseDuration("session.connect_timeout", file.ConnectTimeout)
		if err != nil {
			return session.Config{}, err
		}
		base.ConnectTimeout = d
	}
	if defined("session", "write_budget") {
		d, err := ParseDuration("session.write_budget", file.WriteBudget)
		if err != nil {
			return session.Config{}, err
		}
		base.WriteBudget = d
	}
	if defined("session", "reconnect_interval") {
		d, err := ParseDuration("session.reconnect_interval", file.ReconnectInterval)
		if err != nil {
			return session.Config{}, err
		}
		base.Backoff.InitialDelay = d
		if !defined("session", "reconnect_max") {
			base.Backoff.MaxDelay = d
		}
	}
	if defined("session", "reconnect_max") {
		d, err := ParseDuration("session.reconnect_max", file.ReconnectMax)
		if err != nil {
			return session.Config{}, err
		}
		base.Backoff.MaxDelay = d
	}
	if defined("session", "reconnect_multiplier") {
		base.Backoff.Multiplier = file.ReconnectMultiplier
	}
	if defined("session", "reconnect_jitter") {
		base.Backoff.Jitter = file.ReconnectJitter
	}
	return base.WithDefaults(), nil
}
