// Package protocol owns the telemetry wire contract.
//
// Ownership boundary:
// - frame layout primitives (header, versioned payload layouts)
// - resilient session transport (reconnect, best-effort send)
package protocol
