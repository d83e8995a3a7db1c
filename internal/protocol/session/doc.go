// Package session owns the resilient point-to-point transport used on every
// telemetry link.
//
// Ownership boundary:
// - Channel: zero-or-one live outbound connection to a fixed address
// - background reconnect loop with backoff
// - best-effort, non-blocking send with drop accounting
//
// A Channel never queues frames. A frame sent while no connection is installed,
// or while the socket cannot accept it immediately, is dropped and counted.
package session
