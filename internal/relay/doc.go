// Package relay republishes producer frames to a downstream viewer.
//
// The relay listens for one upstream producer at a time and dials the viewer
// through a session.Channel:
//
//	producer --> relay (listen) --> viewer (listen)
//
// Frames are forwarded byte-for-byte. A missing or slow viewer costs dropped
// frames, never a stalled upstream read. Any upstream read error ends that
// producer's session and the relay goes back to accepting.
package relay
