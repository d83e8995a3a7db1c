package session

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/accord/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 0, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt0 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayFixedByDefault(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig().Backoff
	for attempt := 1; attempt <= 10; attempt++ {
		if got := NextBackoffDelay(cfg, attempt, nil); got != 5*time.Second {
			t.Fatalf("attempt%d got=%v", attempt, got)
		}
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for attempt := 1; attempt <= 8; attempt++ {
		base := NextBackoffDelay(BackoffConfig{InitialDelay: cfg.InitialDelay, Multiplier: cfg.Multiplier, MaxDelay: cfg.MaxDelay}, attempt, nil)
		got := NextBackoffDelay(cfg, attempt, rng)
		if got < base/2 || got >= base+base/2 {
			t.Fatalf("attempt%d jitter out of range: got=%v base=%v", attempt, got, base)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Backoff: BackoffConfig{InitialDelay: 50 * time.Millisecond, Multiplier: 0.5}}.WithDefaults()
	if cfg.ConnectTimeout != DefaultConfig().ConnectTimeout || cfg.WriteBudget != DefaultConfig().WriteBudget {
		t.Fatalf("timeouts not defaulted: %+v", cfg)
	}
	if cfg.Backoff.Multiplier != 1.0 || cfg.Backoff.MaxDelay != 50*time.Millisecond {
		t.Fatalf("backoff not normalized: %+v", cfg.Backoff)
	}
}

func testConfig() Config {
	return Config{
		ConnectTimeout: time.Second,
		WriteBudget:    5 * time.Millisecond,
		Backoff:        BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 1.0},
	}
}

func newTestChannel(t *testing.T, addr string) *Channel {
	t.Helper()
	ch, err := NewChannel("test", addr, testConfig())
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch
}

// dialPair returns both ends of one loopback TCP connection.
func dialPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- conn
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-accepted
	if server == nil {
		t.Fatalf("accept failed")
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewChannelValidates(t *testing.T) {
	testlog.Start(t)
	if _, err := NewChannel("", "127.0.0.1:1", testConfig()); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if _, err := NewChannel("x", " ", testConfig()); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestSendWithoutConnectionDropsImmediately(t *testing.T) {
	testlog.Start(t)
	ch := newTestChannel(t, "127.0.0.1:1")
	start := time.Now()
	for i := 0; i < 100; i++ {
		if got := ch.Send([]byte("frame")); got != DroppedAbsent {
			t.Fatalf("send %d got=%s", i, got)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("absent sends took %v", elapsed)
	}
	stats := ch.Stats()
	if stats.DroppedAbsent != 100 || stats.Sent != 0 || stats.Dropped() != 100 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestInstallFirstWriterWins(t *testing.T) {
	testlog.Start(t)
	ch := newTestChannel(t, "127.0.0.1:1")
	first, firstPeer := dialPair(t)
	second, secondPeer := dialPair(t)

	if !ch.Install(first) {
		t.Fatalf("expected first install to succeed")
	}
	if ch.Install(second) {
		t.Fatalf("expected second install to be rejected")
	}
	if ch.Send([]byte("abc")) != Sent {
		t.Fatalf("expected send on first connection")
	}
	buf := make([]byte, 3)
	_ = firstPeer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(firstPeer, buf); err != nil || string(buf) != "abc" {
		t.Fatalf("first peer read got=%q err=%v", buf, err)
	}

	ch.Close()
	if ch.State() != StateAbsent {
		t.Fatalf("expected absent after close")
	}
	if !ch.Install(second) {
		t.Fatalf("expected install after teardown")
	}
	if ch.Send([]byte("xyz")) != Sent {
		t.Fatalf("expected send on second connection")
	}
	_ = secondPeer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(secondPeer, buf); err != nil || string(buf) != "xyz" {
		t.Fatalf("second peer read got=%q err=%v", buf, err)
	}
	ch.Close()
}

func TestConcurrentInstallOnlyOneWins(t *testing.T) {
	testlog.Start(t)
	ch := newTestChannel(t, "127.0.0.1:1")
	const n = 8
	conns := make([]net.Conn, n)
	for i := range conns {
		conns[i], _ = dialPair(t)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, conn := range conns {
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			if ch.Install(c) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(conn)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one install, got %d", wins)
	}
	if ch.Stats().Connects != 1 {
		t.Fatalf("unexpected connects: %+v", ch.Stats())
	}
	ch.Close()
}

func TestSendToVanishedPeerNeverBlocks(t *testing.T) {
	testlog.Start(t)
	ch := newTestChannel(t, "127.0.0.1:1")
	client, server := dialPair(t)
	if !ch.Install(client) {
		t.Fatalf("install failed")
	}
	_ = server.Close()

	waitFor(t, 2*time.Second, "peer close detected", func() bool {
		start := time.Now()
		res := ch.Send(make([]byte, 36))
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("send blocked for %v result=%s", elapsed, res)
		}
		return ch.State() == StateAbsent
	})
	if got := ch.Send([]byte("late")); got != DroppedAbsent {
		t.Fatalf("expected absent drop after teardown, got=%s", got)
	}
	if ch.Stats().Disconnects != 1 {
		t.Fatalf("unexpected disconnects: %+v", ch.Stats())
	}
}

func TestSendToStalledPeerDrops(t *testing.T) {
	testlog.Start(t)
	ch := newTestChannel(t, "127.0.0.1:1")
	client, _ := dialPair(t)
	if !ch.Install(client) {
		t.Fatalf("install failed")
	}

	chunk := make([]byte, 64*1024)
	var last SendResult
	for i := 0; i < 4096; i++ {
		start := time.Now()
		last = ch.Send(chunk)
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("send %d blocked for %v", i, elapsed)
		}
		if last != Sent {
			break
		}
	}
	if last != DroppedWouldBlock && last != DroppedError {
		t.Fatalf("expected stalled peer to cause a drop, last=%s", last)
	}
	ch.Close()
}

func TestRunReconnectsAfterPeerLoss(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	ch := newTestChannel(t, ln.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ch.Run(ctx)
	}()

	first := <-accepted
	waitFor(t, 2*time.Second, "first connection", ch.Connected)
	if ch.Send([]byte("one")) != Sent {
		t.Fatalf("expected send on first connection")
	}
	buf := make([]byte, 3)
	_ = first.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(first, buf); err != nil || string(buf) != "one" {
		t.Fatalf("first read got=%q err=%v", buf, err)
	}

	_ = first.Close()
	var second net.Conn
	select {
	case second = <-accepted:
	case <-time.After(3 * time.Second):
		t.Fatalf("reconnect did not happen")
	}
	defer second.Close()
	waitFor(t, 2*time.Second, "second connection", ch.Connected)
	if ch.Send([]byte("two")) != Sent {
		t.Fatalf("expected send on second connection")
	}
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(second, buf); err != nil || string(buf) != "two" {
		t.Fatalf("second read got=%q err=%v", buf, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run exit err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
	if ch.State() != StateAbsent {
		t.Fatalf("expected absent after run exit")
	}
	stats := ch.Stats()
	if stats.Connects < 2 || stats.Disconnects < 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunStopsWhileTargetUnreachable(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ch := newTestChannel(t, addr)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ch.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)
	if ch.Send([]byte("x")) != DroppedAbsent {
		t.Fatalf("expected absent drop while unreachable")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run exit err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}
