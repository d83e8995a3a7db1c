package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/accord/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("session: target address required")
	ErrNameRequired    = errors.New("session: channel name required")
)

// State is the connection state of a Channel.
type State int

const (
	StateAbsent State = iota
	StateEstablished
)

func (s State) String() string {
	if s == StateEstablished {
		return "established"
	}
	return "absent"
}

// SendResult reports what happened to one frame handed to Send.
type SendResult int

const (
	Sent SendResult = iota
	DroppedAbsent
	DroppedWouldBlock
	DroppedError
)

func (r SendResult) String() string {
	switch r {
	case Sent:
		return "sent"
	case DroppedAbsent:
		return "dropped_absent"
	case DroppedWouldBlock:
		return "dropped_would_block"
	case DroppedError:
		return "dropped_error"
	default:
		return "unknown"
	}
}

// ChannelStats is a point-in-time copy of a Channel's counters.
type ChannelStats struct {
	Sent              uint64 `json:"sent"`
	DroppedAbsent     uint64 `json:"dropped_absent"`
	DroppedWouldBlock uint64 `json:"dropped_would_block"`
	DroppedError      uint64 `json:"dropped_error"`
	Connects          uint64 `json:"connects"`
	Disconnects       uint64 `json:"disconnects"`
}

// Dropped is the total of every drop reason.
func (s ChannelStats) Dropped() uint64 {
	return s.DroppedAbsent + s.DroppedWouldBlock + s.DroppedError
}

// link is one installed connection. mu serializes writes so concurrent
// senders never interleave bytes of different frames.
type link struct {
	id        uint64
	conn      net.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		_ = l.conn.Close()
	})
}

// Channel maintains zero-or-one outbound connection to a fixed address.
// The installed link is swapped only through compare-and-swap: a link is
// installed over nil and cleared only by whoever holds that exact link.
type Channel struct {
	name string
	addr string
	cfg  Config
	rng  *rand.Rand

	cur    atomic.Pointer[link]
	nextID atomic.Uint64

	sent              atomic.Uint64
	droppedAbsent     atomic.Uint64
	droppedWouldBlock atomic.Uint64
	droppedError      atomic.Uint64
	connects          atomic.Uint64
	disconnects       atomic.Uint64
}

func NewChannel(name, addr string, cfg Config) (*Channel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	observability.RegisterMetrics()
	return &Channel{
		name: strings.TrimSpace(name),
		addr: strings.TrimSpace(addr),
		cfg:  cfg.WithDefaults(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Addr() string {
	return c.addr
}

func (c *Channel) State() State {
	if c.cur.Load() == nil {
		return StateAbsent
	}
	return StateEstablished
}

func (c *Channel) Connected() bool {
	return c.State() == StateEstablished
}

func (c *Channel) Stats() ChannelStats {
	return ChannelStats{
		Sent:              c.sent.Load(),
		DroppedAbsent:     c.droppedAbsent.Load(),
		DroppedWouldBlock: c.droppedWouldBlock.Load(),
		DroppedError:      c.droppedError.Load(),
		Connects:          c.connects.Load(),
		Disconnects:       c.disconnects.Load(),
	}
}

// Install configures conn for low-latency delivery and installs it if no
// connection is present. It returns false, leaving conn untouched, when a
// connection is already installed.
func (c *Channel) Install(conn net.Conn) bool {
	if conn == nil || c.cur.Load() != nil {
		return false
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	l := &link{id: c.nextID.Add(1), conn: conn}
	if !c.cur.CompareAndSwap(nil, l) {
		return false
	}
	c.connects.Add(1)
	observability.RecordChannelConnect(c.name)
	log.Info().
		Str("channel", c.name).
		Str("addr", c.addr).
		Uint64("link", l.id).
		Msg("session.Channel.Install established")
	go c.watch(l)
	return true
}

// Send makes one write attempt of b on the installed connection. It never
// waits longer than the configured write budget and never returns an error:
// the outcome is reported as a SendResult and counted.
func (c *Channel) Send(b []byte) SendResult {
	res := c.send(b)
	switch res {
	case Sent:
		c.sent.Add(1)
	case DroppedAbsent:
		c.droppedAbsent.Add(1)
	case DroppedWouldBlock:
		c.droppedWouldBlock.Add(1)
	case DroppedError:
		c.droppedError.Add(1)
	}
	observability.RecordChannelSend(c.name, res.String())
	return res
}

func (c *Channel) send(b []byte) SendResult {
	l := c.cur.Load()
	if l == nil {
		return DroppedAbsent
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteBudget))
	n, err := l.conn.Write(b)
	if err == nil {
		return Sent
	}
	var netErr net.Error
	if n == 0 && errors.As(err, &netErr) && netErr.Timeout() {
		return DroppedWouldBlock
	}
	// A torn frame breaks alignment for every frame after it, so a partial
	// write is handled like a dead peer.
	c.teardown(l, err)
	return DroppedError
}

// Run is the background reconnect loop. It dials whenever no connection is
// installed and sleeps the backoff delay between iterations. It returns nil
// once ctx is done, after tearing down any installed connection.
func (c *Channel) Run(ctx context.Context) error {
	defer c.Close()
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.cur.Load() == nil {
			conn, err := c.dial(ctx)
			switch {
			case err != nil:
				failures++
				log.Debug().
					Str("channel", c.name).
					Str("addr", c.addr).
					Int("attempt", failures).
					Err(err).
					Msg("session.Channel.Run dial failed")
			case !c.Install(conn):
				_ = conn.Close()
				failures = 0
			default:
				failures = 0
			}
		}
		if !c.sleep(ctx, NextBackoffDelay(c.cfg.Backoff, failures, c.rng)) {
			return nil
		}
	}
}

// Close tears down the installed connection, if any. The reconnect loop, if
// still running, will search again on its next iteration.
func (c *Channel) Close() {
	if l := c.cur.Load(); l != nil {
		c.teardown(l, nil)
	}
}

func (c *Channel) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", c.addr)
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// watch drains the peer side of l; the downstream never talks back, so any
// read result other than data means the peer is gone.
func (c *Channel) watch(l *link) {
	buf := make([]byte, 256)
	for {
		if _, err := l.conn.Read(buf); err != nil {
			c.teardown(l, err)
			return
		}
	}
}

func (c *Channel) teardown(l *link, cause error) {
	if !c.cur.CompareAndSwap(l, nil) {
		l.close()
		return
	}
	l.close()
	c.disconnects.Add(1)
	observability.RecordChannelDisconnect(c.name)
	event := log.Info()
	if cause != nil {
		event = log.Warn().Err(cause)
	}
	event.
		Str("channel", c.name).
		Str("addr", c.addr).
		Uint64("link", l.id).
		Msg("session.Channel.teardown absent")
}
