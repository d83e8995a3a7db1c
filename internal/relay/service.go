package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/accord/internal/observability"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/danmuck/accord/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrListenAddressRequired     = errors.New("relay: listen address required")
	ErrDownstreamAddressRequired = errors.New("relay: downstream address required")
)

// ServiceConfig configures the relay endpoints.
type ServiceConfig struct {
	ListenAddr      string
	DownstreamAddr  string
	AdminListenAddr string
	Layout          frame.Layout
	// IdleTimeout ends an upstream session that sends nothing for this long.
	// Zero waits indefinitely.
	IdleTimeout time.Duration
	Session     session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      "127.0.0.1:5555",
		DownstreamAddr:  "127.0.0.1:5556",
		AdminListenAddr: "",
		Layout:          frame.LayoutV1,
		Session:         session.DefaultConfig(),
	}
}

// Stats is a point-in-time view of relay activity.
type Stats struct {
	Sessions          uint64               `json:"sessions"`
	Received          uint64               `json:"received"`
	Forwarded         uint64               `json:"forwarded"`
	Dropped           uint64               `json:"dropped"`
	UpstreamConnected bool                 `json:"upstream_connected"`
	UpstreamSession   string               `json:"upstream_session,omitempty"`
	DownstreamState   string               `json:"downstream_state"`
	DownstreamChannel session.ChannelStats `json:"downstream_channel"`
	LastFrame         *frame.Frame         `json:"last_frame,omitempty"`
}

type upstream struct {
	id   string
	conn net.Conn
}

// Service is the relay runtime.
type Service struct {
	cfg        ServiceConfig
	downstream *session.Channel

	sessions  atomic.Uint64
	received  atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64

	mu        sync.Mutex
	active    *upstream
	lastFrame *frame.Frame
}

func NewService() (*Service, error) {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, ErrListenAddressRequired
	}
	if strings.TrimSpace(cfg.DownstreamAddr) == "" {
		return nil, ErrDownstreamAddressRequired
	}
	if cfg.Layout.PayloadLen == 0 {
		cfg.Layout = frame.LayoutV1
	}
	cfg.Session = cfg.Session.WithDefaults()
	downstream, err := session.NewChannel("downstream", cfg.DownstreamAddr, cfg.Session)
	if err != nil {
		return nil, err
	}
	observability.RegisterMetrics()
	return &Service{cfg: cfg, downstream: downstream}, nil
}

func (s *Service) Downstream() *session.Channel {
	return s.downstream
}

// Run binds the configured listeners and blocks until SIGINT/SIGTERM. Only a
// bind failure is returned as an error.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		adminLn, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			return err
		}
		go func() {
			adminErr <- observability.ServeAdmin(ctx, adminLn, s.HTTPRouter())
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			stop()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Serve accepts producers on ln one at a time and runs the downstream
// reconnect loop until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ln.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.downstream.Run(ctx)
	}()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeActive()
	}()

	log.Info().
		Str("listen", ln.Addr().String()).
		Str("downstream", s.cfg.DownstreamAddr).
		Str("layout", s.cfg.Layout.String()).
		Msg("relay.Service.Serve listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.serveUpstream(ctx, conn)
	}
}

func (s *Service) serveUpstream(ctx context.Context, conn net.Conn) {
	up := &upstream{id: uuid.NewString(), conn: conn}
	if !s.setActive(ctx, up) {
		_ = conn.Close()
		return
	}
	defer s.clearActive(up)
	defer conn.Close()

	s.sessions.Add(1)
	observability.RecordRelaySession()
	remote := conn.RemoteAddr().String()
	log.Info().
		Str("session", up.id).
		Str("remote", remote).
		Msg("relay.Service.serveUpstream connected")

	var frames uint64
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		f, raw, err := frame.ReadFrame(conn, s.cfg.Layout)
		if err != nil {
			event := log.Warn().Err(err)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				event = log.Info()
			}
			event.
				Str("session", up.id).
				Str("remote", remote).
				Uint64("frames", frames).
				Msg("relay.Service.serveUpstream disconnected")
			return
		}
		frames++
		s.received.Add(1)
		s.storeLast(f)

		log.Debug().
			Str("session", up.id).
			Uint64("t", f.TimestampMS).
			Float32("x", f.X).
			Float32("y", f.Y).
			Float32("z", f.Z).
			Float32("pitch", f.Pitch).
			Float32("yaw", f.Yaw).
			Float32("roll", f.Roll).
			Msg("relay.frame")

		if s.downstream.Send(raw) == session.Sent {
			s.forwarded.Add(1)
			observability.RecordRelayFrame("forwarded")
		} else {
			s.dropped.Add(1)
			observability.RecordRelayFrame("dropped")
		}
	}
}

// Snapshot returns current counters and link state.
func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Sessions:          s.sessions.Load(),
		Received:          s.received.Load(),
		Forwarded:         s.forwarded.Load(),
		Dropped:           s.dropped.Load(),
		UpstreamConnected: s.active != nil,
		DownstreamState:   s.downstream.State().String(),
		DownstreamChannel: s.downstream.Stats(),
	}
	if s.active != nil {
		st.UpstreamSession = s.active.id
	}
	if s.lastFrame != nil {
		f := *s.lastFrame
		st.LastFrame = &f
	}
	return st
}

func (s *Service) setActive(ctx context.Context, up *upstream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.active = up
	return true
}

func (s *Service) clearActive(up *upstream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == up {
		s.active = nil
	}
}

func (s *Service) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		_ = s.active.conn.Close()
	}
}

func (s *Service) storeLast(f frame.Frame) {
	s.mu.Lock()
	s.lastFrame = &f
	s.mu.Unlock()
}
