package consumer

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

	"github.com/danmuck/accord/internal/observability"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var ErrListenAddressRequired = errors.New("consumer: listen address required")

// ServiceConfig configures the viewer endpoint.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	Layout          frame.Layout
	CorsOrigins     []string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      "127.0.0.1:5556",
		AdminListenAddr: "",
		Layout:          frame.LayoutV1,
		CorsOrigins:     []string{"http://localhost:3000"},
	}
}

// Stats is a point-in-time view of viewer activity.
type Stats struct {
	Connections uint64 `json:"connections"`
	Frames      uint64 `json:"frames"`
	Connected   bool   `json:"connected"`
	Sequence    uint64 `json:"sequence"`
}

// Service accepts the relay's downstream connection and feeds a Latest sink.
type Service struct {
	cfg    ServiceConfig
	latest *Latest

	connections atomic.Uint64
	frames      atomic.Uint64

	mu     sync.Mutex
	active net.Conn
}

func NewService() (*Service, error) {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, ErrListenAddressRequired
	}
	if cfg.Layout.PayloadLen == 0 {
		cfg.Layout = frame.LayoutV1
	}
	observability.RegisterMetrics()
	return &Service{cfg: cfg, latest: NewLatest()}, nil
}

func (s *Service) Latest() *Latest {
	return s.latest
}

// Run binds the configured listeners and blocks until SIGINT/SIGTERM.
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

// Serve accepts one relay connection at a time until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeActive()
	}()

	log.Info().
		Str("listen", ln.Addr().String()).
		Str("layout", s.cfg.Layout.String()).
		Msg("consumer.Service.Serve listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.serveConn(ctx, conn)
	}
}

func (s *Service) serveConn(ctx context.Context, conn net.Conn) {
	if !s.setActive(ctx, conn) {
		_ = conn.Close()
		return
	}
	defer s.clearActive(conn)
	defer conn.Close()

	s.connections.Add(1)
	remote := conn.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("consumer.Service.serveConn connected")

	var n uint64
	for {
		f, _, err := frame.ReadFrame(conn, s.cfg.Layout)
		if err != nil {
			event := log.Warn().Err(err)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				event = log.Info()
			}
			event.
				Str("remote", remote).
				Uint64("frames", n).
				Msg("consumer.Service.serveConn disconnected")
			return
		}
		n++
		s.frames.Add(1)
		s.latest.Store(f)
		observability.RecordViewerFrame()
	}
}

func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	connected := s.active != nil
	s.mu.Unlock()
	_, seq, _ := s.latest.Load()
	return Stats{
		Connections: s.connections.Load(),
		Frames:      s.frames.Load(),
		Connected:   connected,
		Sequence:    seq,
	}
}

func (s *Service) setActive(ctx context.Context, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.active = conn
	return true
}

func (s *Service) clearActive(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == conn {
		s.active = nil
	}
}

func (s *Service) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		_ = s.active.Close()
	}
}
