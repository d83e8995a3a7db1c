package producer

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/danmuck/accord/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrRelayAddressRequired = errors.New("producer: relay address required")
	ErrInvalidInterval      = errors.New("producer: invalid interval")
)

// ServiceConfig configures the standalone producer process.
type ServiceConfig struct {
	RelayAddr    string
	EmitInterval time.Duration
	TickInterval time.Duration
	Layout       frame.Layout
	Orbit        OrbitConfig
	Session      session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RelayAddr:    "127.0.0.1:5555",
		EmitInterval: 100 * time.Millisecond,
		TickInterval: 16 * time.Millisecond,
		Layout:       frame.LayoutV1,
		Orbit:        DefaultOrbitConfig(),
		Session:      session.DefaultConfig(),
	}
}

// Service runs a producer over a synthetic sampler and a resilient channel
// to the relay.
type Service struct {
	cfg     ServiceConfig
	channel *session.Channel
	sampler Sampler
}

func NewService(cfg ServiceConfig, sampler Sampler) (*Service, error) {
	if strings.TrimSpace(cfg.RelayAddr) == "" {
		return nil, ErrRelayAddressRequired
	}
	if cfg.EmitInterval < 0 || cfg.TickInterval <= 0 {
		return nil, ErrInvalidInterval
	}
	if cfg.Layout.PayloadLen == 0 {
		cfg.Layout = frame.LayoutV1
	}
	ch, err := session.NewChannel("upstream", cfg.RelayAddr, cfg.Session)
	if err != nil {
		return nil, err
	}
	if sampler == nil {
		sampler = NewOrbitSampler(cfg.Orbit)
	}
	return &Service{cfg: cfg, channel: ch, sampler: sampler}, nil
}

func (s *Service) Channel() *session.Channel {
	return s.channel
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs the reconnect loop and the tick driver until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	log.Info().
		Str("relay", s.cfg.RelayAddr).
		Str("layout", s.cfg.Layout.String()).
		Dur("emit_interval", s.cfg.EmitInterval).
		Msg("producer.Service.Serve started")

	p := New(s.cfg.EmitInterval, s.cfg.Layout, s.sampler, s.channel)
	channelErr := make(chan error, 1)
	go func() {
		channelErr <- s.channel.Run(ctx)
	}()
	err := p.Drive(ctx, s.cfg.TickInterval)
	if chErr := <-channelErr; err == nil {
		err = chErr
	}
	stats := s.channel.Stats()
	log.Info().
		Uint64("sent", stats.Sent).
		Uint64("dropped", stats.Dropped()).
		Msg("producer.Service.Serve stopped")
	return err
}
