package producer

import (
	"context"
	"time"

	"github.com/danmuck/accord/internal/observability"
	"github.com/danmuck/accord/internal/protocol/frame"
	"github.com/danmuck/accord/internal/protocol/session"
)

// Sender is the transport a producer emits through.
type Sender interface {
	Send(b []byte) session.SendResult
}

// TickResult reports what one Tick did.
type TickResult int

const (
	TickGated TickResult = iota
	TickNoSubject
	TickEmitted
	TickDropped
)

func (r TickResult) String() string {
	switch r {
	case TickGated:
		return "gated"
	case TickNoSubject:
		return "no_subject"
	case TickEmitted:
		return "emitted"
	case TickDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

type Option func(*Producer)

// WithClock replaces the millisecond clock used for gating and timestamps.
func WithClock(now func() uint64) Option {
	return func(p *Producer) {
		p.now = now
	}
}

// Producer turns host ticks into rate-limited frames.
type Producer struct {
	gate    *RateGate
	layout  frame.Layout
	sampler Sampler
	sender  Sender
	now     func() uint64
}

func New(emitInterval time.Duration, layout frame.Layout, sampler Sampler, sender Sender, opts ...Option) *Producer {
	p := &Producer{
		gate:    NewRateGate(emitInterval),
		layout:  layout,
		sampler: sampler,
		sender:  sender,
		now:     MonotonicClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tick is called once per host scheduling tick and never blocks beyond the
// sender's write budget. The gate is consumed before sampling so a slow send
// cannot leave a stale gate value behind.
func (p *Producer) Tick() TickResult {
	res := p.tick()
	observability.RecordProducerTick(res.String())
	return res
}

func (p *Producer) tick() TickResult {
	now := p.now()
	if !p.gate.Allow(now) {
		return TickGated
	}
	s, ok := p.sampler.Sample()
	if !ok {
		return TickNoSubject
	}
	rel := s.Position.Sub(s.Origin)
	f := frame.Frame{
		TimestampMS: now,
		Pitch:       s.Orientation.Pitch,
		Yaw:         s.Orientation.Yaw,
		Roll:        s.Orientation.Roll,
		X:           rel.X,
		Y:           rel.Y,
		Z:           rel.Z,
	}
	if p.sender.Send(frame.Encode(p.layout, f)) != session.Sent {
		return TickDropped
	}
	return TickEmitted
}

// Drive ticks p every interval until ctx is done, standing in for a host
// scheduler.
func (p *Producer) Drive(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick()
		}
	}
}

// MonotonicClock returns wall-clock milliseconds at creation advanced by the
// monotonic clock, so readings never decrease within one process.
func MonotonicClock() func() uint64 {
	start := time.Now()
	base := uint64(start.UnixMilli())
	return func() uint64 {
		return base + uint64(time.Since(start).Milliseconds())
	}
}
