package consumer

import (
	"context"
	"sync"

	"github.com/danmuck/accord/internal/protocol/frame"
)

// Latest holds the most recent frame. Each Store replaces the held value and
// bumps the sequence; readers that fall behind only ever see the newest frame.
type Latest struct {
	mu      sync.Mutex
	frame   frame.Frame
	seq     uint64
	changed chan struct{}
}

func NewLatest() *Latest {
	return &Latest{changed: make(chan struct{})}
}

// Store never blocks on readers.
func (l *Latest) Store(f frame.Frame) uint64 {
	l.mu.Lock()
	l.frame = f
	l.seq++
	seq := l.seq
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
	return seq
}

// Load returns the held frame and its sequence, or ok=false before the
// first Store.
func (l *Latest) Load() (frame.Frame, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == 0 {
		return frame.Frame{}, 0, false
	}
	return l.frame, l.seq, true
}

// Wait blocks until a frame with sequence greater than after is held or ctx
// is done.
func (l *Latest) Wait(ctx context.Context, after uint64) (frame.Frame, uint64, error) {
	for {
		l.mu.Lock()
		if l.seq > after {
			f, seq := l.frame, l.seq
			l.mu.Unlock()
			return f, seq, nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return frame.Frame{}, 0, ctx.Err()
		case <-changed:
		}
	}
}
