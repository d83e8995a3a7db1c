package producer

import (
	"sync/atomic"
	"time"
)

// RateGate caps how often the producer emits, independent of how often it is
// ticked. It never raises the rate above the caller's own tick rate.
type RateGate struct {
	intervalMS uint64
	// last holds the last emission time plus one; zero means nothing emitted yet.
	last atomic.Uint64
}

func NewRateGate(interval time.Duration) *RateGate {
	ms := interval.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &RateGate{intervalMS: uint64(ms)}
}

func (g *RateGate) Interval() time.Duration {
	return time.Duration(g.intervalMS) * time.Millisecond
}

// Allow reports whether an emission at nowMS passes the gate and, if so,
// records nowMS as the last emission before returning. Concurrent callers in
// the same window cannot both pass. A nowMS earlier than the last emission is
// rejected.
func (g *RateGate) Allow(nowMS uint64) bool {
	for {
		prev := g.last.Load()
		if prev != 0 {
			lastMS := prev - 1
			if nowMS < lastMS || nowMS-lastMS < g.intervalMS {
				return false
			}
		}
		if g.last.CompareAndSwap(prev, nowMS+1) {
			return true
		}
	}
}

// LastEmitMS returns the last accepted time and whether any emission happened.
func (g *RateGate) LastEmitMS() (uint64, bool) {
	prev := g.last.Load()
	if prev == 0 {
		return 0, false
	}
	return prev - 1, true
}
