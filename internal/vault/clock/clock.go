// Package clock provides ledger tick sources.
package clock

import (
	"context"
	"sync/atomic"
	"time"

	"treasury/internal/vault/models"
)

// Manual is a settable tick source for tests and single-step tooling.
type Manual struct {
	tick atomic.Uint64
}

// NewManual starts a manual clock at tick.
func NewManual(tick models.Tick) *Manual {
	c := &Manual{}
	c.tick.Store(uint64(tick))
	return c
}

func (c *Manual) Now(context.Context) models.Tick {
	return models.Tick(c.tick.Load())
}

// Set moves the clock to tick.
func (c *Manual) Set(tick models.Tick) {
	c.tick.Store(uint64(tick))
}

// Advance moves the clock forward by n ticks.
func (c *Manual) Advance(n models.Tick) {
	c.tick.Add(uint64(n))
}

// Ledger derives ticks from wall time: one tick per period since genesis.
type Ledger struct {
	genesis time.Time
	period  time.Duration
	now     func() time.Time
}

// Option configures a Ledger clock.
type Option func(*Ledger)

// WithTimeSource overrides time.Now.
func WithTimeSource(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger builds a wall-time clock. A non-positive period falls back to five seconds.
func NewLedger(genesis time.Time, period time.Duration, opts ...Option) *Ledger {
	if period <= 0 {
		period = 5 * time.Second
	}
	l := &Ledger{genesis: genesis, period: period, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Now(context.Context) models.Tick {
	elapsed := l.now().Sub(l.genesis)
	if elapsed < 0 {
		return 0
	}
	return models.Tick(elapsed / l.period)
}
