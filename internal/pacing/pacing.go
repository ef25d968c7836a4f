// Package pacing inserts human-like pauses before page interactions.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pauser is implemented by anything that can wait before an interaction.
type Pauser interface {
	Pause(ctx context.Context) error
}

// Pacer pauses for a uniform random duration in [Min, Max).
type Pacer struct {
	Min, Max time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pacer for the window [min, max) in milliseconds.
func New(minMS, maxMS int) *Pacer {
	return &Pacer{
		Min:   time.Duration(minMS) * time.Millisecond,
		Max:   time.Duration(maxMS) * time.Millisecond,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleep,
	}
}

// Next returns the next delay without waiting.
func (p *Pacer) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rng.Int63n(int64(p.Max-p.Min)))
}

// Pause waits for the next delay or until ctx is done.
func (p *Pacer) Pause(ctx context.Context) error {
	return p.sleep(ctx, p.Next())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Counter is a Pauser that records pauses without waiting.
type Counter struct {
	mu sync.Mutex
	n  int
}

func (c *Counter) Pause(ctx context.Context) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return ctx.Err()
}

// Count returns the number of pauses taken.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
