// Package vsync emits display refresh ticks to independent consumers.
//
// Each subscriber gets a one-slot channel. A subscriber that has not taken
// the previous tick misses the next one, so slow consumers skip refreshes
// instead of queueing them.
package vsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRate is the refresh rate used when none is configured.
const DefaultRate = 60.0

// Tick is one display refresh.
type Tick struct {
	Seq uint64
	At  time.Time

	// TimeMs is milliseconds since the display started.
	TimeMs float64
}

// Subscription receives ticks for one consumer.
type Subscription struct {
	Name string
	C    <-chan Tick

	ch      chan Tick
	dropped atomic.Uint64
}

// Dropped returns the number of ticks skipped because the consumer was busy.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Display is a refresh clock.
type Display struct {
	interval time.Duration

	mu   sync.Mutex
	subs []*Subscription
	seq  uint64
}

// New creates a display refreshing at rate Hz.
func New(rate float64) *Display {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Display{interval: time.Duration(float64(time.Second) / rate)}
}

// Interval returns the time between ticks.
func (d *Display) Interval() time.Duration {
	return d.interval
}

// Subscribe registers a consumer.
func (d *Display) Subscribe(name string) *Subscription {
	ch := make(chan Tick, 1)
	s := &Subscription{Name: name, C: ch, ch: ch}

	d.mu.Lock()
	d.subs = append(d.subs, s)
	d.mu.Unlock()
	return s
}

// Emit delivers one tick to every subscriber without blocking.
func (d *Display) Emit(t Tick) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.subs {
		select {
		case s.ch <- t:
		default:
			s.dropped.Add(1)
		}
	}
}

// Run emits ticks at the display rate until ctx is cancelled.
// Subscriber channels are closed on return.
func (d *Display) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer d.close()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			d.mu.Lock()
			d.seq++
			seq := d.seq
			d.mu.Unlock()

			d.Emit(Tick{
				Seq:    seq,
				At:     now,
				TimeMs: float64(now.Sub(start)) / float64(time.Millisecond),
			})
		}
	}
}

func (d *Display) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs {
		close(s.ch)
	}
	d.subs = nil
}
