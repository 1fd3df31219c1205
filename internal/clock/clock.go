package clock

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// Mock is a Clock that always returns a fixed time.
type Mock struct {
	T time.Time
}

// Now returns the fixed time.
func (m Mock) Now() time.Time { return m.T }

// Manual is a Clock whose time only moves when told to. It is safe for
// concurrent use.
type Manual struct {
	mu sync.RWMutex
	t  time.Time
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{t: t}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}

// Tick is one beat of the shared clock. Seq increases by one per beat.
type Tick struct {
	Seq uint64
	At  time.Time
}

// Ticker emits a Tick every interval until ctx is done, then closes the
// returned channel. At is read from clk so tests can drive time explicitly.
func Ticker(ctx context.Context, clk Clock, interval time.Duration) <-chan Tick {
	out := make(chan Tick)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				seq++
				select {
				case out <- Tick{Seq: seq, At: clk.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
