package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Sleep advances the clock
// instead of blocking, and After fires immediately with the target time.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake starts a fake clock at a fixed instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now().Add(d)
	return ch
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return nil
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
