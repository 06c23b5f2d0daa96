package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrLimiterClosed is returned by Acquire after Close.
var ErrLimiterClosed = eris.New("resilience: limiter closed")

// ErrExhausted is returned by AcquireTimeout when no slot opened in time.
var ErrExhausted = eris.New("resilience: rate window exhausted")

// Clock abstracts time for the limiter so tests can drive it directly.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// WindowLimiter admits at most n events in any rolling window of the given
// width. Unlike a token bucket it is strict: whatever the arrival pattern,
// no window of the configured width ever contains more than n admissions.
type WindowLimiter struct {
	n      int
	window time.Duration
	clock  Clock

	mu     sync.Mutex
	stamps []time.Time
	closed bool
	wake   chan struct{}
}

// NewWindowLimiter creates a limiter admitting n events per window.
func NewWindowLimiter(n int, window time.Duration) *WindowLimiter {
	return newWindowLimiter(n, window, realClock{})
}

func newWindowLimiter(n int, window time.Duration, clock Clock) *WindowLimiter {
	if n < 1 {
		n = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		n:      n,
		window: window,
		clock:  clock,
		stamps: make([]time.Time, 0, n),
		wake:   make(chan struct{}),
	}
}

// TryAcquire admits one event if the window has room, without blocking.
func (l *WindowLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	now := l.clock.Now()
	l.evict(now)
	if len(l.stamps) >= l.n {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Acquire blocks until the window has room, the context is canceled, or the
// limiter is closed. On success one admission is recorded.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return ErrLimiterClosed
		}
		now := l.clock.Now()
		l.evict(now)
		if len(l.stamps) < l.n {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		// The oldest admission leaving the window is the earliest a slot can open.
		wait := l.stamps[0].Add(l.window).Sub(now)
		wake := l.wake
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "resilience: acquire")
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// AcquireTimeout is Acquire bounded by a deadline. It returns ErrExhausted
// if no slot opens within d.
func (l *WindowLimiter) AcquireTimeout(ctx context.Context, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := l.Acquire(ctx)
	if err != nil && eris.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(ErrExhausted, "resilience: acquire timeout")
	}
	return err
}

// Close releases all blocked Acquire calls.
func (l *WindowLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.wake)
}

// InWindow returns the number of admissions currently inside the window.
func (l *WindowLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.clock.Now())
	return len(l.stamps)
}

// evict drops stamps that have aged out. Callers hold the mutex.
func (l *WindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
