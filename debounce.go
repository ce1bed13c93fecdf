package mirror

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Debouncer settles a rapidly changing value once it has been stable for
// a full delay window. Every Observe or SetDelay cancels the outstanding
// window and starts a new one; when the window elapses undisturbed, the
// latest observed value becomes the settled value.
//
// Until the first window elapses, Value returns the initial value the
// Debouncer was created with. A zero delay still settles asynchronously
// on the next timer tick, never within the Observe call.
type Debouncer[T any] struct {
	delay time.Duration
	clock clockz.Clock

	settled atomic.Pointer[T]
	out     chan T

	obsC   chan T
	delayC chan time.Duration
	done   chan struct{}

	mu      sync.Mutex
	started bool
}

// NewDebouncer creates a Debouncer seeded with initial and the given
// delay window. Call Start before observing values.
func NewDebouncer[T any](initial T, delay time.Duration) *Debouncer[T] {
	d := &Debouncer[T]{
		delay:  delay,
		clock:  clockz.RealClock,
		out:    make(chan T, 1),
		obsC:   make(chan T),
		delayC: make(chan time.Duration),
		done:   make(chan struct{}),
	}
	d.settled.Store(&initial)
	return d
}

// Clock sets a custom clock for timer operations.
// Use this with clockz.FakeClock for deterministic tests.
// Must be called before Start().
func (d *Debouncer[T]) Clock(clock clockz.Clock) *Debouncer[T] {
	d.clock = clock
	return d
}

// Start launches the debounce loop. The loop runs until ctx is canceled;
// any window still open at cancellation is discarded without settling.
// Start can only be called once.
func (d *Debouncer[T]) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("debouncer already started")
	}
	d.started = true
	d.mu.Unlock()

	capitan.Emit(ctx, DebouncerStarted,
		KeyDelay.Field(d.delay),
	)

	go d.run(ctx)
	return nil
}

// Observe feeds a new input value, restarting the delay window.
// Calls made before Start or after the Debouncer has stopped are
// dropped.
func (d *Debouncer[T]) Observe(v T) {
	if !d.running() {
		return
	}
	select {
	case d.obsC <- v:
	case <-d.done:
	}
}

// SetDelay changes the delay window. Any pending window restarts with
// the new delay. Calls made before Start or after the Debouncer has
// stopped are dropped.
func (d *Debouncer[T]) SetDelay(delay time.Duration) {
	if !d.running() {
		return
	}
	select {
	case d.delayC <- delay:
	case <-d.done:
	}
}

func (d *Debouncer[T]) running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Value returns the settled value: the last input that survived a full
// delay window, or the initial value before any input has settled.
func (d *Debouncer[T]) Value() T {
	return *d.settled.Load()
}

// Updates returns a channel emitting each settled value. The channel has
// capacity one and keeps only the latest settlement; it is closed when
// the Debouncer stops.
func (d *Debouncer[T]) Updates() <-chan T {
	return d.out
}

// run is the debounce loop. At most one timer is outstanding at a time:
// inputs and delay changes replace it, never stack it.
func (d *Debouncer[T]) run(ctx context.Context) {
	defer func() {
		close(d.done)
		close(d.out)
		capitan.Emit(ctx, DebouncerStopped)
	}()

	var (
		timer      clockz.Timer
		pending    T
		hasPending bool
	)
	delay := d.delay

	reset := func() {
		if timer == nil {
			timer = d.clock.NewTimer(delay)
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C():
			default:
			}
		}
		timer.Reset(delay)
	}

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case v := <-d.obsC:
			pending = v
			hasPending = true
			reset()

		case nd := <-d.delayC:
			delay = nd
			if hasPending {
				reset()
			}

		case <-timerC:
			if hasPending {
				d.settled.Store(&pending)
				d.emit(pending)
				capitan.Emit(ctx, DebouncerSettled,
					KeyDelay.Field(delay),
				)
				hasPending = false
			}
		}
	}
}

// emit pushes a settled value to the updates channel, displacing a stale
// unread value so the latest settlement always wins.
func (d *Debouncer[T]) emit(v T) {
	for {
		select {
		case d.out <- v:
			return
		default:
			select {
			case <-d.out:
			default:
			}
		}
	}
}
