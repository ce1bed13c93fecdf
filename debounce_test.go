package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestDebouncer_SettlesAfterQuietWindow(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := NewDebouncer("a", 500*time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := d.Value(); got != "a" {
		t.Errorf("expected initial value before first window, got %q", got)
	}

	d.Observe("b")
	time.Sleep(10 * time.Millisecond) // let the loop receive
	clock.Advance(499 * time.Millisecond)
	clock.BlockUntilReady()
	if got := d.Value(); got != "a" {
		t.Errorf("window not elapsed, expected %q, got %q", "a", got)
	}

	clock.Advance(1 * time.Millisecond)
	clock.BlockUntilReady()
	if !waitFor(t, time.Second, func() bool { return d.Value() == "b" }) {
		t.Errorf("expected settled %q, got %q", "b", d.Value())
	}
}

func TestDebouncer_RapidChangesRestartWindow(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := NewDebouncer("a", 500*time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// "a" -> "b" at t=0, -> "c" at t=300: output stays "a" until t=800,
	// then becomes "c". "b" never appears.
	d.Observe("b")
	time.Sleep(10 * time.Millisecond) // let the loop receive
	clock.Advance(300 * time.Millisecond)
	clock.BlockUntilReady()
	if got := d.Value(); got != "a" {
		t.Errorf("at t=300 expected %q, got %q", "a", got)
	}

	d.Observe("c")
	time.Sleep(10 * time.Millisecond) // let the loop receive
	clock.Advance(499 * time.Millisecond)
	clock.BlockUntilReady()
	if got := d.Value(); got != "a" {
		t.Errorf("at t=799 expected %q, got %q", "a", got)
	}

	clock.Advance(1 * time.Millisecond)
	clock.BlockUntilReady()
	if !waitFor(t, time.Second, func() bool { return d.Value() == "c" }) {
		t.Errorf("at t=800 expected %q, got %q", "c", d.Value())
	}
}

func TestDebouncer_SettlesOncePerQuietPeriod(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := NewDebouncer(0, 100*time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.Observe(1)
	d.Observe(2)
	d.Observe(3)
	time.Sleep(10 * time.Millisecond) // let the loop receive
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case v := <-d.Updates():
		if v != 3 {
			t.Errorf("expected latest value 3, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no settlement emitted")
	}

	// A quiet period with no new observations settles nothing further.
	clock.Advance(time.Second)
	clock.BlockUntilReady()
	select {
	case v := <-d.Updates():
		t.Errorf("unexpected second settlement: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncer_DelayChangeReplacesTimer(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := NewDebouncer("a", 500*time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.Observe("b")
	time.Sleep(10 * time.Millisecond) // let the loop receive
	clock.Advance(300 * time.Millisecond)
	clock.BlockUntilReady()

	// Shrinking the delay restarts the window rather than stacking a
	// second timer.
	d.SetDelay(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond) // let the loop receive
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()

	if !waitFor(t, time.Second, func() bool { return d.Value() == "b" }) {
		t.Errorf("expected settled %q, got %q", "b", d.Value())
	}

	select {
	case <-d.Updates():
	case <-time.After(time.Second):
		t.Fatal("no settlement emitted")
	}
	clock.Advance(time.Second)
	clock.BlockUntilReady()
	select {
	case v := <-d.Updates():
		t.Errorf("timer fired twice for one stable period: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncer_ZeroDelayStillDefers(t *testing.T) {
	d := NewDebouncer("a", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.Observe("b")

	// Settlement arrives on a timer tick, never synchronously inside
	// Observe.
	if !waitFor(t, time.Second, func() bool { return d.Value() == "b" }) {
		t.Errorf("zero delay never settled, got %q", d.Value())
	}
}

func TestDebouncer_ObserveBeforeStartIsDropped(t *testing.T) {
	d := NewDebouncer("a", 10*time.Millisecond)

	// Neither call may block while no loop is running.
	d.Observe("b")
	d.SetDelay(time.Second)

	if got := d.Value(); got != "a" {
		t.Errorf("pre-start observation mutated state: %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The dropped calls leave no trace: the original delay applies and
	// observation works normally after Start.
	d.Observe("c")
	if !waitFor(t, time.Second, func() bool { return d.Value() == "c" }) {
		t.Errorf("post-start observation never settled, got %q", d.Value())
	}
}

func TestDebouncer_StartTwiceFails(t *testing.T) {
	d := NewDebouncer("a", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected error on second Start")
	}
}

func TestDebouncer_TeardownCancelsPendingWindow(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := NewDebouncer("a", 500*time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.Observe("b")
	cancel()

	// Updates closes once the loop exits.
	if !waitFor(t, time.Second, func() bool {
		select {
		case _, ok := <-d.Updates():
			return !ok
		default:
			return false
		}
	}) {
		t.Fatal("updates channel never closed")
	}

	clock.Advance(time.Second)
	clock.BlockUntilReady()
	if got := d.Value(); got != "a" {
		t.Errorf("pending window settled after teardown: %q", got)
	}

	// Late observations are dropped, not blocked.
	d.Observe("c")
	if got := d.Value(); got != "a" {
		t.Errorf("observation after teardown mutated state: %q", got)
	}
}
