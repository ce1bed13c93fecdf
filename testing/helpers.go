// Package testing provides test utilities and helpers for mirror testing.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/mirror"
)

// TestPrefs is a standard value type for testing mirrors.
type TestPrefs struct {
	Theme    string `json:"theme" yaml:"theme"`
	FontSize int    `json:"font_size" yaml:"font_size"`
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForValue waits until the mirror's current value satisfies check or
// timeout occurs.
func WaitForValue[T any](t *testing.T, m *mirror.Mirror[T], timeout time.Duration, check func(T) bool) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return check(m.Current())
	})
}

// RequireState fails the test immediately if the mirror is not in the
// expected state.
func RequireState[T any](t *testing.T, m *mirror.Mirror[T], expected mirror.State) {
	t.Helper()
	if got := m.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireValue fails the test if the mirror's current value does not
// satisfy check.
func RequireValue[T any](t *testing.T, m *mirror.Mirror[T], check func(T) bool) {
	t.Helper()
	if v := m.Current(); !check(v) {
		t.Fatalf("value check failed: %+v", v)
	}
}

// Env is a two-context test environment: a started mirror in one context
// and a Remote store representing another context writing the same key
// through the shared bus.
type Env struct {
	Bus    *mirror.Broadcaster
	Local  *mirror.MemoryStore
	Remote *mirror.MemoryStore
	Mirror *mirror.Mirror[TestPrefs]
}

// NewEnv creates and starts a mirror for key seeded with initial, wired
// to an in-memory bus, plus a remote store for simulating cross-context
// writes. The mirror stops when ctx is canceled.
func NewEnv(ctx context.Context, t *testing.T, key string, initial TestPrefs) *Env {
	t.Helper()

	bus := mirror.NewBroadcaster()
	local := mirror.NewMemoryStore().Broadcast(bus)
	remote := mirror.NewMemoryStore().Broadcast(bus)

	m := mirror.New[TestPrefs](local, key, initial, nil).Watch(bus)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("failed to start mirror: %v", err)
	}

	return &Env{Bus: bus, Local: local, Remote: remote, Mirror: m}
}
