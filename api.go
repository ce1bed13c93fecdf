// Package mirror synchronizes in-process values with an external durable
// key-value store.
//
// The core type is Mirror, which binds a single key in a Store to an
// in-memory value of type T. The value is loaded once at Start, rewritten
// on every local update, and kept in sync with writes made by other
// execution contexts via a Notifier.
//
// # Mirror
//
// A Mirror resolves its value through a fixed precedence:
//
//	Stored entry (if present and decodable) → initial value
//
// Local updates are applied to memory first and persisted best-effort:
// a failed encode or write never blocks or reverts the in-memory value.
// Failures surface through capitan signals, LastError, and Warnings —
// never through Set or Update return values.
//
// # External changes
//
// When a Notifier is attached, the Mirror adopts changes other contexts
// make to its key, last-write-wins. Changes to other keys, changes
// stamped with the Mirror's own origin, and removed entries are ignored.
//
// # Debouncer
//
// Debouncer is an independent primitive that settles a rapidly changing
// value once it has been stable for a full delay window. Compose the two
// by feeding Debouncer.Updates into Mirror.Set.
//
// # Stores
//
// The core package provides MemoryStore and FileStore. Driver-backed
// stores are available in pkg/:
//
//   - pkg/redis: Redis strings + keyspace notifications
//   - pkg/nats: NATS JetStream KV + Watch API
//   - pkg/postgres: keyed table + LISTEN/NOTIFY
//
// # Example
//
//	bus := mirror.NewBroadcaster()
//	store := mirror.NewMemoryStore().Broadcast(bus)
//
//	m := mirror.New[Settings](store, "settings", defaults,
//	    func(ctx context.Context, prev, curr Settings) error {
//	        return app.Apply(curr)
//	    },
//	).Watch(bus)
//
//	if err := m.Start(ctx); err != nil {
//	    log.Fatalf("mirror: %v", err)
//	}
//
//	m.Set(ctx, userEdited)
package mirror

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// callbackID names the terminal pipeline stage that runs the user callback.
const callbackID = pipz.Name("callback")

// Mirror binds a single key in a durable Store to an in-memory value,
// rewriting the entry on local updates and adopting external rewrites.
type Mirror[T any] struct {
	store    Store
	notifier Notifier
	key      string
	initial  T
	pipeline pipz.Chainable[*Request[T]]
	codec    Codec
	clock    clockz.Clock
	metrics  MetricsProvider
	onStop   func(State)
	origin   string

	state     atomic.Int32
	current   atomic.Pointer[T]
	lastError atomic.Pointer[error]
	warnings  *warnRing

	mu      sync.Mutex
	started bool
}

// New creates a Mirror for key in store, seeded with initial.
//
// The store may be nil, in which case the Mirror holds initial and all
// persistence is skipped — updates still apply to memory. The callback fn
// is invoked after every accepted value change, local or external, with
// the previous and current values; pass nil when no callback is needed.
//
// Pipeline options (With*) wrap the callback with middleware. Instance
// configuration uses chainable methods before calling Start().
//
// Example:
//
//	m := mirror.New[Prefs](store, "prefs", defaults,
//	    func(ctx context.Context, prev, curr Prefs) error {
//	        return ui.Refresh(curr)
//	    },
//	    mirror.WithRetry[Prefs](3),
//	).Watch(notifier).Codec(mirror.YAMLCodec{})
func New[T any](
	store Store,
	key string,
	initial T,
	fn func(ctx context.Context, prev, curr T) error,
	opts ...Option[T],
) *Mirror[T] {
	if fn == nil {
		fn = func(context.Context, T, T) error { return nil }
	}
	terminal := pipz.Effect(callbackID, func(ctx context.Context, req *Request[T]) error {
		return fn(ctx, req.Previous, req.Current)
	})
	pipeline := buildPipeline(terminal, opts)

	m := &Mirror[T]{
		store:    store,
		key:      key,
		initial:  initial,
		pipeline: pipeline,
		clock:    clockz.RealClock,
		codec:    JSONCodec{},
		warnings: newWarnRing(0),
	}
	m.state.Store(int32(StateUninitialized))

	return m
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Watch attaches a Notifier so the Mirror adopts changes made to its key
// by other execution contexts. Must be called before Start().
func (m *Mirror[T]) Watch(n Notifier) *Mirror[T] {
	m.notifier = n
	return m
}

// Codec sets the codec for encoding and decoding stored entries.
// Default: JSONCodec. Must be called before Start().
func (m *Mirror[T]) Codec(codec Codec) *Mirror[T] {
	m.codec = codec
	return m
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic tests.
// Must be called before Start().
func (m *Mirror[T]) Clock(clock clockz.Clock) *Mirror[T] {
	m.clock = clock
	return m
}

// Origin sets the origin identity used to recognize the Mirror's own
// writes when they echo back through the Notifier. When unset, the origin
// is taken from the store if it exposes one. Must be called before Start().
func (m *Mirror[T]) Origin(id string) *Mirror[T] {
	m.origin = id
	return m
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (m *Mirror[T]) Metrics(provider MetricsProvider) *Mirror[T] {
	m.metrics = provider
	return m
}

// OnStop sets a callback invoked with the final state when the Mirror
// stops watching. Must be called before Start().
func (m *Mirror[T]) OnStop(fn func(State)) *Mirror[T] {
	m.onStop = fn
	return m
}

// WarningHistorySize sets the number of recent warnings to retain.
// Use 0 (default) to only retain the most recent failure via LastError().
// Must be called before Start().
func (m *Mirror[T]) WarningHistorySize(n int) *Mirror[T] {
	m.warnings = newWarnRing(n)
	return m
}

// -----------------------------------------------------------------------------
// Observation
// -----------------------------------------------------------------------------

// State returns the current state of the Mirror.
func (m *Mirror[T]) State() State {
	return State(m.state.Load())
}

// Current returns the current value. Before Start it returns the initial
// value the Mirror was created with.
func (m *Mirror[T]) Current() T {
	ptr := m.current.Load()
	if ptr == nil {
		return m.initial
	}
	return *ptr
}

// Key returns the store key this Mirror is bound to.
func (m *Mirror[T]) Key() string {
	return m.key
}

// LastError returns the last warning-level failure, or nil.
func (m *Mirror[T]) LastError() error {
	ptr := m.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Warnings returns the retained warning history, oldest first.
// Returns nil unless WarningHistorySize was set.
func (m *Mirror[T]) Warnings() []Warning {
	return m.warnings.recent()
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start loads the stored entry (or falls back to the initial value) and,
// when a Notifier is attached, begins watching for external changes until
// ctx is canceled.
//
// Data failures — a missing entry, an undecodable entry — never cause an
// error: the Mirror falls back to the best available value and records a
// warning. Start returns an error only when called twice or when the
// Notifier subscription itself fails.
func (m *Mirror[T]) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("mirror already started")
	}
	m.started = true
	m.mu.Unlock()

	if m.origin == "" {
		if o, ok := m.store.(originated); ok {
			m.origin = o.Origin()
		}
	}

	m.load(ctx)
	m.transitionState(ctx, StateUninitialized, StateReady)

	capitan.Emit(ctx, MirrorOpened,
		KeyKey.Field(m.key),
		KeyState.Field(m.State().String()),
	)

	if m.notifier == nil {
		return nil
	}

	changes, err := m.notifier.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch notifier: %w", err)
	}

	go m.watch(ctx, changes)

	return nil
}

// load resolves the starting value: the stored entry if present and
// decodable, the seed value otherwise. A corrupt entry is left untouched.
func (m *Mirror[T]) load(ctx context.Context) {
	value := m.initial

	if m.store != nil {
		start := m.clock.Now()
		raw, found, err := m.store.Get(ctx, m.key)
		switch {
		case err != nil:
			rerr := fmt.Errorf("read %q: %w", m.key, err)
			m.record(rerr)
			capitan.Emit(ctx, MirrorLoadFailed,
				KeyKey.Field(m.key),
				KeyError.Field(rerr.Error()),
			)
			if m.metrics != nil {
				m.metrics.OnLoadFailure(m.clock.Since(start))
			}
		case found:
			var decoded T
			if derr := m.codec.Unmarshal(raw, &decoded); derr != nil {
				werr := fmt.Errorf("decode %q: %w", m.key, derr)
				m.record(werr)
				capitan.Emit(ctx, MirrorLoadFailed,
					KeyKey.Field(m.key),
					KeyError.Field(werr.Error()),
				)
				if m.metrics != nil {
					m.metrics.OnLoadFailure(m.clock.Since(start))
				}
			} else {
				value = decoded
				if m.metrics != nil {
					m.metrics.OnLoad(true, m.clock.Since(start))
				}
			}
		default:
			if m.metrics != nil {
				m.metrics.OnLoad(false, m.clock.Since(start))
			}
		}
	}

	m.current.Store(&value)
}

// -----------------------------------------------------------------------------
// Local updates
// -----------------------------------------------------------------------------

// Set replaces the current value and persists it best-effort.
// The in-memory value is updated unconditionally and synchronously;
// encode or write failures are recorded as warnings, never returned.
func (m *Mirror[T]) Set(ctx context.Context, value T) {
	m.apply(ctx, func(T) T { return value })
}

// Update derives the next value from the current one and persists it
// best-effort. The read-modify-write is atomic with respect to other
// local updates.
func (m *Mirror[T]) Update(ctx context.Context, fn func(T) T) {
	m.apply(ctx, fn)
}

func (m *Mirror[T]) apply(ctx context.Context, fn func(T) T) {
	start := m.clock.Now()

	m.mu.Lock()
	prev := m.Current()
	next := fn(prev)
	m.current.Store(&next)
	m.mu.Unlock()

	if m.store != nil {
		raw, err := m.codec.Marshal(next)
		if err != nil {
			eerr := fmt.Errorf("encode %q: %w", m.key, err)
			m.record(eerr)
			capitan.Emit(ctx, MirrorEncodeFailed,
				KeyKey.Field(m.key),
				KeyError.Field(eerr.Error()),
			)
		} else if werr := m.store.Set(ctx, m.key, raw); werr != nil {
			serr := fmt.Errorf("write %q: %w", m.key, werr)
			m.record(serr)
			capitan.Emit(ctx, MirrorWriteFailed,
				KeyKey.Field(m.key),
				KeyError.Field(serr.Error()),
			)
			if m.metrics != nil {
				m.metrics.OnWriteFailure()
			}
		}
	}

	if m.metrics != nil {
		m.metrics.OnSet(m.clock.Since(start))
	}

	m.deliver(ctx, prev, next, nil, false)
}

// -----------------------------------------------------------------------------
// External changes
// -----------------------------------------------------------------------------

// watch adopts matching external changes until ctx is canceled or the
// notifier closes its channel.
func (m *Mirror[T]) watch(ctx context.Context, changes <-chan Change) {
	defer func() {
		finalState := m.State()
		capitan.Emit(ctx, MirrorClosed,
			KeyKey.Field(m.key),
			KeyState.Field(finalState.String()),
		)
		if m.onStop != nil {
			m.onStop(finalState)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.adopt(ctx, change)
		}
	}
}

// adopt applies a single external change, last-write-wins.
func (m *Mirror[T]) adopt(ctx context.Context, change Change) {
	if change.Key != m.key {
		return
	}
	if m.origin != "" && change.Origin == m.origin {
		return
	}

	capitan.Emit(ctx, MirrorChangeReceived,
		KeyKey.Field(m.key),
		KeyOrigin.Field(change.Origin),
	)
	if m.metrics != nil {
		m.metrics.OnChangeReceived()
	}

	// Removed entries carry no adoptable value.
	if change.Raw == nil {
		return
	}

	var next T
	if err := m.codec.Unmarshal(change.Raw, &next); err != nil {
		derr := fmt.Errorf("decode change for %q: %w", m.key, err)
		m.record(derr)
		capitan.Emit(ctx, MirrorChangeRejected,
			KeyKey.Field(m.key),
			KeyError.Field(derr.Error()),
		)
		if m.metrics != nil {
			m.metrics.OnChangeRejected()
		}
		return
	}

	m.mu.Lock()
	prev := m.Current()
	m.current.Store(&next)
	m.mu.Unlock()

	capitan.Emit(ctx, MirrorChangeAdopted,
		KeyKey.Field(m.key),
	)
	if m.metrics != nil {
		m.metrics.OnChangeAdopted()
	}

	m.deliver(ctx, prev, next, change.Raw, true)
}

// deliver runs the callback pipeline. Pipeline failures are telemetry
// only: the value change they describe has already been applied.
func (m *Mirror[T]) deliver(ctx context.Context, prev, next T, raw []byte, external bool) {
	req := &Request[T]{Previous: prev, Current: next, Raw: raw, External: external}
	if _, err := m.pipeline.Process(ctx, req); err != nil {
		aerr := fmt.Errorf("apply %q: %w", m.key, err)
		m.record(aerr)
		capitan.Emit(ctx, MirrorApplyFailed,
			KeyKey.Field(m.key),
			KeyError.Field(aerr.Error()),
		)
	}
}

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

// record retains a non-fatal failure for LastError and the warning ring.
func (m *Mirror[T]) record(err error) {
	e := err
	m.lastError.Store(&e)
	m.warnings.record(m.clock.Now(), err)
}

// transitionState updates the state and emits a state change event if changed.
func (m *Mirror[T]) transitionState(ctx context.Context, oldState, newState State) {
	if oldState == newState {
		return
	}
	m.state.Store(int32(newState))
	capitan.Emit(ctx, MirrorStateChanged,
		KeyKey.Field(m.key),
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if m.metrics != nil {
		m.metrics.OnStateChange(oldState, newState)
	}
}

// originated is implemented by stores that stamp an origin identity on
// the changes their writes publish.
type originated interface {
	Origin() string
}
