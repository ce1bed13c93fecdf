package mirror

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. Each instance models one execution
// context: writes are stamped with the instance's origin so Mirrors
// sharing the instance can recognize their own context's changes when a
// Broadcaster echoes them back.
type MemoryStore struct {
	origin string
	bus    *Broadcaster

	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore with a fresh origin.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		origin:  uuid.NewString(),
		entries: make(map[string][]byte),
	}
}

// Broadcast attaches a Broadcaster; every Set publishes a Change stamped
// with this store's origin.
func (s *MemoryStore) Broadcast(bus *Broadcaster) *MemoryStore {
	s.bus = bus
	return s
}

// Origin returns the identity stamped on this store's published changes.
func (s *MemoryStore) Origin() string {
	return s.origin
}

// Get returns a copy of the stored entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

// Set stores a copy of value under key and publishes the change when a
// Broadcaster is attached.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.entries[key] = stored
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(ctx, Change{Key: key, Raw: stored, Origin: s.origin})
	}
	return nil
}

// Delete removes the entry for key and publishes a nil-valued change.
func (s *MemoryStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(ctx, Change{Key: key, Raw: nil, Origin: s.origin})
	}
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// Broadcaster is an in-memory Notifier fanning changes out to every
// watcher. Delivery is non-blocking: a watcher that falls behind keeps
// only the most recent changes, which matches last-write-wins adoption.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[int]chan Change
	next int
}

// watcherBuffer is the per-watcher channel capacity.
const watcherBuffer = 16

// NewBroadcaster creates a Broadcaster with no watchers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Change)}
}

// Watch registers a watcher. The returned channel is closed when ctx is
// canceled.
func (b *Broadcaster) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, watcherBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Publish delivers a change to every registered watcher. When a watcher's
// buffer is full, its oldest unread change is displaced.
func (b *Broadcaster) Publish(_ context.Context, change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

// Ensure Broadcaster implements Notifier.
var _ Notifier = (*Broadcaster)(nil)
