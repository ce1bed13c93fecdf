package mirror

import "context"

// Store is a durable string-keyed byte store shared by all Mirrors across
// all keys. Implementations must not assume exclusive access to a key.
type Store interface {
	// Get returns the stored entry for key. The second return reports
	// whether an entry exists; an absent entry is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set durably writes the entry for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Change describes an entry rewrite observed on a Notifier.
type Change struct {
	// Key identifies the rewritten entry.
	Key string

	// Raw is the new serialized value, or nil when the entry was removed.
	Raw []byte

	// Origin identifies the execution context that performed the write,
	// when the backend can tell. Empty when unknown.
	Origin string
}

// Notifier is a broadcast channel signaling that some execution context
// rewrote an entry in the durable store. It carries changes for all keys;
// each Mirror filters for its own. Whether a context observes its own
// writes is backend-dependent.
type Notifier interface {
	// Watch begins observing and returns a channel emitting changes as
	// they occur. The channel is closed when ctx is canceled or the
	// backend connection is lost.
	Watch(ctx context.Context) (<-chan Change, error)
}
