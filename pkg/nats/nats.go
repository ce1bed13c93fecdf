// Package nats provides mirror.Store and mirror.Notifier implementations
// backed by NATS JetStream KV, using the native Watch API for change
// delivery.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zoobzio/mirror"
)

// KV is a JetStream KV bucket exposed as a mirror Store and Notifier.
// JetStream cannot attribute writes, so changes carry no origin and a
// context observes its own writes echoed back.
type KV struct {
	kv     jetstream.KeyValue
	filter string
}

// Option configures a KV.
type Option func(*KV)

// WithKeyFilter restricts Watch to keys matching the given NATS subject
// filter. Defaults to ">" (all keys).
func WithKeyFilter(filter string) Option {
	return func(k *KV) {
		k.filter = filter
	}
}

// New creates a KV over the given JetStream KV bucket.
func New(kv jetstream.KeyValue, opts ...Option) *KV {
	k := &KV{kv: kv, filter: ">"}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Get returns the entry stored under key.
func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := k.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set writes the entry under key.
func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	if _, err := k.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Watch begins watching the bucket, restricted to the configured key
// filter, and returns a channel that emits a Change whenever an entry
// is written or removed. Historical values are not replayed.
func (k *KV) Watch(ctx context.Context) (<-chan mirror.Change, error) {
	watcher, err := k.kv.Watch(ctx, k.filter, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to watch bucket: %w", err)
	}

	out := make(chan mirror.Change)

	go func() {
		defer close(out)
		defer watcher.Stop() //nolint:errcheck // Best-effort cleanup

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil entry signals end of initial values
				if entry == nil {
					continue
				}

				var change mirror.Change
				switch entry.Operation() {
				case jetstream.KeyValuePut:
					change = mirror.Change{Key: entry.Key(), Raw: entry.Value()}
				case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
					change = mirror.Change{Key: entry.Key()}
				default:
					continue
				}

				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ensure KV implements the mirror contracts.
var (
	_ mirror.Store    = (*KV)(nil)
	_ mirror.Notifier = (*KV)(nil)
)
