// Package redis provides mirror.Store and mirror.Notifier implementations
// backed by Redis, using keyspace notifications for change delivery.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zoobzio/mirror"
)

// keyspacePrefix is the pub/sub channel prefix for keyspace notifications
// on database 0, the default.
const keyspacePrefix = "__keyspace@0__:"

// KV is a Redis-backed Store and Notifier. Watching requires Redis to
// have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
//
// Or in redis.conf:
//
//	notify-keyspace-events KEA
//
// Redis cannot attribute writes, so changes carry no origin and a
// context observes its own writes echoed back.
type KV struct {
	client *redis.Client
	prefix string
}

// Option configures a KV.
type Option func(*KV)

// WithDB sets the database index used in the keyspace notification
// channel prefix. It must match the database the client is connected
// to. Defaults to 0.
func WithDB(db int) Option {
	return func(kv *KV) {
		kv.prefix = fmt.Sprintf("__keyspace@%d__:", db)
	}
}

// New creates a KV over the given Redis client.
func New(client *redis.Client, opts ...Option) *KV {
	kv := &KV{client: client, prefix: keyspacePrefix}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

// Get returns the entry stored under key.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := kv.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes the entry under key with no expiration.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := kv.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Watch subscribes to keyspace notifications for all keys and returns a
// channel that emits a Change whenever an entry is written or removed.
func (kv *KV) Watch(ctx context.Context) (<-chan mirror.Change, error) {
	pubsub := kv.client.PSubscribe(ctx, kv.prefix+"*")

	// Verify subscription worked
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan mirror.Change)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				key := strings.TrimPrefix(msg.Channel, kv.prefix)
				var change mirror.Change

				// The payload is the operation performed on the key.
				switch msg.Payload {
				case "set", "mset", "setex", "psetex", "setnx", "getset":
					val, err := kv.client.Get(ctx, key).Bytes()
					if err != nil {
						continue
					}
					change = mirror.Change{Key: key, Raw: val}
				case "del", "expired", "unlink":
					change = mirror.Change{Key: key}
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
