// Package postgres provides mirror.Store and mirror.Notifier
// implementations backed by a keyed PostgreSQL table, using LISTEN/NOTIFY
// for change delivery.
//
// Watching requires a trigger that notifies the channel with the changed
// key as payload:
//
//	CREATE OR REPLACE FUNCTION notify_entry_change() RETURNS trigger AS $$
//	BEGIN
//	    IF TG_OP = 'DELETE' THEN
//	        PERFORM pg_notify('entries_changed', OLD.key);
//	        RETURN OLD;
//	    END IF;
//	    PERFORM pg_notify('entries_changed', NEW.key);
//	    RETURN NEW;
//	END;
//	$$ LANGUAGE plpgsql;
//
//	CREATE TRIGGER entry_change_trigger
//	    AFTER INSERT OR UPDATE OR DELETE ON entries
//	    FOR EACH ROW EXECUTE FUNCTION notify_entry_change();
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoobzio/mirror"
)

// KV is a PostgreSQL-backed Store and Notifier over a two-column keyed
// table. PostgreSQL cannot attribute writes across connections, so
// changes carry no origin and a context observes its own writes echoed
// back.
type KV struct {
	pool    *pgxpool.Pool
	table   string
	channel string
}

// Option configures a KV.
type Option func(*KV)

// WithTable sets the table name holding entries. Defaults to "entries".
func WithTable(table string) Option {
	return func(kv *KV) {
		kv.table = table
	}
}

// WithChannel sets the notification channel name. It must match the
// channel used in pg_notify. Defaults to "entries_changed".
func WithChannel(channel string) Option {
	return func(kv *KV) {
		kv.channel = channel
	}
}

// New creates a KV over the given connection pool.
func New(pool *pgxpool.Pool, opts ...Option) *KV {
	kv := &KV{
		pool:    pool,
		table:   "entries",
		channel: "entries_changed",
	}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

// Get returns the entry stored under key.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", kv.table)
	err := kv.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the entry under key. The table trigger delivers the
// notification.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		kv.table,
	)
	if _, err := kv.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Watch begins listening on the notification channel and returns a
// channel that emits a Change whenever an entry row changes. The payload
// of each notification is the changed key; the row is re-read to obtain
// the value.
func (kv *KV) Watch(ctx context.Context) (<-chan mirror.Change, error) {
	conn, err := kv.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", kv.channel)); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", kv.channel, err)
	}

	out := make(chan mirror.Change)

	go func() {
		defer close(out)
		defer conn.Release()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			key := notification.Payload
			var change mirror.Change

			raw, found, err := kv.Get(ctx, key)
			switch {
			case err != nil:
				continue
			case found:
				change = mirror.Change{Key: key, Raw: raw}
			default:
				// Row gone: the entry was removed.
				change = mirror.Change{Key: key}
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
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
