package mirror

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, found, err := store.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected absent entry, found=%v err=%v", found, err)
	}

	if err := store.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	raw, found, err := store.Get(ctx, "k")
	if err != nil || !found || string(raw) != "v1" {
		t.Fatalf("Get() = %q, %v, %v", raw, found, err)
	}

	// Mutating the returned slice must not affect the stored entry.
	raw[0] = 'x'
	again, _, _ := store.Get(ctx, "k")
	if string(again) != "v1" {
		t.Errorf("stored entry aliased: %q", again)
	}
}

func TestMemoryStore_DistinctOrigins(t *testing.T) {
	a := NewMemoryStore()
	b := NewMemoryStore()
	if a.Origin() == "" || a.Origin() == b.Origin() {
		t.Errorf("origins must be unique and non-empty: %q vs %q", a.Origin(), b.Origin())
	}
}

func TestMemoryStore_PublishesOnSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBroadcaster()
	store := NewMemoryStore().Broadcast(bus)

	ch, err := bus.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case change := <-ch:
		if change.Key != "k" || string(change.Raw) != "v" {
			t.Errorf("unexpected change %+v", change)
		}
		if change.Origin != store.Origin() {
			t.Errorf("change origin %q, want %q", change.Origin, store.Origin())
		}
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
}

func TestMemoryStore_DeletePublishesNilRaw(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBroadcaster()
	store := NewMemoryStore().Broadcast(bus)
	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ch, err := bus.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	store.Delete(ctx, "k")

	select {
	case change := <-ch:
		if change.Key != "k" || change.Raw != nil {
			t.Errorf("expected removal change, got %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("no removal published")
	}

	if _, found, _ := store.Get(ctx, "k"); found {
		t.Error("entry still present after Delete")
	}
}

func TestBroadcaster_FansOutToAllWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBroadcaster()
	first, err := bus.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	second, err := bus.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	bus.Publish(ctx, Change{Key: "k", Raw: []byte("v")})

	for i, ch := range []<-chan Change{first, second} {
		select {
		case change := <-ch:
			if change.Key != "k" {
				t.Errorf("watcher %d got %+v", i, change)
			}
		case <-time.After(time.Second):
			t.Fatalf("watcher %d never notified", i)
		}
	}
}

func TestBroadcaster_LaggingWatcherKeepsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBroadcaster()
	ch, err := bus.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Overflow the watcher buffer; the oldest changes are displaced.
	for i := 0; i < watcherBuffer*2; i++ {
		bus.Publish(ctx, Change{Key: "k", Raw: []byte{byte(i)}})
	}

	var last Change
	drained := 0
	for {
		select {
		case c := <-ch:
			last = c
			drained++
			continue
		default:
		}
		break
	}

	if drained == 0 || drained > watcherBuffer {
		t.Fatalf("drained %d changes, want 1..%d", drained, watcherBuffer)
	}
	if last.Raw[0] != byte(watcherBuffer*2-1) {
		t.Errorf("latest change lost, last seen %d", last.Raw[0])
	}
}

func TestBroadcaster_WatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	bus := NewBroadcaster()
	ch, err := bus.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	if !waitFor(t, time.Second, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}) {
		t.Fatal("channel never closed after cancel")
	}

	// Publishing after teardown must not panic or deliver.
	bus.Publish(context.Background(), Change{Key: "k"})
}
