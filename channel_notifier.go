package mirror

import "context"

// ChannelNotifier wraps an existing Change channel as a Notifier.
// Useful for testing and custom sources that already produce changes.
type ChannelNotifier struct {
	ch   <-chan Change
	sync bool
}

// NewChannelNotifier creates a ChannelNotifier that forwards changes from
// the given channel through an internal goroutine.
func NewChannelNotifier(ch <-chan Change) *ChannelNotifier {
	return &ChannelNotifier{ch: ch, sync: false}
}

// NewSyncChannelNotifier creates a ChannelNotifier that returns the source
// channel directly without an intermediate goroutine, for deterministic
// testing.
func NewSyncChannelNotifier(ch <-chan Change) *ChannelNotifier {
	return &ChannelNotifier{ch: ch, sync: true}
}

// Watch returns a channel that emits changes from the wrapped channel.
func (n *ChannelNotifier) Watch(ctx context.Context) (<-chan Change, error) {
	if n.sync {
		return n.ch, nil
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-n.ch:
				if !ok {
					return
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
