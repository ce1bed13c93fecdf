package mirror

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus,
// StatsD, etc. Implement this interface to receive callbacks on key Mirror
// events.
type MetricsProvider interface {
	// OnStateChange is called when the Mirror transitions between states.
	OnStateChange(from, to State)

	// OnLoad is called when the starting value is resolved from the
	// store. Found reports whether an entry existed for the key.
	OnLoad(found bool, duration time.Duration)

	// OnLoadFailure is called when the stored entry could not be read
	// or decoded and the Mirror fell back to its initial value.
	OnLoadFailure(duration time.Duration)

	// OnSet is called after a local update, whether or not the durable
	// write succeeded.
	OnSet(duration time.Duration)

	// OnWriteFailure is called when the durable write is rejected.
	OnWriteFailure()

	// OnChangeReceived is called when a notification for the Mirror's
	// key arrives.
	OnChangeReceived()

	// OnChangeAdopted is called when an external change becomes the
	// current value.
	OnChangeAdopted()

	// OnChangeRejected is called when an external change payload could
	// not be decoded.
	OnChangeRejected()
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)       {}
func (NoOpMetricsProvider) OnLoad(_ bool, _ time.Duration) {}
func (NoOpMetricsProvider) OnLoadFailure(_ time.Duration)  {}
func (NoOpMetricsProvider) OnSet(_ time.Duration)          {}
func (NoOpMetricsProvider) OnWriteFailure()                {}
func (NoOpMetricsProvider) OnChangeReceived()              {}
func (NoOpMetricsProvider) OnChangeAdopted()               {}
func (NoOpMetricsProvider) OnChangeRejected()              {}
