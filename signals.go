package mirror

import "github.com/zoobzio/capitan"

// Mirror lifecycle signals.
var (
	// MirrorOpened is emitted when a Mirror resolves its starting value.
	MirrorOpened = capitan.NewSignal(
		"mirror.opened",
		"Mirror opened and starting value resolved",
	)

	// MirrorClosed is emitted when a Mirror stops watching.
	MirrorClosed = capitan.NewSignal(
		"mirror.closed",
		"Mirror watching stopped",
	)

	// MirrorStateChanged is emitted when a Mirror transitions between states.
	MirrorStateChanged = capitan.NewSignal(
		"mirror.state.changed",
		"Mirror state transition",
	)
)

// Persistence signals.
var (
	// MirrorLoadFailed is emitted when the stored entry cannot be read
	// or decoded at startup; the Mirror falls back to its initial value.
	MirrorLoadFailed = capitan.NewSignal(
		"mirror.load.failed",
		"Stored entry unreadable, falling back to initial value",
	)

	// MirrorEncodeFailed is emitted when the current value cannot be
	// serialized; the in-memory value stands, the entry is not rewritten.
	MirrorEncodeFailed = capitan.NewSignal(
		"mirror.encode.failed",
		"Value could not be serialized for storage",
	)

	// MirrorWriteFailed is emitted when the durable write is rejected;
	// the in-memory value stands.
	MirrorWriteFailed = capitan.NewSignal(
		"mirror.write.failed",
		"Durable write rejected, in-memory value retained",
	)
)

// External change signals.
var (
	// MirrorChangeReceived is emitted when a notification for the
	// Mirror's key arrives from another execution context.
	MirrorChangeReceived = capitan.NewSignal(
		"mirror.change.received",
		"External change received for watched key",
	)

	// MirrorChangeAdopted is emitted when an external change is decoded
	// and adopted as the current value.
	MirrorChangeAdopted = capitan.NewSignal(
		"mirror.change.adopted",
		"External change adopted, last write wins",
	)

	// MirrorChangeRejected is emitted when an external change payload
	// cannot be decoded; the current value is retained.
	MirrorChangeRejected = capitan.NewSignal(
		"mirror.change.rejected",
		"External change payload undecodable",
	)

	// MirrorApplyFailed is emitted when the callback pipeline fails
	// after a value change was already applied.
	MirrorApplyFailed = capitan.NewSignal(
		"mirror.apply.failed",
		"Change callback pipeline failed",
	)
)

// Debouncer signals.
var (
	// DebouncerStarted is emitted when a Debouncer begins observing.
	DebouncerStarted = capitan.NewSignal(
		"mirror.debouncer.started",
		"Debouncer observing started",
	)

	// DebouncerSettled is emitted when a value survives a full delay window.
	DebouncerSettled = capitan.NewSignal(
		"mirror.debouncer.settled",
		"Observed value settled after quiet window",
	)

	// DebouncerStopped is emitted when a Debouncer stops observing.
	DebouncerStopped = capitan.NewSignal(
		"mirror.debouncer.stopped",
		"Debouncer observing stopped",
	)
)
