package mirror

import "github.com/zoobzio/capitan"

// Field keys for Mirror and Debouncer events.
var (
	// KeyKey is the store key a Mirror is bound to.
	KeyKey = capitan.NewStringKey("key")

	// KeyState is the current state of the Mirror.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyOrigin is the identity of the context that produced a change.
	KeyOrigin = capitan.NewStringKey("origin")

	// KeyDelay is the configured debounce delay.
	KeyDelay = capitan.NewDurationKey("delay")
)
