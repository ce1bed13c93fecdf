package mirror

// State represents the current state of a Mirror.
type State int32

const (
	// StateUninitialized indicates the Mirror has not yet resolved a
	// value from the store.
	StateUninitialized State = iota

	// StateReady indicates the Mirror holds a resolved value. Ready is
	// terminal until teardown: data failures are recorded as warnings
	// and the Mirror keeps whatever value it last held.
	StateReady
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
