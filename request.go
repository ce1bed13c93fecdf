package mirror

// Request carries a value change through the callback pipeline.
// It provides access to both the previous and current values, allowing
// pipeline stages to make decisions based on what changed.
type Request[T any] struct {
	// Previous is the value before the change.
	Previous T

	// Current is the value after the change.
	Current T

	// Raw contains the serialized payload for external changes, nil for
	// local updates. Useful for debugging or logging purposes.
	Raw []byte

	// External reports whether the change was adopted from another
	// execution context rather than set locally.
	External bool
}
