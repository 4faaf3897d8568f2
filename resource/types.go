package resource

import "errors"

// Handle is an opaque reference to a value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

var (
	ErrClosed    = errors.New("resource table closed")
	ErrLimit     = errors.New("resource table limit reached")
	ErrExhausted = errors.New("resource handle space exhausted")
)

// Dropper is optionally implemented by values that need cleanup
// when their table is closed.
type Dropper interface {
	Drop()
}
