package directory

import (
	"context"
	"errors"
	"fmt"
)

// Directory is the naming service used by nodes.
type Directory interface {
	// Register binds id to addr, replacing any previous binding.
	Register(ctx context.Context, id, addr string) error

	// Lookup returns the address bound to id. It returns an error satisfying
	// IsNotFound if there is none.
	Lookup(ctx context.Context, id string) (string, error)

	// Unregister removes the binding of id, if any.
	Unregister(ctx context.Context, id string) error

	// Reconnect re-establishes the connection to the underlying service.
	Reconnect(ctx context.Context) error
}

// ErrNotFound is wrapped by the errors returned when an id is not registered.
var ErrNotFound = errors.New("not found")

// Error records a failed directory operation.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("directory %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates that an id is not registered.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(id string) error {
	return &Error{Op: "lookup", ID: id, Err: ErrNotFound}
}
