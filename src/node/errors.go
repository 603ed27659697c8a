package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mosaicnetworks/murmur/src/node/state"
)

// Errors cross the transport as plain strings. These markers are part of the
// messages so that IsInactive and IsFailed also recognise remote rejections.
const (
	inactiveMarker = "is inactive"
	failedMarker   = "is in failure"
)

// NodeInactiveError is returned by every protocol operation invoked on an
// Inactive node.
type NodeInactiveError struct {
	ID string
}

func (e *NodeInactiveError) Error() string {
	return fmt.Sprintf("node %s %s", e.ID, inactiveMarker)
}

// NodeFailedError is returned when a Failed node is asked to send.
type NodeFailedError struct {
	ID     string
	Reason string
}

func (e *NodeFailedError) Error() string {
	return fmt.Sprintf("node %s %s: %s", e.ID, failedMarker, e.Reason)
}

// NeighborUnreachableError records a transport failure towards a neighbor.
// The neighbor is removed from the neighbor set.
type NeighborUnreachableError struct {
	PeerID string
	Err    error
}

func (e *NeighborUnreachableError) Error() string {
	return fmt.Sprintf("neighbor %s unreachable: %v", e.PeerID, e.Err)
}

// Unwrap returns the transport error.
func (e *NeighborUnreachableError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError is returned when an operation is not permitted in
// the current state. The state is left unchanged.
type InvalidTransitionError struct {
	From state.State
	Op   state.Op
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s in state %s", e.Op, e.From)
}

// IsInactive reports whether err is, or carries the message of, a
// NodeInactiveError.
func IsInactive(err error) bool {
	if err == nil {
		return false
	}
	var e *NodeInactiveError
	if errors.As(err, &e) {
		return true
	}
	return strings.Contains(err.Error(), inactiveMarker)
}

// IsFailed reports whether err is, or carries the message of, a
// NodeFailedError.
func IsFailed(err error) bool {
	if err == nil {
		return false
	}
	var e *NodeFailedError
	if errors.As(err, &e) {
		return true
	}
	return strings.Contains(err.Error(), failedMarker)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// isRejection reports whether err was produced by a live remote node refusing
// the call, as opposed to the remote node being unreachable.
func isRejection(err error) bool {
	return IsInactive(err) || IsFailed(err)
}
