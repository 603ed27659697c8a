package net

import (
	"github.com/mosaicnetworks/murmur/src/message"
)

// ReceiveRequest carries a broadcast message to a neighbor. FromID is the id
// of the node making the call, which is not necessarily the author of the
// message.
type ReceiveRequest struct {
	FromID  string
	Message message.WireMessage
}

// ReceiveResponse is returned once the message has been processed by the
// receiver. Verdict is the outcome of the FIFO admission (Deliver, Buffer,
// Discard, or Dropped when the fault injection layer discarded it), reported
// for diagnostics only: ACKs and NACKs travel as separate RPCs.
type ReceiveResponse struct {
	FromID  string
	Verdict string
}

// AckRequest confirms the delivery of the message identified by MessageID.
type AckRequest struct {
	FromID    string
	MessageID string
}

// AckResponse ...
type AckResponse struct {
	FromID string
}

// NACKRequest reports that FromID is missing messages from the target: it
// has delivered everything up to LastReceivedSeq.
type NACKRequest struct {
	FromID          string
	LastReceivedSeq uint32
}

// NACKResponse ...
type NACKResponse struct {
	FromID string
}

// HeartbeatRequest is a liveness probe.
type HeartbeatRequest struct {
	FromID string
}

// HeartbeatResponse ...
type HeartbeatResponse struct {
	FromID string
}

// AddNeighborRequest asks the target to record FromID, reachable at FromAddr,
// as a neighbor. The target never calls back.
type AddNeighborRequest struct {
	FromID   string
	FromAddr string
}

// AddNeighborResponse indicates whether the caller was recorded. Known is true
// if it already was a neighbor.
type AddNeighborResponse struct {
	FromID   string
	Accepted bool
	Known    bool
}
