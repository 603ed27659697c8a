// Package events carries protocol notifications out of a node.
//
// The node reports what happens to messages and neighbors through a Sink.
// Notify must never block nor fail the protocol: Bus fans events out to
// several sinks asynchronously, dropping events for sinks that fall behind
// and isolating panics. LogSink writes one line per event and MetricsSink
// counts events in Prometheus counters.
package events

import (
	"fmt"
	"time"
)

// Type is the type of an Event
type Type string

const (
	// MessageReceived is emitted when a message passes the fault injection
	// layer and reaches the FIFO admission.
	MessageReceived Type = "message_received"
	// MessageDelivered is emitted for every delivered message, including the
	// ones drained from the out-of-order buffer.
	MessageDelivered Type = "message_delivered"
	// MessageDropped is emitted when the fault injection layer discards an
	// inbound message.
	MessageDropped Type = "message_dropped"
	// AckSent is emitted when an ACK is sent for a delivered message.
	AckSent Type = "ack_sent"
	// AckReceived is emitted when a neighbor confirms a pending message.
	AckReceived Type = "ack_received"
	// NackSent is emitted when a sequence gap is reported to a sender.
	NackSent Type = "nack_sent"
	// NackReceived is emitted when a neighbor reports a gap.
	NackReceived Type = "nack_received"
	// NeighborFailed is emitted when a neighbor is removed after a failed
	// heartbeat or an unreachable call.
	NeighborFailed Type = "neighbor_failed"
	// MessageResent is emitted for every retry of a pending message.
	MessageResent Type = "message_resent"
	// RetryExhausted is emitted when a pending message is dropped after the
	// maximum number of retries.
	RetryExhausted Type = "retry_exhausted"
	// StateChanged is emitted on every state transition of the node.
	StateChanged Type = "state_changed"
)

// Event is a protocol notification. Only the fields relevant to Type are set.
type Event struct {
	Type      Type      `json:"type"`
	NodeID    string    `json:"node_id"`
	Time      time.Time `json:"time"`
	MessageID string    `json:"message_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Seq       uint32    `json:"seq,omitempty"`
	PeerID    string    `json:"peer_id,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	State     string    `json:"state,omitempty"`
}

// New returns an Event of the given type, stamped with the current time.
func New(t Type, nodeID string) Event {
	return Event{
		Type:   t,
		NodeID: nodeID,
		Time:   time.Now(),
	}
}

// String renders the event as a single log line.
func (e Event) String() string {
	s := fmt.Sprintf("%s %s", e.Time.Format("2006-01-02 15:04:05.000"), e.Type)
	if e.MessageID != "" {
		s += fmt.Sprintf(" msg=%s", e.MessageID)
	}
	if e.PeerID != "" {
		s += fmt.Sprintf(" peer=%s", e.PeerID)
	}
	if e.Attempt != 0 {
		s += fmt.Sprintf(" attempt=%d", e.Attempt)
	}
	if e.State != "" {
		s += fmt.Sprintf(" state=%s", e.State)
	}
	if e.Reason != "" {
		s += fmt.Sprintf(" reason=%q", e.Reason)
	}
	return s
}

// Sink receives events. Implementations must return quickly.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Notify implements Sink.
func (f SinkFunc) Notify(e Event) {
	f(e)
}

// Discard is a Sink that ignores every event.
var Discard Sink = SinkFunc(func(Event) {})
