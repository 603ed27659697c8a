// Package node implements a FIFO broadcast node.
//
// A Node broadcasts messages to its neighbors and delivers the messages it
// receives in the order in which each sender broadcast them. Node implements a
// state machine where the states are defined in the state package.
//
// Broadcast
//
// Every broadcast message carries the sender id and a sequence number which
// increases by one per broadcast. The message is sent to every neighbor and
// kept in the RetryScheduler until all of them acknowledged it. Unacknowledged
// messages are resent with exponential backoff, starting from the adaptive ACK
// timeout, and dropped after MaxRetries resends.
//
// Receive
//
// Inbound messages first go through the failure strategy, which may drop or
// delay them, and then through the FIFO admission of the ordering package. The
// next expected message of a sender is delivered and acknowledged, together
// with any buffered successors. A message from the future is buffered and the
// sender receives a NACK carrying the last sequence number delivered, upon
// which it resends every pending message past that number. Old and duplicate
// messages are discarded silently. A message is acknowledged only once it is
// staged in the delivery queue, which outlives Shutdown, so an acknowledged
// message is never lost by a restart.
//
// Liveness
//
// The HeartbeatMonitor probes every neighbor periodically. A neighbor that
// does not answer is removed. Round trip times which exceed the ACK timeout
// raise it to twice the round trip.
//
// Failures
//
// A node can be put into failure by an operator. A Failed node refuses to send
// anything, but still processes inbound messages in degraded mode and answers
// heartbeats. Recovering nodes become Active again after three outbound
// operations.
package node
