// Package net implements the transports used by murmur nodes to call each
// other.
//
// A Transport carries five RPCs between nodes: Receive (deliver a broadcast
// message), Ack (confirm a delivered message), NACK (report a sequence gap),
// Heartbeat (liveness probe), and AddNeighbor (reciprocal half of a connect).
// Inbound requests are exposed on the channel returned by Consumer, where the
// node picks them up and answers through RPC.Respond.
//
// There are two implementations:
//
// - Inmem: in-memory transport used for testing and single-process demos.
// Transports are routed to each other explicitly with Connect and Disconnect,
// which is also how tests simulate a partition.
//
// - TCP: a NetworkTransport over a TCPStreamLayer. Each request is framed by a
// byte indicating the RPC type followed by the msgpack encoded request. The
// response is an error string followed by the msgpack encoded response.
//
// Errors travel over the wire as strings, so callers must not rely on the
// concrete type of an error returned by a remote node.
package net
