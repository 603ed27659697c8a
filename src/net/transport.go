package net

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Receive, Ack, NACK, Heartbeat, and AddNeighbor send the appropriate RPC
	// to the target node.

	Receive(target string, args *ReceiveRequest, resp *ReceiveResponse) error

	Ack(target string, args *AckRequest, resp *AckResponse) error

	NACK(target string, args *NACKRequest, resp *NACKResponse) error

	Heartbeat(target string, args *HeartbeatRequest, resp *HeartbeatResponse) error

	AddNeighbor(target string, args *AddNeighborRequest, resp *AddNeighborResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
