// Package peers defines the neighbor set of a node.
//
// A Peer is identified by its node id and carries the network address where
// it can be reached through a net.Transport. A PeerSet is an immutable
// collection of Peers: every mutation returns a new PeerSet, so that a node
// can hand out snapshots of its neighbors to concurrent goroutines without
// locking while failure detection keeps replacing the set.
//
// JSONPeers loads and saves a list of Peers from a peers.json file, which is
// used to bootstrap the neighbors of a node and to back the static directory.
package peers
