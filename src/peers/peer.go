package peers

import "fmt"

// Peer is a neighbor of a node.
type Peer struct {
	ID      string
	NetAddr string
}

// NewPeer creates a new Peer
func NewPeer(id, netAddr string) *Peer {
	return &Peer{
		ID:      id,
		NetAddr: netAddr,
	}
}

// String ...
func (p *Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.NetAddr)
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
