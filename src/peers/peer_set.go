package peers

import (
	"bytes"
	"encoding/json"
	"sort"
)

// PeerSet is an immutable set of Peers indexed by id.
type PeerSet struct {
	Peers []*Peer          `json:"peers"`
	ByID  map[string]*Peer `json:"-"`
}

/* Constructors */

// NewPeerSet creates a new PeerSet from a list of Peers. Later duplicates of
// an id are ignored.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		Peers: make([]*Peer, 0, len(peers)),
		ByID:  make(map[string]*Peer),
	}

	for _, peer := range peers {
		if _, ok := peerSet.ByID[peer.ID]; ok {
			continue
		}
		peerSet.ByID[peer.ID] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	return peerSet
}

// NewPeerSetFromPeerSliceBytes creates a new PeerSet from a peerSlice in Bytes
// format
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	b := bytes.NewBuffer(peerSliceBytes)
	dec := json.NewDecoder(b)

	err := dec.Decode(&peers)
	if err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

// WithNewPeer returns a new PeerSet with a list of peers including the new
// one. If a peer with the same id exists, its address is updated.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := make([]*Peer, 0, len(peerSet.Peers)+1)
	replaced := false
	for _, p := range peerSet.Peers {
		if p.ID == peer.ID {
			peers = append(peers, peer)
			replaced = true
			continue
		}
		peers = append(peers, p)
	}
	if !replaced {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

// WithRemovedPeer returns a new PeerSet with a list of peers excluding the
// one with the given id.
func (peerSet *PeerSet) WithRemovedPeer(id string) *PeerSet {
	_, peers := ExcludePeer(peerSet.Peers, id)
	return NewPeerSet(peers)
}

/* ToSlice Methods */

// IDs returns the PeerSet's slice of ids, sorted.
func (peerSet *PeerSet) IDs() []string {
	res := make([]string, 0, len(peerSet.Peers))

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID)
	}

	sort.Strings(res)

	return res
}

/* Utilities */

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByID)
}

// Contains reports whether a peer with the given id is in the set.
func (peerSet *PeerSet) Contains(id string) bool {
	_, ok := peerSet.ByID[id]
	return ok
}

// Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
