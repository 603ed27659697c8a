package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

const (
	// PeersJSON is the name of the file containing the initial neighbors of a
	// node.
	PeersJSON = "peers.json"
)

// JSONPeers is used to provide peer persistence on disk in the form
// of a JSON file. This allows human operators to manipulate the file.
type JSONPeers struct {
	l    sync.Mutex
	path string
}

// NewJSONPeers creates a new JSONPeers store.
func NewJSONPeers(base string) *JSONPeers {
	return &JSONPeers{
		path: filepath.Join(base, PeersJSON),
	}
}

// Path returns the location of the underlying file.
func (j *JSONPeers) Path() string {
	return j.path
}

// PeerSet reads the file and returns its content as a PeerSet. A missing or
// empty file yields an empty PeerSet.
func (j *JSONPeers) PeerSet() (*PeerSet, error) {
	peers, err := j.Peers()
	if err != nil {
		return nil, err
	}
	return NewPeerSet(peers), nil
}

// Peers reads the file and returns the list of Peers it contains.
func (j *JSONPeers) Peers() ([]*Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Peer{}, nil
		}
		return nil, err
	}

	// Check for no peers
	if len(bytes.TrimSpace(buf)) == 0 {
		return []*Peer{}, nil
	}

	var peerSet []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peerSet); err != nil {
		return nil, err
	}

	return peerSet, nil
}

// SetPeers writes the list of Peers to the file.
func (j *JSONPeers) SetPeers(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "\t")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}
