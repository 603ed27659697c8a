package directory

import (
	"context"
	"sync"

	"github.com/mosaicnetworks/murmur/src/peers"
)

// StaticDirectory serves the content of a peers.json file. It is read-only:
// Register and Unregister do nothing, and Reconnect reloads the file.
type StaticDirectory struct {
	sync.RWMutex
	store   *peers.JSONPeers
	peerSet *peers.PeerSet
}

// NewStaticDirectory loads the peers.json file in datadir.
func NewStaticDirectory(datadir string) (*StaticDirectory, error) {
	d := &StaticDirectory{
		store: peers.NewJSONPeers(datadir),
	}
	if err := d.Reconnect(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

// Register implements the Directory interface. It is a no-op.
func (d *StaticDirectory) Register(ctx context.Context, id, addr string) error {
	return nil
}

// Lookup implements the Directory interface.
func (d *StaticDirectory) Lookup(ctx context.Context, id string) (string, error) {
	d.RLock()
	defer d.RUnlock()

	p, ok := d.peerSet.ByID[id]
	if !ok {
		return "", notFound(id)
	}
	return p.NetAddr, nil
}

// Unregister implements the Directory interface. It is a no-op.
func (d *StaticDirectory) Unregister(ctx context.Context, id string) error {
	return nil
}

// Reconnect implements the Directory interface by reloading the file.
func (d *StaticDirectory) Reconnect(ctx context.Context) error {
	ps, err := d.store.PeerSet()
	if err != nil {
		return &Error{Op: "load", ID: d.store.Path(), Err: err}
	}

	d.Lock()
	defer d.Unlock()
	d.peerSet = ps
	return nil
}
